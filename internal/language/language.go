// Package language lists the languages a title can be localized in and maps
// them to their slot in the control property and to their icon file.
package language

import (
	"fmt"
	"strings"
)

// Language is a language or regional variant used by ROM metadata.
type Language int

const (
	AmericanEnglish Language = iota
	BritishEnglish
	Japanese
	French
	German
	LatinAmericanSpanish
	Spanish
	Italian
	Dutch
	CanadianFrench
	Portuguese
	BrazilianPortuguese
	Russian
	Korean
	TraditionalChinese
	Taiwanese
	SimplifiedChinese
)

// Count is the number of known languages.
const Count = int(SimplifiedChinese) + 1

var names = [Count]string{
	"AmericanEnglish",
	"BritishEnglish",
	"Japanese",
	"French",
	"German",
	"LatinAmericanSpanish",
	"Spanish",
	"Italian",
	"Dutch",
	"CanadianFrench",
	"Portuguese",
	"BrazilianPortuguese",
	"Russian",
	"Korean",
	"TraditionalChinese",
	"Taiwanese",
	"SimplifiedChinese",
}

// nameIndices maps a language to its title entry in the control property.
// Regional variants without a slot of their own share one.
var nameIndices = [Count]int{
	AmericanEnglish:      0,
	BritishEnglish:       1,
	Japanese:             2,
	French:               3,
	German:               4,
	LatinAmericanSpanish: 5,
	Spanish:              6,
	Italian:              7,
	Dutch:                8,
	CanadianFrench:       9,
	Portuguese:           10,
	BrazilianPortuguese:  10,
	Russian:              11,
	Korean:               12,
	TraditionalChinese:   13,
	Taiwanese:            13,
	SimplifiedChinese:    14,
}

// Valid reports whether l is one of the known languages.
func (l Language) Valid() bool {
	return l >= 0 && int(l) < Count
}

func (l Language) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Language(%d)", int(l))
	}
	return names[l]
}

// NameIndex returns the title entry slot (0-14) for the language. Languages
// outside the known set map to slot 0; callers validate with Valid first.
func (l Language) NameIndex() int {
	if !l.Valid() {
		return 0
	}
	return nameIndices[l]
}

// IconPath returns the path of the language icon inside the control archive,
// e.g. "/icon_AmericanEnglish.dat". Taiwanese shares the TraditionalChinese icon.
func (l Language) IconPath() string {
	if l == Taiwanese {
		l = TraditionalChinese
	}
	return "/icon_" + l.String() + ".dat"
}

// Parse accepts a language name in PascalCase, kebab-case or snake_case,
// ignoring case: "AmericanEnglish", "american-english", "american_english".
func Parse(s string) (Language, error) {
	key := normalize(s)
	for i, name := range names {
		if normalize(name) == key {
			return Language(i), nil
		}
	}
	return 0, fmt.Errorf("unknown language %q", s)
}

// All returns every language in declaration order.
func All() []Language {
	all := make([]Language, Count)
	for i := range all {
		all[i] = Language(i)
	}
	return all
}

// MarshalText implements encoding.TextMarshaler.
func (l Language) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid language %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Language) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "_", "")
}
