// Package parser extracts title metadata (id, name, icon) from NSP and XCI
// files through a chain of cached, individually re-runnable stages:
//
//	keys -> root container -> content meta -> control archive -> control property
//
// Loading a stage disposes that stage and every stage after it before doing
// any work, so the cached state is always a consistent prefix of the chain.
// A Parser is not safe for concurrent use; scan in parallel with one Parser
// per ROM sharing a single *keys.KeySet.
package parser

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/spf13/afero"

	"github.com/emunx/nxmeta/internal/cnmt"
	"github.com/emunx/nxmeta/internal/container"
	"github.com/emunx/nxmeta/internal/container/nca"
	"github.com/emunx/nxmeta/internal/container/root"
	"github.com/emunx/nxmeta/internal/keys"
	"github.com/emunx/nxmeta/internal/language"
	"github.com/emunx/nxmeta/internal/nacp"
	"github.com/emunx/nxmeta/internal/titleid"
)

const (
	metaEntryPattern  = "*.cnmt.nca"
	metaInnerPattern  = "*.cnmt"
	controlNACPPath   = "/control.nacp"
	ticketEntrySuffix = ".tik"
)

// Stage is one link of the dependency chain.
type Stage int

const (
	StageKeys Stage = iota
	StageRoot
	StageContentMeta
	StageControl
	StageProperty
	stageCount
)

var stageNames = [...]string{"NoKeys", "KeysLoaded", "RootOpen", "MetaLoaded", "ControlOpen", "PropertyLoaded"}

// State is the furthest stage whose cached state is present.
type State int

const (
	StateNoKeys State = iota
	StateKeysLoaded
	StateRootOpen
	StateMetaLoaded
	StateControlOpen
	StatePropertyLoaded
)

func (s State) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures a Parser.
type Option func(*Parser)

// WithFs sets the filesystem key files and ROMs are read from.
func WithFs(fsys afero.Fs) Option {
	return func(p *Parser) { p.fs = fsys }
}

// WithLogger sets the logger used for stage diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) { p.log = l }
}

// WithLanguages sets the languages used by LoadAndReadEverything.
func WithLanguages(name, icon language.Language) Option {
	return func(p *Parser) {
		p.NameLanguage = name
		p.IconLanguage = icon
	}
}

// WithPromptsForUser sets the PromptsForUser flag copied into every result.
func WithPromptsForUser(v bool) Option {
	return func(p *Parser) { p.promptsForUser = v }
}

// WithKeys shares an already loaded key set.
func WithKeys(ks *keys.KeySet) Option {
	return func(p *Parser) { p.keys = ks }
}

// Parser is the staged metadata extractor.
type Parser struct {
	fs  afero.Fs
	log *slog.Logger

	// stage slots, in dependency order
	keys      *keys.KeySet
	root      *root.Root
	meta      *cnmt.ContentMeta
	controlID string
	control   container.FileSystem
	property  *nacp.Control

	NameLanguage   language.Language
	IconLanguage   language.Language
	promptsForUser bool

	// Metadata accumulates what the Read operations project out of the
	// cached stages.
	Metadata RomMetadata
}

// New returns a parser with no stage loaded unless WithKeys is given.
func New(opts ...Option) *Parser {
	p := &Parser{
		fs:             afero.NewOsFs(),
		log:            slog.Default().With("component", "parser"),
		NameLanguage:   language.AmericanEnglish,
		IconLanguage:   language.AmericanEnglish,
		promptsForUser: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Metadata = RomMetadata{PromptsForUser: p.promptsForUser}
	return p
}

// Close releases every cached stage, including the open ROM file.
func (p *Parser) Close() error {
	var err error
	if p.root != nil {
		err = p.root.Close()
	}
	p.invalidateFrom(StageKeys)
	return err
}

// State reports how far the cached chain reaches.
func (p *Parser) State() State {
	switch {
	case p.property != nil:
		return StatePropertyLoaded
	case p.control != nil:
		return StateControlOpen
	case p.meta != nil:
		return StateMetaLoaded
	case p.root != nil:
		return StateRootOpen
	case p.keys != nil:
		return StateKeysLoaded
	default:
		return StateNoKeys
	}
}

// Keys returns the loaded key set, or nil.
func (p *Parser) Keys() *keys.KeySet {
	return p.keys
}

// invalidateFrom disposes stage s and everything after it, last stage first.
func (p *Parser) invalidateFrom(s Stage) {
	for st := stageCount - 1; st >= s; st-- {
		switch st {
		case StageProperty:
			p.property = nil
		case StageControl:
			p.control = nil
		case StageContentMeta:
			p.meta = nil
			p.controlID = ""
		case StageRoot:
			if p.root != nil {
				if err := p.root.Close(); err != nil {
					p.log.Warn("Failed to close ROM", "path", p.root.Path(), "error", err)
				}
				p.root = nil
			}
		case StageKeys:
			p.keys = nil
		}
	}
}

// CanLoadRoot reports whether keys are loaded.
func (p *Parser) CanLoadRoot() bool { return p.keys != nil }

// CanLoadContentMeta reports whether a root container is open.
func (p *Parser) CanLoadContentMeta() bool { return p.CanLoadRoot() && p.root != nil }

// CanLoadControl reports whether the content meta named a control archive.
func (p *Parser) CanLoadControl() bool {
	return p.CanLoadContentMeta() && p.meta != nil && p.controlID != ""
}

// CanLoadProperty reports whether the control archive is open.
func (p *Parser) CanLoadProperty() bool { return p.CanLoadControl() && p.control != nil }

// CanReadID reports whether the content meta is loaded.
func (p *Parser) CanReadID() bool { return p.CanLoadContentMeta() && p.meta != nil }

// CanReadName reports whether the control property is loaded.
func (p *Parser) CanReadName() bool { return p.CanLoadProperty() && p.property != nil }

// CanReadIcon reports whether the control archive is open.
func (p *Parser) CanReadIcon() bool { return p.CanLoadProperty() }

// LoadKeys loads prod.keys from path, replacing any previous key set.
func (p *Parser) LoadKeys(path string) error {
	const op = "LoadKeys"
	p.invalidateFrom(StageKeys)

	ks, err := keys.Load(p.fs, path)
	if err != nil {
		if errors.Is(err, keys.ErrFileNotFound) {
			return newError(op, CodeKeysProdNotFound, ErrFileNotFound, err)
		}
		return newError(op, CodeKeysProdInvalid, ErrInvalidKeys, err)
	}

	p.keys = ks
	p.log.Debug("Loaded keys", "path", path)
	return nil
}

// LoadTitleKeys extends the loaded key set with a title.keys file.
func (p *Parser) LoadTitleKeys(path string) error {
	const op = "LoadTitleKeys"
	if !p.CanLoadRoot() {
		return newError(op, CodeKeysProdNotFound, ErrDependenciesNotReady, nil)
	}
	current := p.keys
	p.invalidateFrom(StageKeys)

	ks, err := current.LoadTitleKeys(p.fs, path)
	if err != nil {
		p.keys = current
		if errors.Is(err, keys.ErrFileNotFound) {
			return newError(op, CodeKeysTitleNotFound, ErrFileNotFound, err)
		}
		return newError(op, CodeKeysTitleInvalid, ErrInvalidKeys, err)
	}

	p.keys = ks
	p.log.Debug("Loaded title keys", "path", path, "count", ks.TitleKeyCount())
	return nil
}

// SetKeys installs an already loaded key set, disposing every later stage.
func (p *Parser) SetKeys(ks *keys.KeySet) {
	p.invalidateFrom(StageKeys)
	p.keys = ks
}

// LoadRoot opens the ROM at path. The extension must be exactly ".nsp" or
// ".xci"; it is checked before any file is touched.
func (p *Parser) LoadRoot(path string) error {
	const op = "LoadRoot"
	if !p.CanLoadRoot() {
		return newError(op, CodeRomReadDependenciesNotComplete, ErrDependenciesNotReady, nil)
	}

	p.invalidateFrom(StageRoot)
	p.Metadata = RomMetadata{PromptsForUser: p.promptsForUser}

	format := root.FormatFromPath(path)
	if format == root.FormatUnknown {
		return newError(op, CodeRomUnknownFormat, ErrUnsupportedFormat, fmt.Errorf("%w: %s", container.ErrUnsupportedFormat, path))
	}

	r, err := root.Open(p.fs, path)
	if err != nil {
		code := CodeNspLoadRootFsError
		if format == root.FormatXCI {
			code = CodeXciLoadRootFsError
		}
		return newError(op, code, ErrOpenFailed, err)
	}

	p.root = r
	p.log.Debug("Opened ROM", "path", path, "format", format, "entries", len(r.Entries()))
	return nil
}

// LoadContentMeta decodes the first *.cnmt.nca archive of the root container.
func (p *Parser) LoadContentMeta() error {
	const op = "LoadContentMeta"
	if !p.CanLoadContentMeta() {
		return newError(op, CodeCnmtReadDependenciesNotComplete, ErrDependenciesNotReady, nil)
	}
	p.invalidateFrom(StageContentMeta)

	entry, ok := container.FindFirst(p.root, metaEntryPattern)
	if !ok {
		return newError(op, CodeCnmtNcaNotFound, ErrEntryNotFound, fmt.Errorf("no %s entry", metaEntryPattern))
	}

	fsys, err := p.openContent(entry.Name)
	if err != nil {
		return newError(op, openFailureCode(err, CodeCnmtNcaReadError), ErrEntryOpenFailed, err)
	}

	name, ok := container.FindFirstFile(fsys, metaInnerPattern)
	if !ok {
		return newError(op, CodeCnmtNotFound, ErrInnerEntryNotFound, fmt.Errorf("no %s in %s", metaInnerPattern, entry.Name))
	}

	data, err := container.ReadFile(fsys, name)
	if err != nil {
		return newError(op, CodeCnmtReadError, ErrInnerOpenFailed, err)
	}
	meta, err := cnmt.Decode(data)
	if err != nil {
		return newError(op, CodeCnmtReadError, ErrInnerOpenFailed, err)
	}

	p.meta = meta
	p.controlID, _ = meta.ControlID()
	p.log.Debug("Loaded content meta", "entry", entry.Name, "title_id", meta.TitleID, "control", p.controlID)
	return nil
}

// LoadControl opens the control archive named by the content meta.
func (p *Parser) LoadControl() error {
	const op = "LoadControl"
	if !p.CanLoadControl() {
		return newError(op, CodeControlReadDependenciesNotComplete, ErrDependenciesNotReady, nil)
	}
	p.invalidateFrom(StageControl)

	name := p.controlID + ".nca"
	if _, ok := container.FindFirst(p.root, name); !ok {
		return newError(op, CodeControlNcaNotFound, ErrEntryNotFound, fmt.Errorf("no %s entry", name))
	}

	fsys, err := p.openContent(name)
	if err != nil {
		return newError(op, openFailureCode(err, CodeControlNcaReadError), ErrEntryOpenFailed, err)
	}

	p.control = fsys
	p.log.Debug("Opened control archive", "entry", name)
	return nil
}

// LoadProperty decodes /control.nacp from the control archive.
func (p *Parser) LoadProperty() error {
	const op = "LoadProperty"
	if !p.CanLoadProperty() {
		return newError(op, CodeNacpReadDependenciesNotComplete, ErrDependenciesNotReady, nil)
	}
	p.invalidateFrom(StageProperty)

	f, err := p.control.Open(container.CleanPath(controlNACPPath))
	if err != nil {
		return newError(op, CodeNacpNotFound, ErrEntryNotFound, err)
	}
	defer f.Close()

	buf := make([]byte, nacp.Size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return newError(op, CodeNacpReadError, ErrReadSizeMismatch, err)
	}

	property, err := nacp.Decode(buf)
	if err != nil {
		return newError(op, CodeNacpParseError, ErrDecodeFailed, err)
	}

	p.property = property
	return nil
}

// ReadID projects the application id into Metadata.
func (p *Parser) ReadID() (titleid.ID, error) {
	if !p.CanReadID() {
		return 0, newError("ReadID", CodeIdReadDependenciesNotComplete, ErrDependenciesNotReady, nil)
	}
	p.Metadata.ID = p.meta.TitleID
	return p.meta.TitleID, nil
}

// ReadName projects the title name for lang into Metadata.
func (p *Parser) ReadName(lang language.Language) (string, error) {
	if !p.CanReadName() {
		return "", newError("ReadName", CodeNameReadDependenciesNotComplete, ErrDependenciesNotReady, nil)
	}
	if !lang.Valid() {
		return "", newError("ReadName", CodeUnknown, ErrInvalidLanguage, fmt.Errorf("invalid %s", lang))
	}
	name := p.property.Name(lang.NameIndex())
	p.Metadata.Name = name
	return name, nil
}

// ReadPublisher projects the publisher for lang into Metadata.
func (p *Parser) ReadPublisher(lang language.Language) (string, error) {
	if !p.CanReadName() {
		return "", newError("ReadPublisher", CodeNameReadDependenciesNotComplete, ErrDependenciesNotReady, nil)
	}
	if !lang.Valid() {
		return "", newError("ReadPublisher", CodeUnknown, ErrInvalidLanguage, fmt.Errorf("invalid %s", lang))
	}
	publisher := p.property.Publisher(lang.NameIndex())
	p.Metadata.Publisher = publisher
	return publisher, nil
}

// ReadVersion projects the display version into Metadata.
func (p *Parser) ReadVersion() (string, error) {
	if !p.CanReadName() {
		return "", newError("ReadVersion", CodeNameReadDependenciesNotComplete, ErrDependenciesNotReady, nil)
	}
	p.Metadata.Version = p.property.DisplayVersion
	return p.property.DisplayVersion, nil
}

// ReadIcon copies the icon for lang into Metadata. A title without an icon
// for lang yields (nil, nil).
func (p *Parser) ReadIcon(lang language.Language) ([]byte, error) {
	if !p.CanReadIcon() {
		return nil, newError("ReadIcon", CodeIconReadDependenciesNotComplete, ErrDependenciesNotReady, nil)
	}
	if !lang.Valid() {
		return nil, newError("ReadIcon", CodeUnknown, ErrInvalidLanguage, fmt.Errorf("invalid %s", lang))
	}

	icon, err := container.ReadFile(p.control, lang.IconPath())
	if err != nil || len(icon) == 0 {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.log.Debug("Icon unreadable", "language", lang, "error", err)
		}
		p.Metadata.Icon = nil
		return nil, nil
	}

	p.Metadata.Icon = icon
	return icon, nil
}

// LoadAndReadEverything runs every stage after the keys for the ROM at path
// and returns the first failure. Earlier stages stay cached on failure.
func (p *Parser) LoadAndReadEverything(path string) error {
	steps := []func() error{
		func() error { return p.LoadRoot(path) },
		p.LoadContentMeta,
		p.LoadControl,
		p.LoadProperty,
		func() error { _, err := p.ReadID(); return err },
		func() error { _, err := p.ReadName(p.NameLanguage); return err },
		func() error { _, err := p.ReadPublisher(p.NameLanguage); return err },
		func() error { _, err := p.ReadVersion(); return err },
		func() error { _, err := p.ReadIcon(p.IconLanguage); return err },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// openContent decodes the content archive entry name of the root container
// and opens the filesystem of its first section.
func (p *Parser) openContent(name string) (container.FileSystem, error) {
	sr, err := p.root.OpenEntry(name)
	if err != nil {
		return nil, err
	}
	a, err := nca.Open(sr, p.keys, nca.WithTitleKeys(p.titleKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	fsys, err := a.FileSystem(0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return fsys, nil
}

// titleKey looks the rights id up in title.keys first, then in a
// "<rightsid>.tik" ticket shipped inside the root container.
func (p *Parser) titleKey(rid keys.RightsID, generation int) ([]byte, error) {
	if key, ok := p.keys.TitleKey(rid); ok {
		return key, nil
	}

	want := rid.String() + ticketEntrySuffix
	for _, e := range p.root.Entries() {
		if !strings.EqualFold(e.Name, want) {
			continue
		}
		sr, err := p.root.OpenEntry(e.Name)
		if err != nil {
			return nil, err
		}
		data := make([]byte, sr.Size())
		if err := container.ReadAtFull(sr, data, 0); err != nil {
			return nil, fmt.Errorf("ticket %s: %w", e.Name, err)
		}
		tik, err := nca.ParseTicket(data)
		if err != nil {
			return nil, err
		}
		return tik.TitleKey(p.keys, generation)
	}
	return nil, fmt.Errorf("%w: no title key or ticket for %s", keys.ErrKeyMissing, rid)
}

func openFailureCode(err error, fallback Code) Code {
	if errors.Is(err, keys.ErrKeyMissing) {
		return CodeKeysMissing
	}
	return fallback
}

// Result returns a deep copy of Metadata.
func (p *Parser) Result() RomMetadata {
	return p.Metadata.Clone()
}
