package testutil

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Title describes a synthetic application used to build NSP and XCI images.
type Title struct {
	ID      uint64
	Version uint32
	Control Control
	// Icons maps RomFS paths such as "icon_AmericanEnglish.dat" to JPEG bytes.
	Icons map[string][]byte
	// TitleKeyCrypto protects the control archive with a ticket title key.
	TitleKeyCrypto bool
	// OmitTicket leaves the ticket out even when TitleKeyCrypto is set.
	OmitTicket bool
	// OmitControl drops the control archive from the container while the
	// content-meta still references it.
	OmitControl bool
	// OmitMeta drops the content-meta archive.
	OmitMeta bool
	// PatchControlRomFS rewrites the control RomFS image before encryption.
	PatchControlRomFS func([]byte) []byte
}

// Content ids used by the synthetic titles.
var (
	MetaContentID    = ContentID(0xA0)
	ControlContentID = ContentID(0xC0)
	ProgramContentID = ContentID(0xE0)
)

// RightsID returns the rights id used when TitleKeyCrypto is set.
func (t Title) RightsID() [16]byte {
	var rid [16]byte
	binary.BigEndian.PutUint64(rid[:8], t.ID)
	return rid
}

// Contents returns the files of the title's secure/root partition.
func (t Title) Contents() []File {
	var files []File

	files = append(files, File{
		Name: ContentName(ProgramContentID, false),
		Data: BuildNCA(NCA{ContentType: NCAProgram, ProgramID: t.ID, SectionType: SectionPFS0, Image: BuildPFS0([]File{{Name: "main", Data: []byte("code")}})}),
	})

	if !t.OmitControl {
		romfs := []File{{Name: "control.nacp", Data: BuildNACP(t.Control)}}
		for name, data := range t.Icons {
			romfs = append(romfs, File{Name: name, Data: data})
		}
		sortFiles(romfs)
		image := BuildRomFS(romfs)
		if t.PatchControlRomFS != nil {
			image = t.PatchControlRomFS(image)
		}
		control := NCA{ContentType: NCAControl, ProgramID: t.ID, SectionType: SectionRomFS, Image: image}
		if t.TitleKeyCrypto {
			control.RightsID = t.RightsID()
		}
		files = append(files, File{Name: ContentName(ControlContentID, false), Data: BuildNCA(control)})
	}

	if !t.OmitMeta {
		files = append(files, File{
			Name: ContentName(MetaContentID, true),
			Data: BuildMetaNCA(t.ID, []File{t.MetaRecord()}),
		})
	}

	if t.TitleKeyCrypto && !t.OmitTicket {
		rid := t.RightsID()
		files = append(files, File{Name: fmt.Sprintf("%x.tik", rid[:]), Data: BuildTicket(rid)})
	}

	return files
}

// MetaRecord returns the title's content-meta record file.
func (t Title) MetaRecord() File {
	return File{
		Name: fmt.Sprintf("Application_%016x.cnmt", t.ID),
		Data: BuildCNMT(t.ID, t.Version, []ContentRecord{
			{ID: ProgramContentID, Size: 0x1000, Type: ContentTypeProgram},
			{ID: ControlContentID, Size: 0x1000, Type: ContentTypeControl},
		}),
	}
}

// BuildMetaNCA returns a meta content archive whose PFS0 section holds the
// given records in order.
func BuildMetaNCA(programID uint64, records []File) []byte {
	return BuildNCA(NCA{ContentType: NCAMeta, ProgramID: programID, SectionType: SectionPFS0, Image: BuildPFS0(records)})
}

// BuildNSP returns the title packaged as an NSP.
func BuildNSP(t Title) []byte {
	return BuildPFS0(t.Contents())
}

// BuildTitleXCI returns the title packaged as a gamecard image.
func BuildTitleXCI(t Title) []byte {
	return BuildXCI([]File{
		{Name: "update", Data: BuildHFS0(nil)},
		{Name: "normal", Data: BuildHFS0(nil)},
		{Name: "secure", Data: BuildHFS0(t.Contents())},
	})
}

// DefaultTitle returns a title with an English name and icon.
func DefaultTitle() Title {
	var c Control
	c.Titles[0] = ControlTitle{Name: "Test Game", Publisher: "Test Publisher"}
	c.Titles[3] = ControlTitle{Name: "Jeu de test", Publisher: "Editeur"}
	c.DisplayVersion = "1.0.2"
	return Title{
		ID:      0x01006B601380E000,
		Version: 0x10000,
		Control: c,
		Icons: map[string][]byte{
			"icon_AmericanEnglish.dat": []byte("\xFF\xD8\xFFenglish-icon"),
			"icon_French.dat":          []byte("\xFF\xD8\xFFfrench-icon"),
		},
	}
}

func sortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
}
