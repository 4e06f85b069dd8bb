package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/emunx/nxmeta/internal/language"
	"github.com/emunx/nxmeta/internal/parser"
)

var (
	infoNameLanguage string
	infoIconLanguage string
	infoIconOut      string
	infoJSON         bool
)

func init() {
	infoCmd := &cobra.Command{
		Use:   "info <rom>",
		Short: "Print the metadata of one ROM",
		Long:  `Parse a single .nsp or .xci file and print its title id, name, publisher, version and icon size.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	infoCmd.Flags().StringVar(&infoNameLanguage, "name-lang", "", "language of the name (defaults to config)")
	infoCmd.Flags().StringVar(&infoIconLanguage, "icon-lang", "", "language of the icon (defaults to config)")
	infoCmd.Flags().StringVar(&infoIconOut, "icon-out", "", "write the icon to this file")
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print JSON")

	rootCmd.AddCommand(infoCmd)
}

type infoOutput struct {
	TitleID        string `json:"title_id"`
	Name           string `json:"name"`
	Publisher      string `json:"publisher"`
	Version        string `json:"version"`
	IconSize       int    `json:"icon_size"`
	PromptsForUser bool   `json:"prompts_for_user"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	// 1. Load config for keys and language defaults
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	nameLang, iconLang := cfg.NameLanguage(), cfg.IconLanguage()
	if infoNameLanguage != "" {
		if nameLang, err = language.Parse(infoNameLanguage); err != nil {
			return err
		}
	}
	if infoIconLanguage != "" {
		if iconLang, err = language.Parse(infoIconLanguage); err != nil {
			return err
		}
	}

	// 2. Load keys
	p := parser.New(
		parser.WithFs(afero.NewOsFs()),
		parser.WithLanguages(nameLang, iconLang),
		parser.WithPromptsForUser(cfg.PromptsForUser()),
	)
	defer p.Close()

	if err := p.LoadKeys(cfg.Keys.ProdKeys); err != nil {
		return err
	}
	if cfg.Keys.TitleKeys != "" {
		if err := p.LoadTitleKeys(cfg.Keys.TitleKeys); err != nil {
			return err
		}
	}

	// 3. Parse the ROM
	if err := p.LoadAndReadEverything(args[0]); err != nil {
		return fmt.Errorf("%s: %w", parser.CodeOf(err), err)
	}
	meta := p.Result()

	// 4. Optionally save the icon
	if infoIconOut != "" && meta.HasIcon() {
		if err := os.WriteFile(infoIconOut, meta.Icon, 0644); err != nil {
			return fmt.Errorf("failed to write icon: %w", err)
		}
	}

	out := infoOutput{
		TitleID:        meta.ID.Hex(),
		Name:           meta.Name,
		Publisher:      meta.Publisher,
		Version:        meta.Version,
		IconSize:       len(meta.Icon),
		PromptsForUser: meta.PromptsForUser,
	}
	if infoJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Title ID:  %s\n", out.TitleID)
	fmt.Fprintf(w, "Name:      %s\n", out.Name)
	fmt.Fprintf(w, "Publisher: %s\n", out.Publisher)
	fmt.Fprintf(w, "Version:   %s\n", out.Version)
	fmt.Fprintf(w, "Icon:      %d bytes\n", out.IconSize)
	return nil
}
