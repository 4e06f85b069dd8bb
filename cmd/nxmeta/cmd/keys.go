package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/emunx/nxmeta/internal/keys"
	"github.com/emunx/nxmeta/internal/parser"
)

func init() {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Check the configured key files",
		Long:  `Load prod.keys and the optional title.keys from the configuration and report what they provide.`,
		Args:  cobra.NoArgs,
		RunE:  runKeys,
	}

	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	// 1. Load config to find the key files
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 2. Load prod.keys through the parser so failures carry their code
	p := parser.New(parser.WithFs(afero.NewOsFs()))
	defer p.Close()

	if err := p.LoadKeys(cfg.Keys.ProdKeys); err != nil {
		return fmt.Errorf("%s: %w", parser.CodeOf(err), err)
	}
	fmt.Printf("prod keys:  %s\n", cfg.Keys.ProdKeys)

	// 3. Optional title keys
	if cfg.Keys.TitleKeys != "" {
		if err := p.LoadTitleKeys(cfg.Keys.TitleKeys); err != nil {
			return fmt.Errorf("%s: %w", parser.CodeOf(err), err)
		}
		fmt.Printf("title keys: %s (%d entries)\n", cfg.Keys.TitleKeys, p.Keys().TitleKeyCount())
	}

	// 4. Report which key generations can open content archives
	ks := p.Keys()
	var generations []int
	for gen := 0; gen < keys.MaxGenerations; gen++ {
		if _, err := ks.KeyAreaKey(keys.KeyAreaApplication, gen); err == nil {
			generations = append(generations, gen)
		}
	}
	fmt.Printf("application key area generations: %v\n", generations)

	return nil
}
