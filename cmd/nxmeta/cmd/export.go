package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/emunx/nxmeta/internal/metadata"
)

var exportRoot string

func init() {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write YAML sidecars and icons for catalogued titles",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	exportCmd.Flags().StringVarP(&exportRoot, "out", "o", "", "export directory (defaults to config)")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if exportRoot != "" {
		cfg.Export.RootPath = exportRoot
	}

	// 2. Initialize database connection
	db, err := initializeDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// 3. Load every title with its icon
	repo := setupRepository(db)
	titles, err := repo.ListTitlesWithIcons(ctx)
	if err != nil {
		return err
	}

	// 4. Write the sidecars
	ms := metadata.NewMetadataService(afero.NewOsFs(), cfg.Export.RootPath)
	res, err := ms.Export(ctx, titles)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d titles to %s (%d stale removed)\n", res.Written, cfg.Export.RootPath, res.Removed)
	return nil
}
