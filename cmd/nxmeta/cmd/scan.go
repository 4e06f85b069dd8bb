package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/emunx/nxmeta/internal/scanner"
)

func init() {
	scanCmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Scan a ROM folder into the catalog",
		Long:  `Parse every .nsp and .xci file of the configured folder (or dir) and store the results in the catalog database.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Library.RomsDir = args[0]
	}

	// 2. Initialize database connection
	db, err := initializeDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// 3. Scan
	s := scanner.New(afero.NewOsFs(), cfg, setupRepository(db))
	summary, err := s.Scan(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, r := range summary.Results {
		if r.Err != nil {
			fmt.Fprintf(w, "FAIL %s: %s\n", r.RomPath, r.Code())
		}
	}
	fmt.Fprintf(w, "Scanned %d, failed %d, removed %d in %s\n",
		summary.Scanned, summary.Failed, summary.Pruned, summary.Duration.Round(time.Millisecond))
	return nil
}
