package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/emunx/nxmeta/internal/config"
	"github.com/emunx/nxmeta/internal/database"
	"github.com/emunx/nxmeta/internal/pathutil"
)

// initializeDatabase opens the catalog and applies pending migrations.
func initializeDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if err := pathutil.CheckFileDirectoryWritable(afero.NewOsFs(), cfg.Database.Path, "database"); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	slog.InfoContext(ctx, "Database ready", "path", cfg.Database.Path)
	return db, nil
}

func setupRepository(db *sql.DB) *database.Repository {
	return database.NewRepository(db)
}
