package scanner

import (
	"context"
	"log/slog"

	"github.com/emunx/nxmeta/internal/config"
)

// RegisterConfigHandlers applies configuration changes to the scanner.
func RegisterConfigHandlers(ctx context.Context, configManager *config.Manager, s *Scanner) {
	configManager.OnConfigChange(func(oldConfig, newConfig *config.Config) {
		slog.InfoContext(ctx, "Configuration updated")

		if oldConfig.Keys != newConfig.Keys {
			slog.InfoContext(ctx, "Key files changed - keys will be reloaded on next scan",
				"prod_keys", newConfig.Keys.ProdKeys,
				"title_keys", newConfig.Keys.TitleKeys)
		}

		if oldConfig.Language != newConfig.Language {
			slog.InfoContext(ctx, "Language preferences changed",
				"name", newConfig.Language.Name,
				"icon", newConfig.Language.Icon)
		}

		if oldConfig.Scan.MaxWorkers != newConfig.Scan.MaxWorkers {
			slog.InfoContext(ctx, "Scan workers changed",
				"old", oldConfig.Scan.MaxWorkers,
				"new", newConfig.Scan.MaxWorkers)
		}

		s.UpdateConfig(newConfig)

		// Log changes that still require restart
		if oldConfig.Database.Path != newConfig.Database.Path {
			slog.InfoContext(ctx, "Database path changed (restart required)",
				"old", oldConfig.Database.Path,
				"new", newConfig.Database.Path)
		}
		if oldConfig.API != newConfig.API {
			slog.InfoContext(ctx, "API address changed (restart required)",
				"old", oldConfig.API.Addr(),
				"new", newConfig.API.Addr())
		}
	})
}
