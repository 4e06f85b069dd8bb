// Package scanner walks a ROM folder and catalogs the metadata of every
// NSP/XCI file. A ROM that fails to parse is recorded as a failure and never
// stops the scan.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	concpool "github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/emunx/nxmeta/internal/config"
	"github.com/emunx/nxmeta/internal/container/root"
	"github.com/emunx/nxmeta/internal/database"
	"github.com/emunx/nxmeta/internal/keys"
	"github.com/emunx/nxmeta/internal/parser"
	"github.com/emunx/nxmeta/internal/pathutil"
)

// Store is the catalog the scanner writes to.
type Store interface {
	UpsertTitle(ctx context.Context, t *database.Title) error
	RecordFailure(ctx context.Context, f *database.ScanFailure) error
	StartScanRun(ctx context.Context, run *database.ScanRun) error
	FinishScanRun(ctx context.Context, run *database.ScanRun) error
	DeleteTitlesNotSeen(ctx context.Context, scanID string) (int64, error)
}

// Result is the outcome for one ROM file.
type Result struct {
	RomPath  string
	Format   root.Format
	FileSize int64
	Metadata parser.RomMetadata
	Err      error
}

// Code returns the parser failure code, or CodeUnknown on success.
func (r Result) Code() parser.Code {
	return parser.CodeOf(r.Err)
}

// Summary describes a finished scan.
type Summary struct {
	RunID    string
	Scanned  int
	Failed   int
	Pruned   int64
	Results  []Result
	Duration time.Duration
}

// Scanner catalogs a ROM library.
type Scanner struct {
	fs    afero.Fs
	store Store
	log   *slog.Logger

	mu   sync.Mutex
	cfg  *config.Config
	keys *keys.KeySet

	progress Progress
	running  sync.Mutex
}

// New creates a scanner reading ROMs and key files from fsys.
func New(fsys afero.Fs, cfg *config.Config, store Store) *Scanner {
	return &Scanner{
		fs:    fsys,
		store: store,
		cfg:   cfg,
		log:   slog.Default().With("component", "scanner"),
	}
}

// UpdateConfig swaps the configuration used by subsequent scans. Cached keys
// are dropped when the key file paths change.
func (s *Scanner) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil || s.cfg.Keys != cfg.Keys {
		s.keys = nil
	}
	s.cfg = cfg
}

// Progress returns the counters of the running or last scan.
func (s *Scanner) Progress() ProgressSnapshot {
	return s.progress.Snapshot()
}

func (s *Scanner) config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// LoadKeys returns the shared key set, loading it on first use.
func (s *Scanner) LoadKeys() (*keys.KeySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys != nil {
		return s.keys, nil
	}

	p := parser.New(parser.WithFs(s.fs), parser.WithLogger(s.log))
	if err := p.LoadKeys(s.cfg.Keys.ProdKeys); err != nil {
		return nil, err
	}
	if s.cfg.Keys.TitleKeys != "" {
		if err := p.LoadTitleKeys(s.cfg.Keys.TitleKeys); err != nil {
			return nil, err
		}
	}

	s.keys = p.Keys()
	return s.keys, nil
}

// Discover lists the ROM files of the library in path order.
func (s *Scanner) Discover(ctx context.Context) ([]string, error) {
	cfg := s.config()
	dir := cfg.Library.RomsDir

	var roms []string
	err := afero.Walk(s.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			s.log.WarnContext(ctx, "Skipping unreadable path", "path", path, "err", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			if path != dir && !cfg.Library.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if root.FormatFromPath(path) != root.FormatUnknown {
			roms = append(roms, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	sort.Strings(roms)
	return roms, nil
}

// Parse extracts the metadata of one ROM with a fresh parser sharing ks.
// Panics inside the parser are converted into failures.
func (s *Scanner) Parse(ks *keys.KeySet, path string) (res Result) {
	cfg := s.config()
	res = Result{RomPath: path, Format: root.FormatFromPath(path)}

	if info, err := s.fs.Stat(path); err == nil {
		res.FileSize = info.Size()
	}

	p := parser.New(
		parser.WithFs(s.fs),
		parser.WithKeys(ks),
		parser.WithLogger(s.log.With("rom", path)),
		parser.WithLanguages(cfg.NameLanguage(), cfg.IconLanguage()),
		parser.WithPromptsForUser(cfg.PromptsForUser()),
	)
	defer p.Close()

	defer func() {
		if r := recover(); r != nil {
			res.Err = &parser.Error{Op: "LoadAndReadEverything", Code: parser.CodeUnknown, Kind: parser.ErrDecodeFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	res.Err = p.LoadAndReadEverything(path)
	res.Metadata = p.Result()
	return res
}

// Scan parses every ROM of the library in parallel and writes the results to
// the store. Only errors that prevent the scan as a whole (missing keys,
// unreadable library, store failures) are returned. Concurrent calls run one
// after the other so a run never prunes rows written by another.
func (s *Scanner) Scan(ctx context.Context) (*Summary, error) {
	s.running.Lock()
	defer s.running.Unlock()

	start := time.Now()
	cfg := s.config()

	ks, err := s.LoadKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}

	roms, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}

	run := &database.ScanRun{ID: uuid.New().String(), RomsDir: cfg.Library.RomsDir}
	if err := s.store.StartScanRun(ctx, run); err != nil {
		return nil, err
	}

	s.progress.start(run.ID, len(roms))
	defer s.progress.finish()

	slog.InfoContext(ctx, "Scan started", "scan_id", run.ID, "roms", len(roms), "max_workers", cfg.Scan.MaxWorkers)

	p := concpool.NewWithResults[Result]().WithContext(ctx).WithMaxGoroutines(cfg.Scan.MaxWorkers)
	for _, path := range roms {
		p.Go(func(ctx context.Context) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			res := s.Parse(ks, path)
			s.progress.record(res)
			if err := s.record(ctx, cfg, run.ID, res); err != nil {
				return res, err
			}
			return res, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("scan %s aborted: %w", run.ID, err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].RomPath < results[j].RomPath })
	summary := &Summary{RunID: run.ID, Results: results}
	for _, r := range results {
		if r.Err != nil {
			summary.Failed++
		} else {
			summary.Scanned++
		}
	}

	pruned, err := s.store.DeleteTitlesNotSeen(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	summary.Pruned = pruned

	run.Scanned, run.Failed = summary.Scanned, summary.Failed
	if err := s.store.FinishScanRun(ctx, run); err != nil {
		return nil, err
	}

	summary.Duration = time.Since(start)
	slog.InfoContext(ctx, "Scan finished",
		"scan_id", run.ID,
		"scanned", summary.Scanned,
		"failed", summary.Failed,
		"pruned", summary.Pruned,
		"duration", summary.Duration)
	return summary, nil
}

func (s *Scanner) record(ctx context.Context, cfg *config.Config, runID string, res Result) error {
	relPath := pathutil.RelativeTo(cfg.Library.RomsDir, res.RomPath)

	if res.Err != nil {
		s.log.WarnContext(ctx, "ROM failed", "rom", relPath, "code", res.Code(), "err", res.Err)
		return s.store.RecordFailure(ctx, &database.ScanFailure{
			RomPath: relPath,
			Code:    res.Code().String(),
			Message: res.Err.Error(),
			ScanID:  runID,
		})
	}

	title, err := ToTitle(res)
	if err != nil {
		return err
	}
	title.RomPath = relPath
	title.ScanID = runID

	s.log.DebugContext(ctx, "ROM catalogued", "rom", relPath, "title_id", title.TitleID, "name", title.Name)
	return s.store.UpsertTitle(ctx, title)
}

// ToTitle maps a successful result onto a catalog row.
func ToTitle(res Result) (*database.Title, error) {
	if res.Err != nil {
		return nil, errors.New("cannot catalog a failed ROM")
	}

	title := &database.Title{}
	if err := copier.CopyWithOption(title, &res.Metadata, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("failed to map metadata: %w", err)
	}
	title.RomPath = res.RomPath
	title.TitleID = res.Metadata.ID.Hex()
	title.Format = res.Format.String()
	title.FileSize = res.FileSize
	title.HasIcon = res.Metadata.HasIcon()
	return title, nil
}
