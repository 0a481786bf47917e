package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/dispatch"
	"github.com/ferryline/photoferry/ledger"
	"github.com/ferryline/photoferry/logger"
	"github.com/ferryline/photoferry/model"
)

// Discoverer produces the transfer candidates for one pass.
type Discoverer interface {
	Discover(ctx context.Context, root string) ([]model.RemoteEntry, error)
}

// Fetcher downloads one remote file to local storage.
type Fetcher interface {
	Fetch(ctx context.Context, entry model.RemoteEntry, localPath string) error
}

// Dispatcher hands a retrieved file to the upload collaborator.
type Dispatcher interface {
	Dispatch(ctx context.Context, localPath string, entry model.RemoteEntry) (*dispatch.Result, error)
}

// Authorizer is the disk budget check run before each download.
type Authorizer interface {
	Authorize(size int64) (bool, int64, error)
}

// Observer receives every discovered entry, for inventory keeping.
type Observer interface {
	Observe(e model.RemoteEntry) error
}

// Deps bundles the collaborators a Runner drives. Catalog is optional;
// everything else is required.
type Deps struct {
	Ledger     *ledger.Manager
	Discoverer Discoverer
	Guard      Authorizer
	Fetcher    Fetcher
	Dispatcher Dispatcher
	Catalog    Observer
}

// Runner drives one sequential transfer pass. Exactly one file is in
// flight at any moment, and the ledger is saved after every transition,
// so a kill at any point loses at most the current file.
type Runner struct {
	ledger     *ledger.Manager
	discoverer Discoverer
	guard      Authorizer
	fetcher    Fetcher
	dispatcher Dispatcher
	catalog    Observer
	logger     logger.Logger

	cfg    *config.TransferConfig
	root   string
	dryRun bool
	runID  string
	budget time.Duration

	// replaced in tests
	clock func() time.Time
}

// NewRunner creates a new Runner with the provided dependencies.
func NewRunner(deps Deps, cfg *config.TransferConfig, root string, dryRun bool, log logger.Logger) (*Runner, error) {
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger manager is required")
	}
	if deps.Discoverer == nil {
		return nil, fmt.Errorf("discoverer is required")
	}
	if deps.Guard == nil {
		return nil, fmt.Errorf("space guard is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transfer config: %w", err)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Runner{
		ledger:     deps.Ledger,
		discoverer: deps.Discoverer,
		guard:      deps.Guard,
		fetcher:    deps.Fetcher,
		dispatcher: deps.Dispatcher,
		catalog:    deps.Catalog,
		logger:     log,
		cfg:        cfg,
		root:       root,
		dryRun:     dryRun,
		runID:      uuid.NewString(),
		budget:     time.Duration(cfg.MaxRuntimeSeconds) * time.Second,
		clock:      time.Now,
	}, nil
}

// RunID identifies this pass in logs and in the ledger.
func (r *Runner) RunID() string { return r.runID }

// RunStats contains statistics from one orchestrator pass.
type RunStats struct {
	Discovered       int64 // Candidates produced by discovery
	PriorCompleted   int64 // Skipped because a previous run completed them
	PriorSkipped     int64 // Skipped because a previous run parked them
	CapSkipped       int64 // Parked permanently after exceeding the attempt cap
	SpaceSkipped     int64 // Rejected by the space guard
	LocalErrors      int64 // Files passed over due to local environment errors
	Completed        int64 // Transferred and confirmed this run
	Failed           int64 // Failed this run (retryable)
	WouldTransfer    int64 // Files that would be transferred (dry-run mode)
	WouldSkip        int64 // Files that would be parked (dry-run mode)
	BytesTransferred int64 // Bytes confirmed uploaded this run
	BudgetStopped    bool  // Pass ended on the wall-clock budget
	DryRun           bool
}

func (s *RunStats) String() string {
	if s.DryRun {
		return fmt.Sprintf("Run (dry-run): discovered=%d, would_transfer=%d, would_skip=%d, prior_completed=%d, prior_skipped=%d",
			s.Discovered, s.WouldTransfer, s.WouldSkip, s.PriorCompleted, s.PriorSkipped)
	}
	gb := float64(s.BytesTransferred) / (1024 * 1024 * 1024)
	return fmt.Sprintf("Run: discovered=%d, completed=%d, failed=%d, space_skipped=%d, cap_skipped=%d, prior_completed=%d, prior_skipped=%d, transferred=%d bytes (%.2f GB)",
		s.Discovered, s.Completed, s.Failed, s.SpaceSkipped, s.CapSkipped, s.PriorCompleted, s.PriorSkipped, s.BytesTransferred, gb)
}

// Run executes one pass: discovery, then the sequential per-file state
// machine, stopping early when the wall-clock budget runs out. The
// returned error is nil unless the pass was cancelled or the ledger
// store failed; per-file failures are absorbed into the stats.
func (r *Runner) Run(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{DryRun: r.dryRun}
	start := r.clock()

	mode := ""
	if r.dryRun {
		mode = " (dry-run)"
	}
	r.logger.Info("Starting transfer run %s%s", r.runID, mode)

	if err := os.MkdirAll(r.cfg.WorkDir, 0755); err != nil {
		return stats, fmt.Errorf("create work dir: %w", err)
	}

	if !r.dryRun {
		if err := r.ledger.SetRunID(r.runID); err != nil {
			return stats, err
		}
	}

	r.logger.Debug("Step 1: Discovering candidates under %s", r.root)
	entries, err := r.discoverer.Discover(ctx, r.root)
	if err != nil {
		r.logger.Error("Discovery failed: %v", err)
		return stats, err
	}
	stats.Discovered = int64(len(entries))

	if r.catalog != nil {
		for _, e := range entries {
			if err := r.catalog.Observe(e); err != nil {
				r.logger.Warn("Inventory update failed for %s: %v", e.Path, err)
				break
			}
		}
	}

	r.logger.Debug("Step 2: Processing %d candidates", len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("Run cancelled: %v", err)
			return stats, err
		}
		if r.budget > 0 && r.clock().Sub(start) >= r.budget {
			r.logger.Info("Wall-clock budget of %s reached, stopping before %s", r.budget, entry.Path)
			stats.BudgetStopped = true
			break
		}

		if err := r.processEntry(ctx, entry, stats); err != nil {
			r.logger.Error("Aborting run: %v", err)
			return stats, err
		}
	}

	r.logger.Info(stats.String())
	return stats, nil
}

// processEntry runs the state machine for one candidate. A non-nil
// return aborts the whole pass and is reserved for cancellation and for
// ledger-store failures, which are fatal because resumption correctness
// depends on durable state.
func (r *Runner) processEntry(ctx context.Context, entry model.RemoteEntry, stats *RunStats) error {
	if rec := r.ledger.Record(entry.Path); rec != nil {
		switch {
		case rec.Status == model.StatusCompleted:
			r.logger.Verbose("Skipping %s: already completed", entry.Path)
			stats.PriorCompleted++
			return nil
		case rec.Status == model.StatusSkipped:
			r.logger.Verbose("Skipping %s: previously excluded (%s)", entry.Path, rec.LastError)
			stats.PriorSkipped++
			return nil
		case rec.Status == model.StatusFailed && rec.Attempts >= r.cfg.AttemptCap:
			r.logger.Warn("Excluding %s permanently after %d attempts: %s", entry.Path, rec.Attempts, rec.LastError)
			stats.CapSkipped++
			if r.dryRun {
				stats.WouldSkip++
				return nil
			}
			return r.ledger.MarkSkipped(entry.Path, entry.Size, fmt.Sprintf("attempt cap reached after %d attempts", rec.Attempts))
		}
	}

	ok, free, err := r.guard.Authorize(entry.Size)
	if err != nil {
		// Environment trouble, not a transfer failure. Leave no record
		// so a later pass reconsiders the file.
		r.logger.Error("Space probe failed for %s: %v", entry.Path, err)
		stats.LocalErrors++
		return nil
	}
	if !ok {
		r.logger.Warn("Skipping %s: needs %d bytes, %d free", entry.Path, entry.Size, free)
		stats.SpaceSkipped++
		if r.dryRun {
			stats.WouldSkip++
			return nil
		}
		return r.ledger.MarkSkipped(entry.Path, entry.Size, fmt.Sprintf("insufficient space: file needs %d bytes, %d free", entry.Size, free))
	}

	if r.dryRun {
		r.logger.Info("[dry-run] Would transfer %s (%d bytes, album=%q)", entry.Path, entry.Size, dispatch.AlbumKey(entry.Path))
		stats.WouldTransfer++
		return nil
	}

	localDir, localPath := r.localPathFor(entry)
	if err := os.MkdirAll(localDir, 0755); err != nil {
		r.logger.Error("Cannot create artifact dir for %s: %v", entry.Path, err)
		stats.LocalErrors++
		return nil
	}

	r.logger.Info("Transferring %s (%d bytes)", entry.Path, entry.Size)

	if err := r.ledger.MarkInProgress(entry.Path, entry.Size); err != nil {
		return err
	}

	if err := r.fetcher.Fetch(ctx, entry, localPath); err != nil {
		if ctx.Err() != nil {
			// The record stays in-progress; the next run re-attempts it
			// as if freshly discovered.
			return ctx.Err()
		}
		if lerr := r.ledger.MarkFailed(entry.Path, entry.Size, err.Error()); lerr != nil {
			return lerr
		}
		stats.Failed++
		r.pruneKeptPartial(localPath)
		return nil
	}

	res, err := r.dispatcher.Dispatch(ctx, localPath, entry)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lerr := r.ledger.MarkFailed(entry.Path, entry.Size, err.Error()); lerr != nil {
			return lerr
		}
		stats.Failed++
		r.removeDirIfEmpty(localDir)
		return nil
	}

	if err := r.ledger.MarkCompleted(entry.Path, entry.Size, res.Album, res.MediaKey); err != nil {
		return err
	}
	stats.Completed++
	stats.BytesTransferred += entry.Size
	r.removeDirIfEmpty(localDir)
	return nil
}

// pruneKeptPartial deletes a partial download left after a failed fetch
// when keeping it would eat into the safety margin.
func (r *Runner) pruneKeptPartial(localPath string) {
	if _, err := os.Stat(localPath); err != nil {
		r.removeDirIfEmpty(filepath.Dir(localPath))
		return
	}
	ok, _, err := r.guard.Authorize(0)
	if err == nil && ok {
		r.logger.Debug("Keeping partial %s for the next attempt", localPath)
		return
	}
	r.logger.Warn("Disk budget exhausted, dropping partial %s", localPath)
	os.Remove(localPath)
	r.removeDirIfEmpty(filepath.Dir(localPath))
}

func (r *Runner) removeDirIfEmpty(dir string) {
	os.Remove(dir)
}

// localPathFor places each artifact in a directory keyed by its remote
// path, so same-named files from different remote directories cannot
// collide or cross-resume.
func (r *Runner) localPathFor(entry model.RemoteEntry) (string, string) {
	sum := sha256.Sum256([]byte(entry.Path))
	dir := filepath.Join(r.cfg.WorkDir, hex.EncodeToString(sum[:4]))
	return dir, filepath.Join(dir, sanitizeName(entry.Name))
}

// sanitizeName keeps letters, digits, and "._- " so a remote name is
// safe as a local filename.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._- ", r) {
			b.WriteRune(r)
		}
	}
	switch s := b.String(); s {
	case "", ".", "..":
		return "unnamed"
	default:
		return s
	}
}
