package discovery

import (
	"context"
	"fmt"
	"sort"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/logger"
	"github.com/ferryline/photoferry/model"
)

// Lister enumerates a single directory level of the remote namespace.
type Lister interface {
	List(ctx context.Context, dir string) ([]model.RemoteEntry, []string, error)
}

// Walker enumerates the remote tree and selects transfer candidates by
// size window and extension allow-list.
type Walker struct {
	lister Lister
	cfg    *config.DiscoveryConfig
	exts   map[string]struct{}
	log    logger.Logger
}

// NewWalker creates a new walker over the given lister.
func NewWalker(lister Lister, cfg *config.DiscoveryConfig, log logger.Logger) (*Walker, error) {
	if lister == nil {
		return nil, fmt.Errorf("lister is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid discovery config: %w", err)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[ext] = struct{}{}
	}

	return &Walker{
		lister: lister,
		cfg:    cfg,
		exts:   exts,
		log:    log,
	}, nil
}

// Discover walks the tree rooted at root depth-first and returns the
// matching files ordered smallest first, so short transfers land before
// the run budget expires. A listing error on one subtree skips that
// subtree only; the rest of the walk continues.
func (w *Walker) Discover(ctx context.Context, root string) ([]model.RemoteEntry, error) {
	var candidates []model.RemoteEntry
	var seen, skippedDirs int

	stack := []string{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		files, dirs, err := w.lister.List(ctx, dir)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			w.log.Warn("Skipping subtree %s: %v", dir, err)
			skippedDirs++
			continue
		}

		// Push in reverse so subtrees are visited in listing order.
		for i := len(dirs) - 1; i >= 0; i-- {
			stack = append(stack, dirs[i])
		}

		for _, f := range files {
			seen++
			if w.matches(f) {
				candidates = append(candidates, f)
			} else {
				w.log.Verbose("Filtered out %s (size=%d ext=%s)", f.Path, f.Size, f.Ext)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Size != candidates[j].Size {
			return candidates[i].Size < candidates[j].Size
		}
		return candidates[i].Path < candidates[j].Path
	})

	w.log.Info("Discovery finished: %d candidates out of %d files (%d subtrees skipped)",
		len(candidates), seen, skippedDirs)

	return candidates, nil
}

func (w *Walker) matches(e model.RemoteEntry) bool {
	if e.Size < w.cfg.MinFileSize || e.Size > w.cfg.MaxFileSize {
		return false
	}
	if len(w.exts) == 0 {
		return true
	}
	_, ok := w.exts[e.Ext]
	return ok
}
