package space

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ferryline/photoferry/logger"
)

// Guard authorizes new downloads against the free space of the working
// directory's filesystem, keeping a safety margin in reserve for
// temporary files and block rounding.
type Guard struct {
	dir    string
	margin int64
	log    logger.Logger

	// replaced in tests
	freeBytes func(path string) (int64, error)
}

// NewGuard creates a guard over the filesystem containing dir.
func NewGuard(dir string, marginBytes int64, log logger.Logger) *Guard {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Guard{
		dir:       dir,
		margin:    marginBytes,
		log:       log,
		freeBytes: statfsFree,
	}
}

// Authorize reports whether a file of the given size fits alongside the
// safety margin. The returned free byte count reflects the probe used
// for the decision.
func (g *Guard) Authorize(size int64) (bool, int64, error) {
	free, err := g.freeBytes(g.dir)
	if err != nil {
		return false, 0, err
	}

	ok := free-g.margin >= size
	if !ok {
		g.log.Warn("Not enough space for %d bytes: %d free, %d margin", size, free, g.margin)
	}
	return ok, free, nil
}

func statfsFree(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
