package dispatch

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/ferryline/photoferry/logger"
	"github.com/ferryline/photoferry/model"
	"github.com/ferryline/photoferry/uploader"
)

// Authorizer is the disk budget check used when deciding whether a local
// artifact may stay on disk after a failed upload.
type Authorizer interface {
	Authorize(size int64) (bool, int64, error)
}

// Result reports a successful dispatch: the grouping applied and the
// collaborator's confirmation token, both destined for the ledger.
type Result struct {
	Album    string
	MediaKey string
}

// Dispatcher hands fully retrieved files to the upload collaborator and
// manages the local artifact's lifecycle around the outcome.
type Dispatcher struct {
	uploader uploader.Provider
	guard    Authorizer
	log      logger.Logger
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(up uploader.Provider, guard Authorizer, log logger.Logger) (*Dispatcher, error) {
	if up == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("space guard is required")
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Dispatcher{uploader: up, guard: guard, log: log}, nil
}

// Dispatch uploads localPath under the album derived from the entry's
// remote path. On success the local artifact is deleted to reclaim
// space; on failure it is kept for the next attempt only while the disk
// budget allows it.
func (d *Dispatcher) Dispatch(ctx context.Context, localPath string, entry model.RemoteEntry) (*Result, error) {
	album := AlbumKey(entry.Path)

	res, err := d.uploader.Upload(ctx, localPath, album)
	if err != nil {
		d.reclaimOrKeep(localPath)
		return nil, fmt.Errorf("upload %s: %w", entry.Path, err)
	}

	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		d.log.Warn("Failed to delete local file %s: %v", localPath, err)
	}

	d.log.Info("Dispatched %s (album=%q, key=%s)", entry.Path, album, res.MediaKey)
	return &Result{Album: album, MediaKey: res.MediaKey}, nil
}

// reclaimOrKeep decides the fate of an artifact whose upload failed.
// Keeping it must not eat into the safety margin.
func (d *Dispatcher) reclaimOrKeep(localPath string) {
	ok, free, err := d.guard.Authorize(0)
	if err != nil {
		d.log.Warn("Disk probe failed, deleting %s: %v", localPath, err)
		os.Remove(localPath)
		return
	}
	if !ok {
		d.log.Warn("Disk budget exhausted (%d bytes free), deleting %s", free, localPath)
		os.Remove(localPath)
		return
	}
	d.log.Info("Keeping %s for the next attempt", localPath)
}

// AlbumKey returns the destination grouping for a remote path: the
// directory above the file, with the leading slash removed. A file at
// the remote root has no grouping and yields "".
func AlbumKey(remotePath string) string {
	dir := path.Dir(remotePath)
	if dir == "/" || dir == "." {
		return ""
	}
	return strings.TrimPrefix(dir, "/")
}
