package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ferryline/photoferry/logger"
	"github.com/ferryline/photoferry/model"
)

// Manager owns the loaded ledger document for the duration of a pass and
// applies one status transition per call. Every transition is persisted
// before the call returns; callers never batch, so a kill at any point
// loses at most the file currently in flight.
type Manager struct {
	store Store
	doc   *model.Ledger
	log   logger.Logger
}

// NewManager loads the document from the store.
func NewManager(store Store, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	doc, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return &Manager{store: store, doc: doc, log: log}, nil
}

// Ledger exposes the loaded document for read-only inspection.
func (m *Manager) Ledger() *model.Ledger { return m.doc }

// Record returns the record for path, or nil when never attempted.
func (m *Manager) Record(path string) *model.TransferRecord {
	return m.doc.Record(path)
}

// SetRunID stamps the current pass id into the document.
func (m *Manager) SetRunID(id string) error {
	m.doc.LastRunID = id
	return m.save()
}

// MarkInProgress moves a record into the single in-flight slot.
func (m *Manager) MarkInProgress(path string, size int64) error {
	rec := m.record(path, size)
	rec.Status = model.StatusInProgress
	return m.save()
}

// MarkCompleted records a successful transfer with its album key and
// upload confirmation token.
func (m *Manager) MarkCompleted(path string, size int64, album, mediaKey string) error {
	rec := m.record(path, size)
	rec.Status = model.StatusCompleted
	rec.Album = album
	rec.MediaKey = mediaKey
	rec.LastError = ""
	m.doc.Stats.TotalUploaded++
	m.doc.Stats.TotalBytes += size
	return m.save()
}

// MarkFailed records one failed attempt. The attempt counter spans runs
// and drives the permanent-skip decision.
func (m *Manager) MarkFailed(path string, size int64, reason string) error {
	rec := m.record(path, size)
	now := time.Now().UTC()
	rec.Status = model.StatusFailed
	rec.Attempts++
	rec.LastError = reason
	if rec.FirstFailed.IsZero() {
		rec.FirstFailed = now
	}
	rec.LastFailed = now
	m.doc.Stats.TotalFailed++
	return m.save()
}

// MarkSkipped parks a record terminally with the reason it was excluded.
func (m *Manager) MarkSkipped(path string, size int64, reason string) error {
	rec := m.record(path, size)
	rec.Status = model.StatusSkipped
	rec.LastError = reason
	return m.save()
}

func (m *Manager) record(path string, size int64) *model.TransferRecord {
	rec := m.doc.Records[path]
	if rec == nil {
		rec = &model.TransferRecord{}
		m.doc.Records[path] = rec
	}
	if size > 0 {
		rec.Size = size
	}
	return rec
}

func (m *Manager) save() error {
	m.doc.LastUpdated = time.Now().UTC()
	if err := m.store.Save(m.doc); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// Summary formats a human-readable account of the document: counts per
// status, aggregate stats, and the most recent failure reasons.
func (m *Manager) Summary() string {
	counts := m.doc.CountByStatus()

	var b strings.Builder
	fmt.Fprintf(&b, "records: %d\n", len(m.doc.Records))
	fmt.Fprintf(&b, "  completed:   %d\n", counts[model.StatusCompleted])
	fmt.Fprintf(&b, "  failed:      %d\n", counts[model.StatusFailed])
	fmt.Fprintf(&b, "  in_progress: %d\n", counts[model.StatusInProgress])
	fmt.Fprintf(&b, "  skipped:     %d\n", counts[model.StatusSkipped])
	fmt.Fprintf(&b, "uploaded: %d files, %d bytes, %d failures recorded\n",
		m.doc.Stats.TotalUploaded, m.doc.Stats.TotalBytes, m.doc.Stats.TotalFailed)

	type failure struct {
		path string
		rec  *model.TransferRecord
	}
	var failures []failure
	for path, rec := range m.doc.Records {
		if rec.Status == model.StatusFailed {
			failures = append(failures, failure{path, rec})
		}
	}
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].rec.LastFailed.After(failures[j].rec.LastFailed)
	})
	if len(failures) > 5 {
		failures = failures[:5]
	}
	for _, f := range failures {
		fmt.Fprintf(&b, "  failed %s (%d attempts): %s\n", f.path, f.rec.Attempts, f.rec.LastError)
	}
	return b.String()
}
