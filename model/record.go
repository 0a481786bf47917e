package model

import "time"

// LedgerSchemaVersion is written into every persisted ledger document.
// Documents with older versions load with zero-value defaults for any
// field they predate.
const LedgerSchemaVersion = 1

// TransferRecord is the persistent unit of truth for one remote file,
// keyed by the file's absolute remote path.
type TransferRecord struct {
	Status      TransferStatus `json:"status"`
	Size        int64          `json:"size"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	FirstFailed time.Time      `json:"first_failed,omitzero"`
	LastFailed  time.Time      `json:"last_failed,omitzero"`
	Album       string         `json:"album,omitempty"`
	MediaKey    string         `json:"media_key,omitempty"`
}

// LedgerStats aggregates counters across the lifetime of a ledger.
type LedgerStats struct {
	TotalUploaded int64 `json:"total_uploaded"`
	TotalFailed   int64 `json:"total_failed"`
	TotalBytes    int64 `json:"total_bytes"`
}

// Ledger is the durable transfer state document. It is owned by exactly
// one orchestrator pass at a time and persisted after every mutation.
type Ledger struct {
	SchemaVersion int                        `json:"schema_version"`
	LastUpdated   time.Time                  `json:"last_updated"`
	LastRunID     string                     `json:"last_run_id,omitempty"`
	Records       map[string]*TransferRecord `json:"records"`
	Stats         LedgerStats                `json:"stats"`
}

// NewLedger returns an empty ledger at the current schema version.
func NewLedger() *Ledger {
	return &Ledger{
		SchemaVersion: LedgerSchemaVersion,
		Records:       make(map[string]*TransferRecord),
	}
}

// Record returns the record for path, or nil when the path was never
// attempted.
func (l *Ledger) Record(path string) *TransferRecord {
	return l.Records[path]
}

// CountByStatus tallies records per status.
func (l *Ledger) CountByStatus() map[TransferStatus]int {
	counts := make(map[TransferStatus]int)
	for _, rec := range l.Records {
		counts[rec.Status]++
	}
	return counts
}
