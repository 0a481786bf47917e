package model

// TransferStatus values serialize as stable strings so ledger documents
// written by older builds stay readable.
type TransferStatus string

const (
	StatusInProgress TransferStatus = "in_progress"
	StatusCompleted  TransferStatus = "completed"
	StatusFailed     TransferStatus = "failed"
	StatusSkipped    TransferStatus = "skipped"
)

// Terminal reports whether a record in this status is never attempted again.
func (s TransferStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}
