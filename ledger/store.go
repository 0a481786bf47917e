package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/logger"
	"github.com/ferryline/photoferry/model"
)

// Store persists the ledger document. Save must be atomic: a crash at any
// point leaves either the previous document or the new one on disk, never
// a mix.
type Store interface {
	Load() (*model.Ledger, error)
	Save(l *model.Ledger) error
}

// FileStore keeps the ledger as a single JSON document. Load fails soft:
// a missing or unreadable document yields a fresh empty ledger so a
// damaged state file can never block a run.
type FileStore struct {
	path string
	log  logger.Logger
}

// NewFileStore creates a file-backed store at the configured path.
func NewFileStore(cfg *config.LedgerConfig, log logger.Logger) *FileStore {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &FileStore{path: cfg.Path, log: log}
}

// Load reads the document from disk. Missing and malformed documents both
// produce a fresh empty ledger; only the malformed case is logged.
func (s *FileStore) Load() (*model.Ledger, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("ledger unreadable, starting fresh: %v", err)
		}
		return model.NewLedger(), nil
	}

	doc := model.NewLedger()
	if err := json.Unmarshal(data, doc); err != nil {
		s.log.Warn("ledger corrupt, starting fresh: %v", err)
		return model.NewLedger(), nil
	}
	if doc.Records == nil {
		doc.Records = make(map[string]*model.TransferRecord)
	}
	if doc.SchemaVersion > model.LedgerSchemaVersion {
		s.log.Warn("ledger schema version %d is newer than this build understands (%d)",
			doc.SchemaVersion, model.LedgerSchemaVersion)
	}
	return doc, nil
}

// Save writes the document to a temporary file in the same directory,
// syncs it, and renames it over the previous document.
func (s *FileStore) Save(l *model.Ledger) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write ledger temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync ledger temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close ledger temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Ensure FileStore implements Store interface
var _ Store = (*FileStore)(nil)
