package ledger

import (
	"encoding/json"

	"github.com/ferryline/photoferry/model"
)

// MemoryStore keeps the document in memory with copy-on-save semantics,
// so what Load returns reflects the last Save and nothing newer. Used in
// tests as a stand-in for the durable store.
type MemoryStore struct {
	saved []byte

	// SaveErr, when set, is returned by every Save call.
	SaveErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load decodes the last saved document, or returns a fresh ledger when
// nothing was saved yet.
func (s *MemoryStore) Load() (*model.Ledger, error) {
	if s.saved == nil {
		return model.NewLedger(), nil
	}
	doc := model.NewLedger()
	if err := json.Unmarshal(s.saved, doc); err != nil {
		return nil, err
	}
	if doc.Records == nil {
		doc.Records = make(map[string]*model.TransferRecord)
	}
	return doc, nil
}

// Save snapshots the document.
func (s *MemoryStore) Save(l *model.Ledger) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	s.saved = data
	return nil
}

// Saved reports whether any document was persisted.
func (s *MemoryStore) Saved() bool { return s.saved != nil }

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)
