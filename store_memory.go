package auth

import (
	"context"
	"sync"
)

// MemoryStore is a CredentialStore kept in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]UserRecord
}

var _ CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore seeds a store with records. Records with a duplicate
// email replace earlier ones.
func NewMemoryStore(records ...UserRecord) *MemoryStore {
	s := &MemoryStore{byEmail: make(map[string]UserRecord, len(records))}
	for _, r := range records {
		r.Email = NormalizeEmail(r.Email)
		if r.ID == "" {
			r.ID = NewRecordID()
		}
		s.byEmail[r.Email] = r
	}
	return s
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	r, ok := s.byEmail[NormalizeEmail(email)]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrRecordNotFound
	}
	return &r, nil
}

func (s *MemoryStore) Create(ctx context.Context, record *UserRecord) (*UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrMissingField
	}

	r := *record
	r.Email = NormalizeEmail(r.Email)
	if r.Email == "" {
		return nil, ErrMissingField
	}
	if r.ID == "" {
		r.ID = NewRecordID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[r.Email]; exists {
		return nil, ErrEmailTaken
	}
	s.byEmail[r.Email] = r

	return &r, nil
}

// Len returns the number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byEmail)
}
