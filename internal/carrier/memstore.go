package carrier

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryNumberStore is an in-process NumberStore used in simulation mode and
// tests. Safe for concurrent use.
type MemoryNumberStore struct {
	mu      sync.RWMutex
	records map[string]*ProvisionedNumber
}

func NewMemoryNumberStore() *MemoryNumberStore {
	return &MemoryNumberStore{records: make(map[string]*ProvisionedNumber)}
}

func (s *MemoryNumberStore) Create(ctx context.Context, rec *ProvisionedNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == StatusActive {
		if err := s.checkActiveInvariantsLocked(rec); err != nil {
			return err
		}
	}
	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *MemoryNumberStore) Update(ctx context.Context, rec *ProvisionedNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		return ErrNumberNotFound
	}
	if rec.Status == StatusActive {
		if err := s.checkActiveInvariantsLocked(rec); err != nil {
			return err
		}
	}
	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *MemoryNumberStore) ByID(ctx context.Context, id string) (*ProvisionedNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNumberNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryNumberStore) ActiveByNumber(ctx context.Context, number string) (*ProvisionedNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Status == StatusActive && !rec.Universal && rec.Number == number {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, ErrNumberNotFound
}

func (s *MemoryNumberStore) ActiveByExtension(ctx context.Context, code string) (*ProvisionedNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if code == "" {
		return nil, ErrNumberNotFound
	}
	for _, rec := range s.records {
		if rec.Status == StatusActive && rec.ExtensionCode == code {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, ErrNumberNotFound
}

func (s *MemoryNumberStore) ExtensionInUse(ctx context.Context, code string) (bool, error) {
	_, err := s.ActiveByExtension(ctx, code)
	if err == ErrNumberNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// checkActiveInvariantsLocked enforces the active-number uniqueness rules
// before a record enters (or stays in) the active state.
func (s *MemoryNumberStore) checkActiveInvariantsLocked(rec *ProvisionedNumber) error {
	for id, other := range s.records {
		if id == rec.ID || other.Status != StatusActive {
			continue
		}
		if !rec.Universal && !other.Universal && other.Number == rec.Number {
			return ErrNumberConflict
		}
		if rec.ExtensionCode != "" && other.ExtensionCode == rec.ExtensionCode {
			return ErrNumberConflict
		}
	}
	return nil
}
