package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory catalogue, used in tests and local development.
type MemoryStore struct {
	mu         sync.RWMutex
	frameworks map[uuid.UUID]Framework
	controls   map[uuid.UUID]Control
	domains    map[uuid.UUID]Domain
	practices  map[uuid.UUID]Practice
}

// NewMemoryStore creates an empty in-memory catalogue.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		frameworks: make(map[uuid.UUID]Framework),
		controls:   make(map[uuid.UUID]Control),
		domains:    make(map[uuid.UUID]Domain),
		practices:  make(map[uuid.UUID]Practice),
	}
}

// AddFramework seeds a framework.
func (s *MemoryStore) AddFramework(f Framework) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameworks[f.ID] = f
}

// AddControl seeds a control.
func (s *MemoryStore) AddControl(c Control) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls[c.ID] = c
}

// AddDomain seeds a domain.
func (s *MemoryStore) AddDomain(d Domain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains[d.ID] = d
}

// AddPractice seeds a practice.
func (s *MemoryStore) AddPractice(p Practice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.practices[p.ID] = p
}

func (s *MemoryStore) ListFrameworks(_ context.Context) ([]Framework, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Framework
	for _, f := range s.frameworks {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetFramework(_ context.Context, id uuid.UUID) (*Framework, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.frameworks[id]
	if !ok {
		return nil, fmt.Errorf("framework %s: %w", id, ErrNotFound)
	}
	return &f, nil
}

func (s *MemoryStore) ListControls(ctx context.Context, frameworkID uuid.UUID) ([]Control, error) {
	if _, err := s.GetFramework(ctx, frameworkID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Control
	for _, c := range s.controls {
		if c.FrameworkID == frameworkID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemoryStore) GetControl(_ context.Context, id uuid.UUID) (*Control, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.controls[id]
	if !ok {
		return nil, fmt.Errorf("control %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (s *MemoryStore) ListDomains(_ context.Context) ([]Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Domain
	for _, d := range s.domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemoryStore) ListPractices(_ context.Context) ([]Practice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Practice
	for _, p := range s.practices {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TargetTier != out[j].TargetTier {
			return out[i].TargetTier < out[j].TargetTier
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *MemoryStore) GetPractice(_ context.Context, id uuid.UUID) (*Practice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.practices[id]
	if !ok {
		return nil, fmt.Errorf("practice %s: %w", id, ErrNotFound)
	}
	return &p, nil
}
