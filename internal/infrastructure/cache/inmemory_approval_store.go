package cache

import (
	"context"
	"sync"
	"time"

	"github.com/coopledger/backend/internal/domain/approval"
)

// InMemoryApprovalStore keeps pending requests in process memory.
// Suitable for single-instance deployments and tests.
type InMemoryApprovalStore struct {
	mu        sync.Mutex
	entries   map[string]approval.PendingRequest
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	now       func() time.Time
}

// NewInMemoryApprovalStore creates the store and starts its cleanup loop
func NewInMemoryApprovalStore() *InMemoryApprovalStore {
	store := &InMemoryApprovalStore{
		entries:  make(map[string]approval.PendingRequest),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Put stores the request unless the code is already live
func (s *InMemoryApprovalStore) Put(ctx context.Context, req *approval.PendingRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !now.Before(req.ExpiresAt) {
		return false, approval.ErrExpired
	}
	if e, exists := s.entries[req.Code]; exists && now.Before(e.ExpiresAt) {
		return false, nil
	}
	s.entries[req.Code] = *req
	return true, nil
}

// Get returns a live request without consuming it
func (s *InMemoryApprovalStore) Get(ctx context.Context, code string) (*approval.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(code)
}

// Take removes and returns a live request
func (s *InMemoryApprovalStore) Take(ctx context.Context, code string) (*approval.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.lookup(code)
	if err != nil {
		return nil, err
	}
	delete(s.entries, code)
	return req, nil
}

// lookup must be called with mu held
func (s *InMemoryApprovalStore) lookup(code string) (*approval.PendingRequest, error) {
	e, exists := s.entries[code]
	if !exists {
		return nil, approval.ErrNotFound
	}
	if !s.now().Before(e.ExpiresAt) {
		delete(s.entries, code)
		return nil, approval.ErrExpired
	}
	req := e
	return &req, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryApprovalStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryApprovalStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryApprovalStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for code, e := range s.entries {
		if !now.Before(e.ExpiresAt) {
			delete(s.entries, code)
		}
	}
}

// Size returns the number of entries in the store (for testing/monitoring)
func (s *InMemoryApprovalStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ approval.Store = (*InMemoryApprovalStore)(nil)
