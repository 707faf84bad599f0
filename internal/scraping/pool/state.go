package pool

import "sync"

// RequestState carries the per-request bookkeeping the pool needs: which
// credentials already failed during this request, and which ones were
// recovered by probing. It exists because store writes are eventually
// consistent from the pool's viewpoint — a credential that just failed may
// still read active from the store, so the same-request exclusion lives
// here instead.
//
// Each incoming request constructs a fresh state and threads it through its
// own call tree only; nothing is shared across requests.
type RequestState struct {
	mu        sync.Mutex
	failed    map[string]struct{}
	recovered map[string]struct{}
}

// NewRequestState creates empty per-request state.
func NewRequestState() *RequestState {
	return &RequestState{
		failed:    make(map[string]struct{}),
		recovered: make(map[string]struct{}),
	}
}

// MarkFailed records a credential as failed within this request.
func (s *RequestState) MarkFailed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = struct{}{}
}

// Failed reports whether a credential already failed within this request.
func (s *RequestState) Failed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.failed[id]
	return ok
}

// MarkRecovered records a credential that probing flipped back to active
// during this request. Recovered credentials are preferred as replacements:
// they are the ones most likely to still have quota.
func (s *RequestState) MarkRecovered(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovered[id] = struct{}{}
}

// Recovered reports whether a credential was recovered within this request.
func (s *RequestState) Recovered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recovered[id]
	return ok
}

// FailedCount returns how many credentials failed within this request.
func (s *RequestState) FailedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failed)
}
