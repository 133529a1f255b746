// Package guard tracks which funds are inside a settlement call so nested calls on the
// same fund can be refused.
package guard

import (
	"sync"

	"github.com/mtlprog/fundfee/internal/domain"
)

// Set is a set of funds currently being settled. The zero value is ready to use.
type Set struct {
	mu     sync.Mutex
	active map[domain.FundID]struct{}
}

// Enter marks id as active. It returns false if id is already active. Otherwise the
// returned release func clears the mark and must be called exactly once, usually via defer.
func (s *Set) Enter(id domain.FundID) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		s.active = make(map[domain.FundID]struct{})
	}
	if _, busy := s.active[id]; busy {
		return func() {}, false
	}
	s.active[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.active, id)
			s.mu.Unlock()
		})
	}, true
}

// Active reports whether id is currently marked.
func (s *Set) Active(id domain.FundID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	return ok
}
