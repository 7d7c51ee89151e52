package service

import "sync"

// SubjectLocks hands out one mutex per key so that concurrent analyses for
// the same tenant and subject serialise their baseline read-modify-write
// within this process. Entries are reference counted and dropped when no
// goroutine holds them.
type SubjectLocks struct {
	mu    sync.Mutex
	locks map[string]*subjectLock
}

type subjectLock struct {
	mu   sync.Mutex
	refs int
}

// NewSubjectLocks creates an empty lock table.
func NewSubjectLocks() *SubjectLocks {
	return &SubjectLocks{locks: make(map[string]*subjectLock)}
}

// Lock blocks until the caller holds the lock for key and returns the
// function that releases it.
func (s *SubjectLocks) Lock(key string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &subjectLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// Len returns the number of subjects currently locked or waited on.
func (s *SubjectLocks) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
