package memory

import "sync"

// SessionStore holds the files currently selected in the renamer. It is a
// single process-wide list, replaced wholesale by Set.
type SessionStore struct {
	mu    sync.RWMutex
	files []string
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Set replaces the selection with a copy of files.
func (s *SessionStore) Set(files []string) {
	next := append([]string(nil), files...)
	s.mu.Lock()
	s.files = next
	s.mu.Unlock()
}

// Get returns a copy of the selection.
func (s *SessionStore) Get() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.files))
	copy(out, s.files)
	return out
}

// Clear empties the selection.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()
}

// Len reports the number of selected files.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
