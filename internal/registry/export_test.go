package registry

import "time"

func (r *Registry) contains(id string) bool {
	_, ok := r.lookup(id)
	return ok
}

func (r *Registry) isTombstone(id string) bool {
	e, ok := r.lookup(id)
	return ok && e.tombstone()
}

func (r *Registry) isActive(id string) bool {
	e, ok := r.lookup(id)
	return ok && !e.tombstone()
}

func (r *Registry) insertTombstoneWithAge(id string, age time.Duration) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		r.size.Add(1)
	}
	s.entries[id] = entry{createdAt: r.clock.Now().Add(-age)}
}
