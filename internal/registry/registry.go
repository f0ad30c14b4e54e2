package registry

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/fileops/internal/fileops"
)

const (
	// SweepThreshold is the registry size above which a registration first
	// sweeps expired tombstones.
	SweepThreshold = 100
	// TombstoneMaxAge is how long a pre-cancellation marker is honoured.
	TombstoneMaxAge = 60 * time.Second

	shardCount = 32
)

// ErrCancelled is returned by TryRegister when the id was cancelled before it
// registered. The caller must abort without doing any work.
var ErrCancelled = errors.New("operation cancelled before start")

// entry is either Active (flag != nil) or a Tombstone stamped at createdAt.
type entry struct {
	flag      *Flag
	createdAt time.Time
}

func (e entry) tombstone() bool {
	return e.flag == nil
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the time source used to stamp and age tombstones.
func WithClock(clock fileops.Clock) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSweepObserver registers a callback invoked after every sweep with the
// number of tombstones removed.
func WithSweepObserver(fn func(removed int)) Option {
	return func(r *Registry) {
		r.onSweep = fn
	}
}

// Registry maps operation ids to their lifecycle entry. Entries are spread
// across independently locked shards so unrelated ids never contend.
type Registry struct {
	shards  [shardCount]*shard
	size    atomic.Int64
	clock   fileops.Clock
	logger  *zap.Logger
	onSweep func(int)
}

// New constructs an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		clock:  fileops.ClockFunc(time.Now),
		logger: zap.NewNop(),
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]entry)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryRegister records id as Active and returns the Guard that must be
// released when the operation ends, plus the Flag the worker polls.
//
// A tombstone for id is consumed and ErrCancelled returned. Registering an id
// that is already Active replaces that entry; the earlier Guard will then
// remove the replacement when it is released.
func (r *Registry) TryRegister(id string) (*Guard, *Flag, error) {
	s := r.shardFor(id)

	if r.consumeTombstone(s, id) {
		return nil, nil, fmt.Errorf("register %q: %w", id, ErrCancelled)
	}

	if r.Len() > SweepThreshold {
		r.sweep()
	}

	flag := NewFlag()
	s.mu.Lock()
	if existing, ok := s.entries[id]; ok {
		if existing.tombstone() {
			// Cancel raced in while the shard was unlocked for the sweep.
			delete(s.entries, id)
			s.mu.Unlock()
			r.size.Add(-1)
			r.logger.Debug("registration refused, cancelled during sweep", zap.String("operation_id", id))
			return nil, nil, fmt.Errorf("register %q: %w", id, ErrCancelled)
		}
		r.logger.Warn("replacing active operation with the same id", zap.String("operation_id", id))
	} else {
		r.size.Add(1)
	}
	s.entries[id] = entry{flag: flag, createdAt: r.clock.Now()}
	s.mu.Unlock()

	r.logger.Debug("operation registered", zap.String("operation_id", id))
	return &Guard{id: id, registry: r}, flag, nil
}

func (r *Registry) consumeTombstone(s *shard, id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || !e.tombstone() {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, id)
	s.mu.Unlock()
	r.size.Add(-1)
	r.logger.Debug("registration refused, operation pre-cancelled", zap.String("operation_id", id))
	return true
}

// Cancel signals the operation registered under id. Unknown ids get a
// tombstone so a later TryRegister fails; cancelling a tombstone is a no-op.
func (r *Registry) Cancel(id string) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	switch {
	case !ok:
		s.entries[id] = entry{createdAt: r.clock.Now()}
		r.size.Add(1)
		r.logger.Debug("tombstone recorded", zap.String("operation_id", id))
	case e.tombstone():
	default:
		e.flag.Cancel()
		r.logger.Debug("cancellation requested", zap.String("operation_id", id))
	}
}

// Len returns the number of entries, Active and Tombstone alike.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

func (r *Registry) remove(id string) {
	s := r.shardFor(id)
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok {
		r.size.Add(-1)
	}
}

// sweep drops tombstones at least TombstoneMaxAge old. Active entries are
// always kept.
func (r *Registry) sweep() int {
	now := r.clock.Now()
	removed := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for id, e := range s.entries {
			if e.tombstone() && now.Sub(e.createdAt) >= TombstoneMaxAge {
				delete(s.entries, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	r.size.Add(-int64(removed))
	r.logger.Debug("tombstones swept", zap.Int("removed", removed), zap.Int("remaining", r.Len()))
	if r.onSweep != nil {
		r.onSweep(removed)
	}
	return removed
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

func (r *Registry) lookup(id string) (entry, bool) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

// Guard owns one registration. Release removes the entry keyed by its id,
// whatever that entry currently is, and must run on every exit path of the
// operation (typically via defer).
type Guard struct {
	id       string
	registry *Registry
	once     sync.Once
}

// ID returns the operation id the guard was issued for.
func (g *Guard) ID() string {
	return g.id
}

// Release removes the registry entry. Subsequent calls do nothing.
func (g *Guard) Release() {
	if g == nil || g.registry == nil {
		return
	}
	g.once.Do(func() {
		g.registry.remove(g.id)
	})
}
