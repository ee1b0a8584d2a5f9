package handoff

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"getbox/internal/media"
)

// Memory is an in-process Store. Contents are lost on restart.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	seq     uint64
	policy  Policy
	now     func() time.Time
}

// memEntry orders jobs that share a timestamp by insertion.
type memEntry struct {
	job media.Job
	seq uint64
}

// NewMemory returns an empty in-memory store.
func NewMemory(p Policy, opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		entries: make(map[string]memEntry),
		policy:  p.withDefaults(),
		now:     o.now,
	}
}

func (m *Memory) Put(_ context.Context, job media.Job) (string, error) {
	id := newID()
	job.CreatedAt = m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.entries[id] = memEntry{job: job, seq: m.seq}
	if len(m.entries) > m.policy.MaxEntries {
		m.pruneLocked(id)
	}
	return id, nil
}

func (m *Memory) Get(_ context.Context, id string) (media.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return media.Job{}, ErrNotFound
	}
	if m.policy.expired(e.job.CreatedAt, m.now()) {
		delete(m.entries, id)
		return media.Job{}, ErrNotFound
	}
	return e.job, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// Len reports how many entries are held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// pruneLocked drops expired entries, then the oldest until the store fits.
// keep is the entry just inserted and is never evicted.
func (m *Memory) pruneLocked(keep string) {
	now := m.now()
	for id, e := range m.entries {
		if m.policy.expired(e.job.CreatedAt, now) && id != keep {
			delete(m.entries, id)
		}
	}
	over := len(m.entries) - m.policy.MaxEntries
	if over <= 0 {
		return
	}

	type aged struct {
		id      string
		created time.Time
		seq     uint64
	}
	all := make([]aged, 0, len(m.entries))
	for id, e := range m.entries {
		if id != keep {
			all = append(all, aged{id, e.job.CreatedAt, e.seq})
		}
	}
	slices.SortFunc(all, func(a, b aged) int {
		if c := a.created.Compare(b.created); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	for _, a := range all[:min(over, len(all))] {
		delete(m.entries, a.id)
	}
}
