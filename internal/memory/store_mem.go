package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/voidKandy/espionox-sub001/pkg/message"
)

type memCheckpoint struct {
	through int
	view    []message.Message
}

type memRow struct {
	id     string
	thread string
	seq    int
	msg    message.Message
}

// MemStore is a thread-safe, in-memory Store. Nothing survives the process.
type MemStore struct {
	mu          sync.RWMutex
	rows        map[string][]memRow // thread to rows ordered by seq
	index       map[string]string   // id to thread
	checkpoints map[string]memCheckpoint
	summaries   map[string][]Summary
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		rows:        make(map[string][]memRow),
		index:       make(map[string]string),
		checkpoints: make(map[string]memCheckpoint),
		summaries:   make(map[string][]Summary),
	}
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// GetMessages returns the thread's messages ordered by seq.
func (s *MemStore) GetMessages(_ context.Context, thread string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[thread]
	out := make([]message.Message, len(rows))
	for i, r := range rows {
		out[i] = r.msg
	}
	return out, nil
}

// PostMessage appends msg with seq max+1.
func (s *MemStore) PostMessage(_ context.Context, thread string, msg message.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows[thread]
	seq := 1
	if n := len(rows); n > 0 {
		seq = rows[n-1].seq + 1
	}
	s.rows[thread] = append(rows, memRow{id: msg.ID(), thread: thread, seq: seq, msg: msg})
	s.index[msg.ID()] = thread
	return msg.ID(), nil
}

// DeleteMessage removes a message row by id.
func (s *MemStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	s.rows[thread] = slices.DeleteFunc(s.rows[thread], func(r memRow) bool { return r.id == id })
	if len(s.rows[thread]) == 0 {
		delete(s.rows, thread)
	}
	delete(s.index, id)
	return nil
}

// LiveMessages returns the last checkpoint of thread followed by the rows
// posted after it.
func (s *MemStore) LiveMessages(_ context.Context, thread string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[thread]
	out := slices.Clone(cp.view)
	for _, r := range s.rows[thread] {
		if !ok || r.seq > cp.through {
			out = append(out, r.msg)
		}
	}
	return out, nil
}

// Checkpoint records view as the live view of thread up to its latest row.
func (s *MemStore) Checkpoint(_ context.Context, thread string, view []message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	through := 0
	if rows := s.rows[thread]; len(rows) > 0 {
		through = rows[len(rows)-1].seq
	}
	s.checkpoints[thread] = memCheckpoint{through: through, view: slices.Clone(view)}
	return nil
}

// Threads lists thread names in sorted order.
func (s *MemStore) Threads(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.rows))
	for name := range s.rows {
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

// PostSummary stores sum and returns its id.
func (s *MemStore) PostSummary(_ context.Context, sum Summary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	sum.Embedding = slices.Clone(sum.Embedding)
	s.summaries[sum.Thread] = append(s.summaries[sum.Thread], sum)
	return sum.ID, nil
}

// Summaries returns the thread's summaries in insertion order.
func (s *MemStore) Summaries(_ context.Context, thread string) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.summaries[thread]), nil
}

// DeleteSummary removes a summary by id.
func (s *MemStore) DeleteSummary(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for thread, sums := range s.summaries {
		if i := slices.IndexFunc(sums, func(x Summary) bool { return x.ID == id }); i >= 0 {
			s.summaries[thread] = slices.Delete(sums, i, i+1)
			return nil
		}
	}
	return ErrNotFound
}
