package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

var (
	ErrStateNotFound  = errors.New("conversation state not found")
	ErrNilSnapshot    = errors.New("conversation snapshot is nil")
	ErrInvalidSession = contractx.ErrInvalidSession
)

// Store is the conversation lifecycle contract used by the orchestrator.
type Store interface {
	Create(ctx context.Context, sessionID string) (*Conversation, error)
	Get(ctx context.Context, sessionID string) (*Conversation, error)
	GetOrCreate(ctx context.Context, sessionID string) (*Conversation, error)
	// Acquire returns the conversation with its turn lock held; release must be called exactly once.
	Acquire(ctx context.Context, sessionID string) (conv *Conversation, release func(), err error)
	// Commit persists the conversation after a turn.
	Commit(ctx context.Context, conv *Conversation) error
	// Delete is idempotent and reports whether a conversation was removed.
	Delete(ctx context.Context, sessionID string) (bool, error)
	Sweep(maxAge time.Duration) int
}

// Persister is an optional external copy of conversations. Load returns ErrStateNotFound
// when the session is unknown.
type Persister interface {
	Load(ctx context.Context, sessionID string) (*ConversationSnapshot, error)
	Save(ctx context.Context, snap *ConversationSnapshot) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStoreOption customizes MemoryStore.
type MemoryStoreOption func(*MemoryStore)

func WithPersister(p Persister) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.persister = p
	}
}

func WithMaxMessages(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MemoryStore keeps conversations in process memory, optionally writing them through to a
// Persister. Sessions are independent: no lock spans more than one conversation.
//
// Lifecycle: construct with NewMemoryStore, start Run in a goroutine for periodic sweeps,
// cancel its context on shutdown.
type MemoryStore struct {
	conversations *xsync.MapOf[string, *Conversation]
	persister     Persister
	maxMessages   int
	now           func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		conversations: xsync.NewMapOf[string, *Conversation](),
		maxMessages:   DefaultMaxMessages,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create fails with ErrAlreadyExists when the session is tracked here or by the persister.
func (s *MemoryStore) Create(ctx context.Context, sessionID string) (*Conversation, error) {
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := s.conversations.Load(id); ok {
		return nil, fmt.Errorf("%w: session %s", contractx.ErrAlreadyExists, id)
	}
	if s.persister != nil {
		_, err := s.persister.Load(ctx, id)
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: session %s", contractx.ErrAlreadyExists, id)
		case !errors.Is(err, ErrStateNotFound):
			return nil, fmt.Errorf("%w: load session %s: %v", contractx.ErrServiceFault, id, err)
		}
	}

	conv := newConversation(id, s.maxMessages, s.now)
	if _, loaded := s.conversations.LoadOrStore(id, conv); loaded {
		return nil, fmt.Errorf("%w: session %s", contractx.ErrAlreadyExists, id)
	}
	log.Debug().Str("session_id", id).Msg("conversation created")
	return conv, nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*Conversation, error) {
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if conv, ok := s.conversations.Load(id); ok {
		return conv, nil
	}
	conv, err := s.restore(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: session %s", contractx.ErrNotFound, id)
	}
	return conv, nil
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, sessionID string) (*Conversation, error) {
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if conv, ok := s.conversations.Load(id); ok {
		return conv, nil
	}
	conv, err := s.restore(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv, loaded := s.conversations.LoadOrStore(id, newConversation(id, s.maxMessages, s.now))
	if !loaded {
		log.Debug().Str("session_id", id).Msg("conversation created")
	}
	return conv, nil
}

func (s *MemoryStore) Acquire(ctx context.Context, sessionID string) (*Conversation, func(), error) {
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, nil, err
	}
	for {
		conv, err := s.GetOrCreate(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		select {
		case conv.turn <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		// The conversation may have been deleted or swept while this turn waited.
		if current, ok := s.conversations.Load(id); !ok || current != conv {
			<-conv.turn
			continue
		}

		released := false
		release := func() {
			if released {
				return
			}
			released = true
			<-conv.turn
		}
		return conv, release, nil
	}
}

func (s *MemoryStore) Commit(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return ErrNilSnapshot
	}
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, conv.Snapshot()); err != nil {
		return fmt.Errorf("%w: save session %s: %v", contractx.ErrServiceFault, conv.SessionID(), err)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return false, err
	}
	_, deleted := s.conversations.LoadAndDelete(id)
	if s.persister != nil {
		if err := s.persister.Delete(ctx, id); err != nil {
			return deleted, fmt.Errorf("%w: delete session %s: %v", contractx.ErrServiceFault, id, err)
		}
	}
	if deleted {
		log.Debug().Str("session_id", id).Msg("conversation deleted")
	}
	return deleted, nil
}

// Sweep drops conversations whose last activity is strictly older than now-maxAge.
// A conversation with a turn in progress is kept.
// Persisted copies are left to the persister's own expiry.
func (s *MemoryStore) Sweep(maxAge time.Duration) int {
	cutoff := s.now().UTC().Add(-maxAge)

	var stale []string
	s.conversations.Range(func(id string, conv *Conversation) bool {
		if conv.LastActiveAt().Before(cutoff) {
			stale = append(stale, id)
		}
		return true
	})

	removed := 0
	for _, id := range stale {
		s.conversations.Compute(id, func(conv *Conversation, loaded bool) (*Conversation, bool) {
			if !loaded {
				return conv, true
			}
			if len(conv.turn) > 0 {
				return conv, false
			}
			if conv.LastActiveAt().Before(cutoff) {
				removed++
				return conv, true
			}
			return conv, false
		})
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("swept stale conversations")
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(maxAge)
		}
	}
}

func (s *MemoryStore) Len() int {
	return s.conversations.Size()
}

// Summaries lists the summary of every tracked conversation ordered by session id.
func (s *MemoryStore) Summaries() []Summary {
	out := make([]Summary, 0, s.conversations.Size())
	s.conversations.Range(func(_ string, conv *Conversation) bool {
		out = append(out, conv.Summary())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// restore loads a persisted conversation into memory. It returns (nil, nil) when the
// session is unknown everywhere.
func (s *MemoryStore) restore(ctx context.Context, id string) (*Conversation, error) {
	if s.persister == nil {
		return nil, nil
	}
	snap, err := s.persister.Load(ctx, id)
	if errors.Is(err, ErrStateNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load session %s: %v", contractx.ErrServiceFault, id, err)
	}
	if snap == nil {
		return nil, nil
	}
	snap.SessionID = id
	conv, _ := s.conversations.LoadOrStore(id, restoreConversation(snap, s.maxMessages, s.now))
	return conv, nil
}

func normalizeSessionID(sessionID string) (string, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return "", ErrInvalidSession
	}
	return id, nil
}
