package state

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

// DefaultMaxMessages caps the per-conversation history.
const DefaultMaxMessages = 100

// Conversation context keys written by the orchestrator after each turn.
const (
	ContextLastEntityType = "last_entity_type"
	ContextLastEntityID   = "last_entity_id"
	ContextWarehouse      = "current_warehouse"
	ContextLastInsights   = "last_insights"
	ContextLastTools      = "last_tools"
)

type Message struct {
	ID        string         `json:"message_id"`
	Role      contractx.Role `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Summary struct {
	SessionID         string    `json:"session_id"`
	TotalMessages     int       `json:"total_messages"`
	UserMessages      int       `json:"user_messages"`
	AssistantMessages int       `json:"assistant_messages"`
	DurationSeconds   float64   `json:"duration_seconds"`
	ContextKeys       []string  `json:"context_keys"`
	CreatedAt         time.Time `json:"created_at"`
	LastActiveAt      time.Time `json:"last_active_at"`
}

// Conversation is the message log and context map of one session.
// All methods are safe for concurrent use; turn-level exclusivity is provided by Store.Acquire.
type Conversation struct {
	mu sync.RWMutex

	sessionID    string
	messages     []Message
	context      map[string]any
	createdAt    time.Time
	lastActiveAt time.Time
	maxMessages  int
	now          func() time.Time

	// turn is a one-slot semaphore held for the duration of a query.
	turn chan struct{}
}

func newConversation(sessionID string, maxMessages int, now func() time.Time) *Conversation {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if now == nil {
		now = time.Now
	}
	ts := now().UTC()
	return &Conversation{
		sessionID:    sessionID,
		messages:     make([]Message, 0, 16),
		context:      make(map[string]any, 8),
		createdAt:    ts,
		lastActiveAt: ts,
		maxMessages:  maxMessages,
		now:          now,
		turn:         make(chan struct{}, 1),
	}
}

func (c *Conversation) SessionID() string {
	return c.sessionID
}

// AddMessage appends a message and evicts the oldest ones once the cap is exceeded.
func (c *Conversation) AddMessage(role contractx.Role, content string, metadata map[string]any) (Message, error) {
	if role != contractx.RoleUser && role != contractx.RoleAssistant {
		return Message{}, fmt.Errorf("%w: invalid role=%q", contractx.ErrValidation, role)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: c.now().UTC(),
		Metadata:  maps.Clone(metadata),
	}
	c.messages = append(c.messages, msg)
	if overflow := len(c.messages) - c.maxMessages; overflow > 0 {
		c.messages = slices.Delete(c.messages, 0, overflow)
	}
	c.lastActiveAt = msg.Timestamp
	return cloneMessage(msg), nil
}

// History returns the most recent limit messages, oldest first. limit <= 0 returns everything.
func (c *Conversation) History(limit int) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = cloneMessage(m)
	}
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

func (c *Conversation) SetContext(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.context[key] = value
}

func (c *Conversation) Context(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.context[key]
	return v, ok
}

func (c *Conversation) AllContext() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.context)
}

// Clear drops all messages and context but keeps the session alive.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = c.messages[:0]
	clear(c.context)
	c.lastActiveAt = c.now().UTC()
}

func (c *Conversation) LastActiveAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActiveAt
}

func (c *Conversation) CreatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.createdAt
}

func (c *Conversation) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Summary{
		SessionID:     c.sessionID,
		TotalMessages: len(c.messages),
		ContextKeys:   slices.Sorted(maps.Keys(c.context)),
		CreatedAt:     c.createdAt,
		LastActiveAt:  c.lastActiveAt,
	}
	for _, m := range c.messages {
		switch m.Role {
		case contractx.RoleUser:
			s.UserMessages++
		case contractx.RoleAssistant:
			s.AssistantMessages++
		}
	}
	if n := len(c.messages); n > 1 {
		s.DurationSeconds = c.messages[n-1].Timestamp.Sub(c.messages[0].Timestamp).Seconds()
	}
	return s
}

// ConversationSnapshot is the serialisable form used by persisters.
type ConversationSnapshot struct {
	SessionID    string         `json:"session_id"`
	Messages     []Message      `json:"messages"`
	Context      map[string]any `json:"context,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at"`
}

func (c *Conversation) Snapshot() *ConversationSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := make([]Message, len(c.messages))
	for i, m := range c.messages {
		msgs[i] = cloneMessage(m)
	}
	return &ConversationSnapshot{
		SessionID:    c.sessionID,
		Messages:     msgs,
		Context:      maps.Clone(c.context),
		CreatedAt:    c.createdAt,
		LastActiveAt: c.lastActiveAt,
	}
}

func restoreConversation(snap *ConversationSnapshot, maxMessages int, now func() time.Time) *Conversation {
	c := newConversation(snap.SessionID, maxMessages, now)
	if !snap.CreatedAt.IsZero() {
		c.createdAt = snap.CreatedAt.UTC()
	}
	if !snap.LastActiveAt.IsZero() {
		c.lastActiveAt = snap.LastActiveAt.UTC()
	}
	msgs := snap.Messages
	if len(msgs) > c.maxMessages {
		msgs = msgs[len(msgs)-c.maxMessages:]
	}
	c.messages = append(c.messages, msgs...)
	for k, v := range snap.Context {
		c.context[k] = v
	}
	return c
}

func cloneMessage(m Message) Message {
	m.Metadata = maps.Clone(m.Metadata)
	return m
}
