package state

import (
	"errors"
	"fmt"
	"testing"
	"time"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func TestConversationCapEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	conv := newConversation("s1", DefaultMaxMessages, time.Now)
	for i := 0; i < 250; i++ {
		if _, err := conv.AddMessage(contractx.RoleUser, fmt.Sprintf("m%d", i), nil); err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
		if conv.Len() > DefaultMaxMessages {
			t.Fatalf("len = %d after %d appends", conv.Len(), i+1)
		}
	}

	history := conv.History(0)
	if len(history) != DefaultMaxMessages {
		t.Fatalf("expected %d messages, got %d", DefaultMaxMessages, len(history))
	}
	if history[0].Content != "m150" {
		t.Fatalf("oldest kept = %q, want m150", history[0].Content)
	}
	if history[len(history)-1].Content != "m249" {
		t.Fatalf("newest = %q, want m249", history[len(history)-1].Content)
	}
}

func TestConversationHistoryLimitChronological(t *testing.T) {
	t.Parallel()

	conv := newConversation("s1", 0, time.Now)
	for i := 0; i < 10; i++ {
		role := contractx.RoleUser
		if i%2 == 1 {
			role = contractx.RoleAssistant
		}
		if _, err := conv.AddMessage(role, fmt.Sprintf("m%d", i), nil); err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
	}

	all := conv.History(0)
	if len(all) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(all))
	}
	for i, m := range all {
		if m.Content != fmt.Sprintf("m%d", i) {
			t.Fatalf("history[%d] = %q", i, m.Content)
		}
	}

	last := conv.History(3)
	if len(last) != 3 || last[0].Content != "m7" || last[2].Content != "m9" {
		t.Fatalf("unexpected limited history: %#v", last)
	}

	if got := conv.History(50); len(got) != 10 {
		t.Fatalf("limit beyond size returned %d", len(got))
	}
}

func TestConversationRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	conv := newConversation("s1", 0, time.Now)
	_, err := conv.AddMessage(contractx.Role("system"), "x", nil)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if conv.Len() != 0 {
		t.Fatal("rejected message must not be stored")
	}
}

func TestConversationMessagesAreCopies(t *testing.T) {
	t.Parallel()

	conv := newConversation("s1", 0, time.Now)
	meta := map[string]any{"k": "v"}
	if _, err := conv.AddMessage(contractx.RoleUser, "hi", meta); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	meta["k"] = "mutated"

	history := conv.History(0)
	history[0].Metadata["k"] = "also mutated"

	if got := conv.History(0)[0].Metadata["k"]; got != "v" {
		t.Fatalf("stored metadata changed: %v", got)
	}
}

func TestConversationSummary(t *testing.T) {
	t.Parallel()

	clock := &stepClock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), step: 30 * time.Second}
	conv := newConversation("s1", 0, clock.Now)

	for _, role := range []contractx.Role{contractx.RoleUser, contractx.RoleAssistant, contractx.RoleUser} {
		if _, err := conv.AddMessage(role, "x", nil); err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
	}
	conv.SetContext("b", 1)
	conv.SetContext("a", 2)
	conv.SetContext("a", 3)

	s := conv.Summary()
	if s.TotalMessages != 3 || s.UserMessages != 2 || s.AssistantMessages != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.DurationSeconds != 60 {
		t.Fatalf("duration = %v, want 60", s.DurationSeconds)
	}
	if len(s.ContextKeys) != 2 || s.ContextKeys[0] != "a" || s.ContextKeys[1] != "b" {
		t.Fatalf("context keys = %v", s.ContextKeys)
	}
	if v, _ := conv.Context("a"); v != 3 {
		t.Fatalf("context overwrite failed: %v", v)
	}
}

func TestConversationClear(t *testing.T) {
	t.Parallel()

	conv := newConversation("s1", 0, time.Now)
	if _, err := conv.AddMessage(contractx.RoleUser, "x", nil); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	conv.SetContext("k", "v")
	conv.Clear()

	if conv.Len() != 0 || len(conv.AllContext()) != 0 {
		t.Fatal("expected empty conversation after Clear")
	}
}

func TestRestoreConversationTrimsToCap(t *testing.T) {
	t.Parallel()

	snap := &ConversationSnapshot{SessionID: "s1"}
	for i := 0; i < 5; i++ {
		snap.Messages = append(snap.Messages, Message{ID: fmt.Sprint(i), Role: contractx.RoleUser, Content: fmt.Sprint(i)})
	}

	conv := restoreConversation(snap, 3, time.Now)
	history := conv.History(0)
	if len(history) != 3 || history[0].Content != "2" {
		t.Fatalf("unexpected restored history: %#v", history)
	}
}
