package sqlite

import (
	"context"
	"testing"
)

func TestInboxDirectAndBroadcast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	seedAgent(t, s, "a2", "calm-heron")

	if _, err := s.SendMessage(ctx, "a1", "a2", "direct to heron", "chat"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, err := s.SendMessage(ctx, "a1", "", "hello everyone", "chat"); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if _, err := s.SendMessage(ctx, "a2", "a1", "direct to otter", "chat"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	inbox, err := s.Inbox(ctx, "a2", false, 0)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if len(inbox) != 2 {
		t.Fatalf("a2 inbox = %d messages, want direct + broadcast", len(inbox))
	}
	if inbox[0].Content != "direct to heron" {
		t.Errorf("inbox order should be oldest first, got %q", inbox[0].Content)
	}
	if !inbox[1].IsBroadcast() {
		t.Error("second message should be the broadcast")
	}
}

func TestMarkMessagesRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	msg, err := s.SendMessage(ctx, "someone", "a1", "first", "chat")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, err := s.SendMessage(ctx, "someone", "a1", "second", "chat"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	n, err := s.MarkMessagesRead(ctx, "a1", []int64{msg.ID})
	if err != nil {
		t.Fatalf("MarkMessagesRead failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("marked = %d, want 1", n)
	}

	unread, err := s.Inbox(ctx, "a1", true, 0)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if len(unread) != 1 || unread[0].Content != "second" {
		t.Fatalf("unread = %v, want just the second message", unread)
	}

	// Empty id list marks everything left.
	n, err = s.MarkMessagesRead(ctx, "a1", nil)
	if err != nil {
		t.Fatalf("MarkMessagesRead failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("marked = %d, want 1", n)
	}
	unread, _ = s.Inbox(ctx, "a1", true, 0)
	if len(unread) != 0 {
		t.Fatalf("unread = %d, want 0", len(unread))
	}
}

func TestInboxLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	for i := 0; i < 5; i++ {
		if _, err := s.SendMessage(ctx, "someone", "a1", "msg", "chat"); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	inbox, err := s.Inbox(ctx, "a1", false, 3)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if len(inbox) != 3 {
		t.Fatalf("inbox = %d messages, want limit 3", len(inbox))
	}
}
