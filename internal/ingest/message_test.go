package ingest

import (
	"strings"
	"testing"

	"github.com/streamware/chat-relay/internal/domain"
)

func TestCandidateMessageValidate(t *testing.T) {
	msg := CandidateMessage{
		CommentID: "c1",
		Text:      "What a save!",
		Priority:  5,
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	msg.CommentID = ""
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() should not require a comment id, got: %v", err)
	}

	msg.Text = "   "
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for blank text")
	}

	msg.Text = strings.Repeat("x", domain.MaxCommentLength+1)
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for oversized text")
	}

	msg.Text = "ok"
	msg.Priority = -1
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for negative priority")
	}

	msg.Priority = domain.MaxPriority + 1
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for priority above the queue maximum")
	}
}
