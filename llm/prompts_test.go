package llm

import (
	"fmt"
	"strings"
	"testing"
)

func TestBuildChatPrompt_Basic(t *testing.T) {
	msgs := BuildChatPrompt("How do I adjust chain tension?", "", nil)

	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleSystem {
		t.Errorf("msgs[0].Role = %q, want system", msgs[0].Role)
	}
	if msgs[0].Content != SystemPrompt {
		t.Errorf("system prompt altered with no manual context")
	}
	if msgs[1].Role != RoleUser || msgs[1].Content != "How do I adjust chain tension?" {
		t.Errorf("last message = %+v, want the user query", msgs[1])
	}
}

func TestBuildChatPrompt_ManualContext(t *testing.T) {
	msgs := BuildChatPrompt("brake pads?", "Section 7.3: brake pad wear limit is 2mm.", nil)

	system := msgs[0].Content
	if !strings.Contains(system, "Section 7.3") {
		t.Errorf("system prompt missing manual context")
	}
	if !strings.HasPrefix(system, SystemPrompt) {
		t.Errorf("manual context must be appended after the base prompt")
	}
}

func TestBuildChatPrompt_HistoryCapped(t *testing.T) {
	history := make([]Message, 0, 10)
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			history = append(history, User(fmt.Sprintf("question %d", i)))
		} else {
			history = append(history, Assistant(fmt.Sprintf("answer %d", i)))
		}
	}

	msgs := BuildChatPrompt("final question", "", history)

	// system + 6 most recent history + query
	if len(msgs) != 8 {
		t.Fatalf("len(msgs) = %d, want 8", len(msgs))
	}
	if msgs[1].Content != "question 4" {
		t.Errorf("oldest kept history = %q, want %q", msgs[1].Content, "question 4")
	}
	if msgs[len(msgs)-1].Content != "final question" {
		t.Errorf("last message = %q, want the user query", msgs[len(msgs)-1].Content)
	}
}

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		msg  Message
		role string
	}{
		{User("q"), RoleUser},
		{Assistant("a"), RoleAssistant},
		{System("s"), RoleSystem},
	}
	for _, tt := range tests {
		if tt.msg.Role != tt.role {
			t.Errorf("Role = %q, want %q", tt.msg.Role, tt.role)
		}
	}
}
