package agents

import (
	"github.com/maya-ai/backend/internal/model"
	"github.com/maya-ai/backend/internal/ranking"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatState is the shared state one conversation turn flows through. Nodes
// receive it by value and return an updated copy; nothing is shared between
// concurrent turns.
type ChatState struct {
	Messages       []Message
	CurrentAgent   string
	Profile        map[string]any
	Schemes        []model.Scheme
	PipelineStatus ranking.Status
	NextStep       string
}

// WithMessage returns a copy of the state with the message appended. The
// original message slice is never mutated.
func (s ChatState) WithMessage(role, content string) ChatState {
	messages := make([]Message, 0, len(s.Messages)+1)
	messages = append(messages, s.Messages...)
	messages = append(messages, Message{Role: role, Content: content})
	s.Messages = messages
	return s
}

func (s ChatState) WithAgent(agent string) ChatState {
	s.CurrentAgent = agent
	return s
}

// LastUserMessage returns the most recent user utterance, or "" when the
// history holds none.
func (s ChatState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// LastResponse returns the most recent assistant turn, or "" when no
// specialist has produced one yet.
func (s ChatState) LastResponse() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}
