package internal

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// QAPair is one question with its answer. Answer is empty for a question
// that has not been answered yet.
type QAPair struct {
	Question string
	Answer   string
}

// Conversation is the ordered turn log of the active chat. It only grows,
// except through Clear and Replace.
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewConversation(turns ...Turn) *Conversation {
	return &Conversation{turns: slices.Clone(turns)}
}

func (c *Conversation) Append(role Role, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{Role: role, Text: text})
}

// AppendExchange records a question and its answer together.
func (c *Conversation) AppendExchange(question, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns,
		Turn{Role: RoleUser, Text: question},
		Turn{Role: RoleAssistant, Text: answer},
	)
}

func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}

// Replace swaps the whole log, used when resuming a stored session.
func (c *Conversation) Replace(turns []Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = slices.Clone(turns)
}

func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.turns)
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

func (c *Conversation) Pairs() []QAPair {
	return PairTurns(c.Turns())
}

// PairTurns groups turns into question/answer pairs. A user turn followed
// by an assistant turn forms a pair. A user turn with no reply becomes a
// pair with an empty answer. Assistant turns without a preceding question
// and roles other than user or assistant are skipped.
func PairTurns(turns []Turn) []QAPair {
	var pairs []QAPair
	var pending *string

	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			if pending != nil {
				pairs = append(pairs, QAPair{Question: *pending})
			}
			q := t.Text
			pending = &q
		case RoleAssistant:
			if pending == nil {
				continue
			}
			pairs = append(pairs, QAPair{Question: *pending, Answer: t.Text})
			pending = nil
		}
	}

	if pending != nil {
		pairs = append(pairs, QAPair{Question: *pending})
	}
	return pairs
}
