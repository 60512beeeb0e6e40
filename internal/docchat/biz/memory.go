package biz

import (
	"sync"
	"time"
)

// Exchange is one completed question/answer turn.
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// ConversationMemory is the append-only exchange log of a session.
// The full log is kept for stats; prompts only see the recent window.
type ConversationMemory struct {
	mu        sync.RWMutex
	exchanges []Exchange
}

// NewConversationMemory creates an empty conversation memory.
func NewConversationMemory() *ConversationMemory {
	return &ConversationMemory{}
}

// Append records a completed exchange. Callers must only append after the
// answer actually succeeded; failed answers leave memory untouched.
func (m *ConversationMemory) Append(question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, Exchange{
		Question: question,
		Answer:   answer,
		At:       time.Now(),
	})
}

// Recent returns the last n exchanges, ordered oldest to newest.
// n <= 0 returns nil.
func (m *ConversationMemory) Recent(n int) []Exchange {
	if n <= 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	start := len(m.exchanges) - n
	if start < 0 {
		start = 0
	}
	out := make([]Exchange, len(m.exchanges)-start)
	copy(out, m.exchanges[start:])
	return out
}

// Len returns the total number of recorded exchanges.
func (m *ConversationMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.exchanges)
}
