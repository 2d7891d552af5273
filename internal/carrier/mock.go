package carrier

import (
	"context"
	"fmt"
	"sync"
)

// Mock records sent messages instead of delivering them. Tests use it to
// assert on fan-out filtering and chain fallback.
type Mock struct {
	mu   sync.Mutex
	name string
	// Err, when set, is returned from every Send.
	Err  error
	Sent []MockMessage
}

type MockMessage struct {
	To   Recipient
	Text string
}

func NewMock(name string) *Mock {
	return &Mock{name: name}
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) Send(ctx context.Context, to Recipient, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Sent = append(m.Sent, MockMessage{To: to, Text: text})
	return fmt.Sprintf("%s-%d", m.name, len(m.Sent)), nil
}

func (m *Mock) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
