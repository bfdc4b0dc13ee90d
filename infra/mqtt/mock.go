package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/solarcharge/core/command"
)

// MockCommander records commands in memory. Consumers listed in FailIDs
// fail every command.
type MockCommander struct {
	mu      sync.Mutex
	Calls   []command.Call
	FailIDs map[string]bool
}

var _ command.Commander = (*MockCommander)(nil)

// NewMockCommander creates an empty MockCommander.
func NewMockCommander() *MockCommander {
	return &MockCommander{FailIDs: make(map[string]bool)}
}

func (m *MockCommander) record(ctx context.Context, call command.Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[call.ConsumerID] {
		return fmt.Errorf("%w: %s", command.ErrAckTimeout, call.ConsumerID)
	}
	m.Calls = append(m.Calls, call)
	return nil
}

func (m *MockCommander) Start(ctx context.Context, id string) error {
	return m.record(ctx, command.Call{ConsumerID: id, Action: command.ActionStart})
}

func (m *MockCommander) Stop(ctx context.Context, id string) error {
	return m.record(ctx, command.Call{ConsumerID: id, Action: command.ActionStop})
}

func (m *MockCommander) SetCurrent(ctx context.Context, id string, amps float64) error {
	return m.record(ctx, command.Call{ConsumerID: id, Action: command.ActionSetCurrent, Value: amps})
}

func (m *MockCommander) SetPhases(ctx context.Context, id string, phases int) error {
	return m.record(ctx, command.Call{ConsumerID: id, Action: command.ActionSetPhases, Value: float64(phases)})
}

// CallsFor returns the recorded calls of one consumer in order.
func (m *MockCommander) CallsFor(id string) []command.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []command.Call
	for _, c := range m.Calls {
		if c.ConsumerID == id {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the recorded calls.
func (m *MockCommander) Reset() {
	m.mu.Lock()
	m.Calls = nil
	m.mu.Unlock()
}
