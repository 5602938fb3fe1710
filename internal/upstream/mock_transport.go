package upstream

import (
	"context"

	"dnsrouter/internal/dnsmsg"
)

// MockTransport is a hand-rolled test double for Transport, in the
// style of a go.uber.org/mock-generated mock: callers script a
// response or an error before invoking Query, and record how many
// times it was called.
type MockTransport struct {
	Resp  dnsmsg.Packet
	Err   error
	Calls int
}

func (m *MockTransport) Query(_ context.Context, q dnsmsg.Packet) (dnsmsg.Packet, error) {
	m.Calls++
	if m.Err != nil {
		return dnsmsg.Packet{}, m.Err
	}
	resp := m.Resp
	resp.Questions = q.Questions
	return resp, nil
}
