package provider

import (
	"context"
	"fmt"
	"sync"
)

// Scripted is a deterministic Reasoner that replays a fixed sequence of
// responses. Used in tests and offline scenario runs.
type Scripted struct {
	responses []Response
	requests  []Request
	index     int
	mu        sync.Mutex
}

// NewScripted creates a scripted reasoner
func NewScripted(responses ...Response) *Scripted {
	return &Scripted{responses: responses}
}

// Provider returns the provider name
func (p *Scripted) Provider() string {
	return "scripted"
}

// Call returns the next scripted response
func (p *Scripted) Call(ctx context.Context, request Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, request)

	if p.index >= len(p.responses) {
		return nil, fmt.Errorf("scripted reasoner exhausted after %d responses", len(p.responses))
	}

	response := p.responses[p.index]
	p.index++
	return &response, nil
}

// Requests returns every request seen so far, in order
func (p *Scripted) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// CallCount returns how many times Call was invoked
func (p *Scripted) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
