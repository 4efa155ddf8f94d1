// Package hooktest provides test doubles for the hook package.
package hooktest

import (
	"context"
	"sync"

	"github.com/voidKandy/espionox-sub001/internal/hook"
)

// MockObserver is a configurable test double for hook.Observer.
type MockObserver struct {
	NameVal     string
	ObserveFunc func(ctx context.Context, ex hook.Exchange) error

	mu        sync.Mutex
	exchanges []hook.Exchange
}

// Compile-time interface check.
var _ hook.Observer = (*MockObserver)(nil)

// Name returns NameVal, or "mock".
func (m *MockObserver) Name() string {
	if m.NameVal == "" {
		return "mock"
	}
	return m.NameVal
}

// Observe records ex and delegates to ObserveFunc.
func (m *MockObserver) Observe(ctx context.Context, ex hook.Exchange) error {
	m.mu.Lock()
	m.exchanges = append(m.exchanges, ex)
	m.mu.Unlock()

	if m.ObserveFunc != nil {
		return m.ObserveFunc(ctx, ex)
	}
	return nil
}

// Exchanges returns the exchanges seen so far.
func (m *MockObserver) Exchanges() []hook.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]hook.Exchange(nil), m.exchanges...)
}

// CallCount returns how many times Observe ran.
func (m *MockObserver) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.exchanges)
}
