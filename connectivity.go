package cartsync

import "sync"

// ConnectivityProvider abstracts the platform's online/offline signal so
// the engine stays portable. The provider only reports transitions; it
// never probes the network itself.
type ConnectivityProvider interface {
	// Online returns the current connectivity state.
	Online() bool

	// SubscribeConnectivity registers a handler invoked on every
	// transition with the new state. It returns an unsubscribe func.
	SubscribeConnectivity(handler func(online bool)) func()
}

// SignalProvider is a ConnectivityProvider fed externally, e.g. from an OS
// network-change notification or a test. It starts online.
type SignalProvider struct {
	mu       sync.RWMutex
	online   bool
	nextID   int
	handlers map[int]func(bool)
}

// NewSignalProvider creates a provider in the online state.
func NewSignalProvider() *SignalProvider {
	return &SignalProvider{online: true, handlers: make(map[int]func(bool))}
}

func (p *SignalProvider) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

func (p *SignalProvider) SubscribeConnectivity(handler func(online bool)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

// SetOnline records a transition and notifies subscribers. Setting the
// current state again is a no-op.
func (p *SignalProvider) SetOnline(online bool) {
	p.mu.Lock()
	if p.online == online {
		p.mu.Unlock()
		return
	}
	p.online = online
	handlers := make([]func(bool), 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(online)
	}
}
