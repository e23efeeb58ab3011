package browser

import "sync"

// netLog is an append-only buffer of network events. The CDP subscription
// goroutine appends; DrainNetwork consumes. Bounded so a chatty page cannot
// grow memory without a drain in between.
type netLog struct {
	mu     sync.Mutex
	events []NetworkEvent
}

const maxBuffered = 4096

func newNetLog() *netLog {
	return &netLog{}
}

func (l *netLog) append(e NetworkEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) >= maxBuffered {
		// Drop the oldest half. Recency is what the sniffer cares about.
		copy(l.events, l.events[len(l.events)/2:])
		l.events = l.events[:len(l.events)-len(l.events)/2]
	}
	l.events = append(l.events, e)
}

func (l *netLog) drain() []NetworkEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return nil
	}
	out := make([]NetworkEvent, len(l.events))
	copy(out, l.events)
	l.events = l.events[:0]
	return out
}
