package status

import "sync"

// Latest holds the current Status and fans changes out to subscribers.
// Each subscriber has a single slot: if it hasn't read the previous value
// by the time a new one is set, the old one is dropped. Setting never blocks.
type Latest struct {
	mu     sync.Mutex
	value  Status
	subs   map[int]chan Status
	nextID int
	closed bool
}

func NewLatest(initial Status) *Latest {
	if initial == nil {
		initial = Loading{}
	}
	return &Latest{
		value: initial,
		subs:  make(map[int]chan Status),
	}
}

// Get returns the current value.
func (l *Latest) Get() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Set replaces the current value and notifies subscribers.
func (l *Latest) Set(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.value = s
	for _, ch := range l.subs {
		offer(ch, s)
	}
}

func offer(ch chan Status, s Status) {
	select {
	case <-ch:
	default:
	}
	ch <- s
}

// Subscribe returns a channel which immediately holds the current value,
// then every subsequent one (latest wins). Call cancel to unsubscribe;
// the channel is closed then, or when the Latest is closed.
func (l *Latest) Subscribe() (ch <-chan Status, cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := make(chan Status, 1)
	if l.closed {
		close(c)
		return c, func() {}
	}
	id := l.nextID
	l.nextID++
	l.subs[id] = c
	c <- l.value

	return c, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
}

// Close closes all subscriber channels. Later Sets are ignored.
func (l *Latest) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
}
