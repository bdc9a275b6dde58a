package session

import "sync"

// Observer receives a SessionState snapshot after every transition. It must
// not block for long — delivery is best-effort and non-blocking, so a slow
// observer drops snapshots rather than stalling the session task (§9,
// design note 1).
type Observer func(SessionState)

// Unsubscribe removes an observer registered with Subscribe. Safe to call
// more than once.
type Unsubscribe func()

// publisher fans a SessionState snapshot out to registered observers via a
// registry of per-subscriber channels. There is only one kind of broadcast:
// "state changed".
type publisher struct {
	mu   sync.Mutex
	subs map[int]chan SessionState
	next int
}

func newPublisher() *publisher {
	return &publisher{subs: make(map[int]chan SessionState)}
}

// subscribe registers a buffered channel to receive future snapshots and
// starts a goroutine that drains it into obs. Returns an Unsubscribe that
// removes the channel from the registry, closes it, and waits for the
// draining goroutine to finish.
func (p *publisher) subscribe(obs Observer) Unsubscribe {
	p.mu.Lock()
	id := p.next
	p.next++
	ch := make(chan SessionState, 16)
	p.subs[id] = ch
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range ch {
			obs(snap)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
			<-done
		})
	}
}

// publish delivers snap to every subscriber, dropping it for any subscriber
// whose channel is currently full rather than blocking the caller.
func (p *publisher) publish(snap SessionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// closeAll unregisters and closes every remaining subscriber channel, used
// during session teardown.
func (p *publisher) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
}
