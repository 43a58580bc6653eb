// Copyright (C) 2025 the mpptd authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package eventbus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

type Topic string
type Event = any

// Bus implements an in-memory pub/sub where the most recent event is
// the only one kept per subscriber. Slow subscribers never stall the
// publisher; they simply see the latest value when they catch up.
type Bus struct {
	mu        sync.RWMutex
	subs      map[Topic]map[uint64]*subscriber
	last      map[Topic]Event
	idCounter uint64
	closed    atomic.Bool
}

// subscriber owns its channel's closure so that Bus.Close and the
// per-subscription cleanup goroutine cannot both close it.
type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// New returns an initialized Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[Topic]map[uint64]*subscriber),
		last: make(map[Topic]Event),
	}
}

// Publish publishes ev to topic and stores it as the topic's "last" event.
// Each subscriber channel has size 1; publishing replaces any undelivered
// older value so subscribers always see the most recent event.
func (b *Bus) Publish(topic Topic, ev Event) {
	if b.closed.Load() {
		return
	}

	b.mu.Lock()
	b.last[topic] = ev

	// Copy the channel set so we don't hold the lock while sending
	var chans []chan Event
	if m, ok := b.subs[topic]; ok {
		chans = make([]chan Event, 0, len(m))
		for _, sub := range m {
			chans = append(chans, sub.ch)
		}
	}
	b.mu.Unlock()

	for _, ch := range chans {
		b.publishReplace(ch, ev)
	}
}

// publishReplace tries to deliver ev to ch. If ch is full, it removes the
// existing item (if any) and then attempts to send ev. All operations are
// non-blocking to avoid global stalls.
func (b *Bus) publishReplace(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}

	// Channel full: drop the old value then attempt to send the new one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
		log.Printf("[error] dropped event: %+v", ev)
	}
}

// Subscribe subscribes to a topic and returns a receive-only channel and an
// unsubscribe func. If withLast is true and there is a stored "last" event,
// that event is delivered immediately. The subscription is removed and the
// channel closed when ctx is canceled or unsubscribe is called.
func (b *Bus) Subscribe(ctx context.Context, topic Topic, withLast bool) (<-chan Event, func()) {

	if b.closed.Load() {
		// Subscribing after the bus is closed yields a closed channel
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	sub := &subscriber{ch: make(chan Event, 1)}
	ch := sub.ch
	id := atomic.AddUint64(&b.idCounter, 1)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*subscriber)
	}
	b.subs[topic][id] = sub

	var last Event
	var hasLast bool
	if withLast {
		last, hasLast = b.last[topic]
	}
	b.mu.Unlock()

	if withLast && hasLast {
		b.publishReplace(ch, last)
	}

	done := make(chan struct{})
	unsub := func() {
		select {
		case <-done:
			// already unsubscribed
		default:
			close(done)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}

		b.mu.Lock()
		if m, ok := b.subs[topic]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, topic)
			}
		}
		b.mu.Unlock()
		sub.close()
	}()

	return ch, unsub
}

// GetLast returns the last published event for a topic (if any).
func (b *Bus) GetLast(topic Topic) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.last[topic]
	return v, ok
}

// Close closes the bus and all subscriber channels. After Close, Publish is
// a no-op and Subscribe returns a closed channel.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return // already closed
	}
	b.mu.Lock()
	for _, m := range b.subs {
		for _, sub := range m {
			sub.close()
		}
	}
	b.subs = nil
	b.last = nil
	b.mu.Unlock()
}
