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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Event) Event {
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(context.Background(), "ticks", false)
	defer unsub()

	b.Publish("ticks", 42)
	assert.Equal(t, 42, recv(t, ch))
}

func TestSlowSubscriberSeesLatestOnly(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(context.Background(), "ticks", false)
	defer unsub()

	// nobody draining: each publish replaces the undelivered value
	b.Publish("ticks", 1)
	b.Publish("ticks", 2)
	b.Publish("ticks", 3)

	assert.Equal(t, 3, recv(t, ch))
}

func TestSubscribeWithLast(t *testing.T) {
	b := New()
	defer b.Close()

	b.Publish("ticks", "stored")

	ch, unsub := b.Subscribe(context.Background(), "ticks", true)
	defer unsub()
	assert.Equal(t, "stored", recv(t, ch))

	// without the flag, only future events arrive
	ch2, unsub2 := b.Subscribe(context.Background(), "ticks", false)
	defer unsub2()
	select {
	case ev := <-ch2:
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestGetLast(t *testing.T) {
	b := New()
	defer b.Close()

	_, ok := b.GetLast("ticks")
	assert.False(t, ok)

	b.Publish("ticks", 7)
	ev, ok := b.GetLast("ticks")
	assert.True(t, ok)
	assert.Equal(t, 7, ev)
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(context.Background(), "a", false)
	defer unsub()

	b.Publish("b", "wrong topic")
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(context.Background(), "ticks", false)
	unsub()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestContextCancelClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "ticks", false)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestClose(t *testing.T) {
	b := New()

	ch, _ := b.Subscribe(context.Background(), "ticks", false)
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	// publish after close is a no-op
	b.Publish("ticks", 1)

	// subscribe after close yields a closed channel
	ch2, _ := b.Subscribe(context.Background(), "ticks", false)
	_, ok = <-ch2
	assert.False(t, ok)
}
