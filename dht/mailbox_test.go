package dht

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxFIFO(t *testing.T) {
	mb := newMailbox[int]()
	for i := 0; i < 1000; i++ {
		mb.Post(i)
	}
	assert.Equal(t, 1000, mb.Len())

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		v, ok := mb.Receive(ctx)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, mb.Len())
}

func TestMailboxReceiveBlocksUntilPost(t *testing.T) {
	mb := newMailbox[string]()
	got := make(chan string, 1)

	go func() {
		v, _ := mb.Receive(context.Background())
		got <- v
	}()

	time.Sleep(20 * time.Millisecond)
	mb.Post("hello")

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken")
	}
}

func TestMailboxReceiveCancelled(t *testing.T) {
	mb := newMailbox[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := mb.Receive(ctx)
	assert.False(t, ok)
}

func TestMailboxConcurrentProducers(t *testing.T) {
	mb := newMailbox[int]()
	const producers, perProducer = 8, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				mb.Post(i)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := 0
	for received < producers*perProducer {
		_, ok := mb.Receive(ctx)
		require.True(t, ok)
		received++
	}
	wg.Wait()
	assert.Equal(t, 0, mb.Len())
}
