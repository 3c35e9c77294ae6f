package msg

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(8)
	q.Enqueue(Message{Kind: KindSay, Text: "one"})
	q.Enqueue(Message{Kind: KindSay, Text: "two"})
	q.Enqueue(Message{Kind: KindTell, Text: "three"})

	out := q.Drain()
	require.Len(t, out, 3)
	assert.Equal(t, "one", out[0].Text)
	assert.Equal(t, "two", out[1].Text)
	assert.Equal(t, "three", out[2].Text)

	assert.Empty(t, q.Drain())
	assert.Zero(t, q.Len())
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue(Message{Text: "a"})
	q.Enqueue(Message{Text: "b"})
	q.Enqueue(Message{Text: "c"})

	assert.Equal(t, uint64(1), q.Dropped())
	out := q.Drain()
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Text)
	assert.Equal(t, "b", out[1].Text)
}

func TestQueueDropCountSurvivesConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 50
	q := NewQueue(4)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(Message{Kind: KindRoom})
			}
		}()
	}
	wg.Wait()

	// every message is either delivered or counted, none lost silently
	delivered := len(q.Drain())
	assert.Equal(t, uint64(producers*perProducer), uint64(delivered)+q.Dropped())
}

func TestQueueDefaultCapacity(t *testing.T) {
	q := NewQueue(0)
	for i := 0; i < 100; i++ {
		q.Enqueue(Message{Kind: KindRoom})
	}
	assert.Zero(t, q.Dropped())
	assert.Len(t, q.Drain(), 100)
}
