// Package msg is the tick-drained message queue: multi-producer (commands,
// heartbeats, callouts, world code), single consumer (the tick loop). A
// buffered channel gives the lock-free MPSC semantics; FIFO order per
// producer is preserved end to end.
package msg

import "sync/atomic"

// Kind selects the fan-out rule the server applies when draining.
type Kind int

const (
	KindSystem Kind = iota // direct to recipient
	KindTell               // direct to recipient, sender attributed
	KindSay                // everyone in Room, sender included
	KindEmote              // everyone in Room except the sender
	KindRoom               // everyone in Room, sender included, unattributed
)

// Message is one queued fan-out request. Recipient is a session pseudo-ID
// or player object ID; Room targets every session whose player is inside.
type Message struct {
	Sender    string
	Recipient string
	Kind      Kind
	Text      string
	Room      string
}

// Queue is drained once per tick. Enqueue never blocks: if the buffer is
// full the message is dropped and counted, because a stalled producer
// would otherwise wedge the world-state critical section.
type Queue struct {
	ch chan Message

	// dropped is atomic: producers include goroutines outside the tick
	// loop, such as asynchronous provider replies.
	dropped atomic.Uint64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Queue{ch: make(chan Message, capacity)}
}

// Enqueue queues one message, at-most-once per eventual recipient.
func (q *Queue) Enqueue(m Message) {
	select {
	case q.ch <- m:
	default:
		q.dropped.Add(1)
	}
}

// Drain empties the queue in FIFO order. Called only by the tick loop.
func (q *Queue) Drain() []Message {
	var out []Message
	for {
		select {
		case m := <-q.ch:
			out = append(out, m)
		default:
			return out
		}
	}
}

func (q *Queue) Len() int { return len(q.ch) }

// Dropped reports messages lost to backpressure since startup.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
