// Package events fans post activity out to Server-Sent Events subscribers.
// The Broadcaster keeps one buffered channel per connected client; publishing
// never blocks, so a client that stops reading loses events instead of
// stalling the request that produced them.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultBuffer = 16

// Event is one SSE frame. Data is the JSON body written after "data:".
type Event struct {
	ID   uint64
	Type string
	Data []byte
}

type payload struct {
	PostID string      `json:"postId"`
	Post   interface{} `json:"post,omitempty"`
}

// Broadcaster manages subscribers and delivers every published event to each of them.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]chan Event
	buffer  int

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewBroadcaster creates a Broadcaster whose subscribers buffer up to `buffer` events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broadcaster{clients: make(map[string]chan Event), buffer: buffer}
}

// Subscribe registers a client and returns its id and receive channel.
// The channel is closed by Unsubscribe.
func (b *Broadcaster) Subscribe() (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, b.buffer)
	b.clients[id] = ch
	logrus.WithField("client_id", id).Debug("event subscriber registered")
	return id, ch
}

// Unsubscribe removes the client and closes its channel. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		logrus.WithField("client_id", id).Debug("event subscriber removed")
	}
}

// Publish sends an event about postID to every subscriber. post may be nil.
func (b *Broadcaster) Publish(kind, postID string, post interface{}) {
	data, err := json.Marshal(payload{PostID: postID, Post: post})
	if err != nil {
		logrus.WithError(err).WithField("type", kind).Error("failed to encode event")
		return
	}
	event := Event{ID: b.seq.Add(1), Type: kind, Data: data}

	// The read lock also keeps Unsubscribe from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.clients {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			logrus.WithFields(logrus.Fields{"client_id": id, "type": kind}).Debug("event dropped for slow subscriber")
		}
	}
}

// Clients returns the number of connected subscribers.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Dropped returns how many deliveries were skipped because a subscriber's buffer was full.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close disconnects every subscriber. Open streams end once their channel is drained.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}
