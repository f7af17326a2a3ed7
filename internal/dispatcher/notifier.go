package dispatcher

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nirv/nirv/pkg/types"
)

// EventType is the kind of registry change.
type EventType int

const (
	ConnectorRegistered EventType = iota
	ConnectorUnregistered
)

func (t EventType) String() string {
	if t == ConnectorUnregistered {
		return "unregistered"
	}
	return "registered"
}

// Event describes one registry change.
type Event struct {
	Type          EventType
	ObjectType    string
	ConnectorName string
	ConnectorType types.ConnectorType
	Timestamp     time.Time
}

// Notifier is an in-process pub/sub bus for registry changes.
type Notifier struct {
	subscribers sync.Map
	bufferSize  int
	nextID      atomic.Uint64
}

// NewNotifier creates a notifier whose subscriber channels hold
// bufferSize events.
func NewNotifier(bufferSize int) *Notifier {
	return &Notifier{bufferSize: bufferSize}
}

// Subscriber receives events on Ch.
type Subscriber struct {
	ID          string
	ObjectTypes []string
	Ch          chan Event

	mu     sync.Mutex
	closed bool
}

// deliver sends ev unless the subscriber is closed or its channel is full.
func (s *Subscriber) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.Ch <- ev:
	default:
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.Ch)
	}
}

// Publish sends an event to every matching subscriber.
// Non-blocking: if a subscriber's channel is full, the event is dropped.
func (n *Notifier) Publish(ev Event) {
	n.subscribers.Range(func(_, value interface{}) bool {
		sub := value.(*Subscriber)
		if matchesFilter(sub, ev.ObjectType) {
			sub.deliver(ev)
		}
		return true
	})
}

// Subscribe registers a subscriber. With no object types it receives
// every event.
func (n *Notifier) Subscribe(objectTypes ...string) *Subscriber {
	sub := &Subscriber{
		ID:          "sub_" + strconv.FormatUint(n.nextID.Add(1), 10),
		ObjectTypes: objectTypes,
		Ch:          make(chan Event, n.bufferSize),
	}
	n.subscribers.Store(sub.ID, sub)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. A Publish
// running concurrently skips the closed subscriber.
func (n *Notifier) Unsubscribe(id string) {
	if value, ok := n.subscribers.LoadAndDelete(id); ok {
		value.(*Subscriber).close()
	}
}

func matchesFilter(sub *Subscriber, objectType string) bool {
	if len(sub.ObjectTypes) == 0 {
		return true
	}
	for _, t := range sub.ObjectTypes {
		if t == objectType {
			return true
		}
	}
	return false
}
