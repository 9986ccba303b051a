// Package pubsub is a minimal supplemented feature, not one of the core
// components: topic subscription keyed by message type, at-most-once
// fan-out to whichever subscribers are registered at publish time, no
// durability, no partition handling, no metrics. Anything beyond that is
// deliberately left out.
package pubsub

import (
	"reflect"
	"sync"

	"github.com/babyman/fraktor/internal/pathreg"
	"github.com/babyman/fraktor/internal/system"
)

// Broker tracks, per message type, the set of actors currently
// subscribed to it, and fans a published message out to all of them via
// the owning system's Tell.
type Broker struct {
	sys *system.SystemState

	mu          sync.RWMutex
	subscribers map[reflect.Type]map[pathreg.Pid]struct{}
}

// NewBroker creates an empty broker bound to sys. Delivery always goes
// through sys.Tell, so a subscriber's mailbox/dead-letter handling is
// unchanged from any other message sent through the system.
func NewBroker(sys *system.SystemState) *Broker {
	return &Broker{
		sys:         sys,
		subscribers: make(map[reflect.Type]map[pathreg.Pid]struct{}),
	}
}

// Subscribe registers subscriber to receive every future Publish call
// whose message is of type topic. Subscribing the same pid to the same
// topic twice is a no-op.
func (b *Broker) Subscribe(topic reflect.Type, subscriber pathreg.Pid) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[topic]
	if !ok {
		set = make(map[pathreg.Pid]struct{})
		b.subscribers[topic] = set
	}
	set[subscriber] = struct{}{}
}

// Unsubscribe removes subscriber from topic. Unsubscribing a pid that was
// never subscribed is a no-op.
func (b *Broker) Unsubscribe(topic reflect.Type, subscriber pathreg.Pid) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[topic]
	if !ok {
		return
	}
	delete(set, subscriber)
	if len(set) == 0 {
		delete(b.subscribers, topic)
	}
}

// Publish delivers msg to every pid currently subscribed to
// reflect.TypeOf(msg), and returns how many subscribers it was delivered
// to. A message with no subscribers is simply dropped — there is no
// queue to hold it for a future subscriber.
func (b *Broker) Publish(from pathreg.Pid, msg any) int {
	topic := reflect.TypeOf(msg)

	b.mu.RLock()
	set := b.subscribers[topic]
	targets := make([]pathreg.Pid, 0, len(set))
	for pid := range set {
		targets = append(targets, pid)
	}
	b.mu.RUnlock()

	for _, pid := range targets {
		b.sys.Tell(from, pid, msg)
	}
	return len(targets)
}

// SubscriberCount reports how many pids are currently subscribed to
// topic, for tests and diagnostics.
func (b *Broker) SubscriberCount(topic reflect.Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}
