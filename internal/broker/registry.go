package broker

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Config is the validated kernel configuration. Environment parsing happens
// in internal/config; the registry only ever sees this struct.
type Config struct {
	MaxQueueSize   int    // per-subscriber outbound queue capacity
	RingBufferSize int    // per-topic replay history capacity
	Policy         Policy // backpressure policy applied on queue overflow
}

// PublishHook is a callback invoked after each successful publish, outside
// the registry critical section. Hooks must not block for long; they run on
// the publisher's goroutine.
type PublishHook func(Event)

// TopicInfo is one entry of ListTopics.
type TopicInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

// TopicStats is one entry of Stats.
type TopicStats struct {
	Messages    uint64 `json:"messages"`
	Subscribers int    `json:"subscribers"`
}

// HealthInfo is the result of Health.
type HealthInfo struct {
	UptimeSec   int64 `json:"uptime_sec"`
	Topics      int   `json:"topics"`
	Subscribers int   `json:"subscribers"`
}

// PublishResult reports the outcome of a fan-out.
type PublishResult struct {
	Event              Event
	SubscribersReached int
	Failed             []string // client IDs that did not receive the event
}

// Registry is the single source of truth for topics, subscribers, and their
// cross-references. One coarse mutex serializes every mutation so that the
// membership, history, and queue invariants hold atomically for any
// concurrent observer. No network I/O happens under the lock: transports
// only ever see non-blocking TrySend/Kick calls, and queue draining runs
// after the critical section.
type Registry struct {
	mu      sync.Mutex
	cfg     Config
	topics  map[string]*topicRecord
	subs    map[string]*Subscriber
	started time.Time
	closed  bool

	hookMu sync.RWMutex
	hooks  []PublishHook
}

// NewRegistry creates an empty registry with the given configuration.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:     cfg,
		topics:  make(map[string]*topicRecord),
		subs:    make(map[string]*Subscriber),
		started: time.Now(),
	}
}

// OnPublish registers a hook invoked for every successfully published event.
func (r *Registry) OnPublish(hook PublishHook) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.hooks = append(r.hooks, hook)
}

func (r *Registry) runHooks(ev Event) {
	r.hookMu.RLock()
	defer r.hookMu.RUnlock()
	for _, hook := range r.hooks {
		hook(ev)
	}
}

// CreateTopic registers a new topic name.
func (r *Registry) CreateTopic(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if strings.TrimSpace(name) == "" {
		return ErrEmptyTopicName
	}
	if _, ok := r.topics[name]; ok {
		return ErrTopicExists
	}
	r.topics[name] = newTopicRecord(name, r.cfg.RingBufferSize)
	log.Printf("broker: topic %q created", name)
	return nil
}

// DeleteTopic removes a topic. Every joined subscriber is detached and
// receives a topic_deleted info frame through its outbound queue, subject to
// the usual backpressure policy; their transports stay open.
func (r *Registry) DeleteTopic(name string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	t, ok := r.topics[name]
	if !ok {
		r.mu.Unlock()
		return ErrTopicNotFound
	}

	frame := InfoFrame(InfoTopicDeleted, "", name)
	var out delivery
	for _, s := range t.subs {
		delete(s.topics, name)
		r.deliverLocked(s, frame, &out)
	}
	delete(r.topics, name)
	r.mu.Unlock()

	out.settle()
	log.Printf("broker: topic %q deleted (%d subscribers notified)", name, len(out.drains))
	return nil
}

// ListTopics returns every topic with its subscriber count, ordered by name.
func (r *Registry) ListTopics() []TopicInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TopicInfo, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, TopicInfo{Name: t.name, Subscribers: len(t.subs)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subscribe joins clientID to topic, creating the subscriber record on first
// use. With lastN > 0 the most recent min(lastN, history) events are queued
// for replay in publish order. Re-subscribing an already-joined pair is a
// membership no-op but still replays.
func (r *Registry) Subscribe(clientID string, tr Transport, topic string, lastN int) (*Subscriber, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	t, ok := r.topics[topic]
	if !ok {
		r.mu.Unlock()
		return nil, ErrTopicNotFound
	}

	s, ok := r.subs[clientID]
	if !ok {
		s = newSubscriber(clientID, tr, r.cfg.MaxQueueSize)
		r.subs[clientID] = s
	}
	t.subs[clientID] = s
	s.topics[topic] = struct{}{}

	var out delivery
	if lastN > 0 {
		for _, ev := range t.history.Last(lastN) {
			r.deliverLocked(s, EventFrame(ev), &out)
		}
	}
	r.mu.Unlock()

	out.settle()
	log.Printf("broker: client %s subscribed to %q (last_n=%d)", clientID, topic, lastN)
	return s, nil
}

// Unsubscribe removes the (clientID, topic) cross-references.
func (r *Registry) Unsubscribe(clientID, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	t, ok := r.topics[topic]
	if !ok {
		return ErrTopicNotFound
	}
	s, ok := r.subs[clientID]
	if !ok {
		return ErrNotSubscribed
	}
	if _, joined := s.topics[topic]; !joined {
		return ErrNotSubscribed
	}

	delete(t.subs, clientID)
	delete(s.topics, topic)
	log.Printf("broker: client %s unsubscribed from %q", clientID, topic)
	return nil
}

// Publish appends msg to the topic history and fans the event out to every
// joined subscriber. A failure to reach one subscriber never affects the
// others; failed recipients are reported in the result.
func (r *Registry) Publish(topic string, msg Message) (PublishResult, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return PublishResult{}, ErrClosed
	}
	t, ok := r.topics[topic]
	if !ok {
		r.mu.Unlock()
		return PublishResult{}, ErrTopicNotFound
	}

	ev := Event{Topic: topic, Message: msg, TS: Timestamp()}
	t.history.Push(ev)
	t.msgs++

	frame := EventFrame(ev)
	var out delivery
	res := PublishResult{Event: ev}
	for _, s := range t.subs {
		if r.deliverLocked(s, frame, &out) {
			res.SubscribersReached++
		} else {
			res.Failed = append(res.Failed, s.ClientID)
		}
	}
	r.mu.Unlock()

	out.settle()
	r.runHooks(ev)
	return res, nil
}

// RemoveSubscriber detaches clientID from every joined topic and discards
// the record. It is idempotent and safe to call for unknown IDs.
func (r *Registry) RemoveSubscriber(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeSubscriberLocked(clientID)
}

// ReleaseTransport removes every subscriber bound to tr. Sessions call this
// once while closing so that a transport observed dead cleans up all
// identities it registered.
func (r *Registry) ReleaseTransport(tr Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.subs {
		if s.transport == tr {
			r.removeSubscriberLocked(id)
		}
	}
}

func (r *Registry) removeSubscriberLocked(clientID string) {
	s, ok := r.subs[clientID]
	if !ok {
		return
	}
	for name := range s.topics {
		if t, ok := r.topics[name]; ok {
			delete(t.subs, clientID)
		}
	}
	delete(r.subs, clientID)
	log.Printf("broker: subscriber %s removed", clientID)
}

// Health reports uptime and table sizes.
func (r *Registry) Health() HealthInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	return HealthInfo{
		UptimeSec:   int64(time.Since(r.started).Seconds()),
		Topics:      len(r.topics),
		Subscribers: len(r.subs),
	}
}

// Stats reports per-topic message and subscriber counts.
func (r *Registry) Stats() map[string]TopicStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]TopicStats, len(r.topics))
	for name, t := range r.topics {
		out[name] = TopicStats{Messages: t.msgs, Subscribers: len(t.subs)}
	}
	return out
}

// delivery accumulates the side effects of enqueues performed under the
// registry lock so they can settle after it is released: queue drains, and
// slow-consumer kicks under the DISCONNECT policy.
type delivery struct {
	drains []*Subscriber
	kicks  []*Subscriber
}

// deliverLocked enqueues frame for s, applying the backpressure policy, and
// reports whether the frame was accepted. Must be called with r.mu held.
func (r *Registry) deliverLocked(s *Subscriber, frame []byte, out *delivery) bool {
	if !s.transport.Open() {
		r.removeSubscriberLocked(s.ClientID)
		return false
	}

	switch s.enqueue(frame, r.cfg.Policy) {
	case enqueueRejected:
		r.removeSubscriberLocked(s.ClientID)
		out.kicks = append(out.kicks, s)
		return false
	case enqueueDroppedOldest:
		log.Printf("broker: subscriber %s queue full, dropped oldest frame", s.ClientID)
	}
	out.drains = append(out.drains, s)
	return true
}

// settle runs the deferred transport work: drains first, then slow-consumer
// kicks (a best-effort SLOW_CONSUMER error frame followed by a 1008 close).
func (d *delivery) settle() {
	for _, s := range d.drains {
		s.Drain()
	}
	for _, s := range d.kicks {
		s.transport.TrySend(ErrorFrame(nil, CodeSlowConsumer, "outbound queue overflow")) //nolint:errcheck // best effort
		s.transport.Kick(ClosePolicyReason, "SLOW_CONSUMER")
	}
}

// Shutdown drains and releases all broker state: no further operations are
// accepted, every subscriber gets a bounded chance (the ctx deadline) to
// empty its queue, and remaining transports are kicked with close code 1001.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	remaining := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		remaining = append(remaining, s)
	}
	r.mu.Unlock()

	// Bounded drain: the deadline is a ceiling, not a promise that every
	// queue empties.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
drain:
	for {
		pending := 0
		for _, s := range remaining {
			s.Drain()
			pending += s.QueueLen()
		}
		if pending == 0 {
			break
		}
		select {
		case <-ctx.Done():
			log.Printf("broker: shutdown drain deadline reached with %d frames pending", pending)
			break drain
		case <-ticker.C:
		}
	}

	for _, s := range remaining {
		s.transport.Kick(CloseGoingAway, "Server shutting down")
	}

	r.mu.Lock()
	r.topics = make(map[string]*topicRecord)
	r.subs = make(map[string]*Subscriber)
	r.mu.Unlock()
	log.Printf("broker: registry shut down")
}
