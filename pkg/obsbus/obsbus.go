// Package obsbus implements the Observability Bus (spec.md §4.5): an
// in-memory ring buffer feeding asynchronous fan-out to live subscribers,
// plus a durable append-only sink.
//
// Push is non-blocking. Internally it is a single-writer-multi-reader
// channel abstraction (spec.md §5): a bounded channel stands in for the
// ring buffer itself, and a drop-oldest policy on overflow is implemented
// by racing a send against a receive-then-send, exactly the idiom named
// in the concurrency model.
package obsbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/obsmetrics"
)

// Event is the bus's in-memory representation of one observability
// occurrence. TaskID, Progress, and Step are optional; the zero value
// means "not applicable to this event".
type Event struct {
	OrgSlug        string
	UserID         string
	ConversationID string
	AgentSlug      string
	TaskID         string
	SourceApp      string
	EventType      string
	Status         string
	Message        string
	Progress       *float64
	Step           string
	Payload        map[string]any

	// DisplayName is filled in by username enrichment before fan-out. Empty
	// when the enrichment cache missed and the lookup is still in flight.
	DisplayName string

	CreatedAt time.Time
}

// Filter narrows a Subscribe call to a subset of {userId, conversationId,
// agentSlug, taskId}. A zero field matches everything for that dimension.
type Filter struct {
	UserID         string
	ConversationID string
	AgentSlug      string
	TaskID         string
}

func (f Filter) matches(e Event) bool {
	if f.UserID != "" && f.UserID != e.UserID {
		return false
	}
	if f.ConversationID != "" && f.ConversationID != e.ConversationID {
		return false
	}
	if f.AgentSlug != "" && f.AgentSlug != e.AgentSlug {
		return false
	}
	if f.TaskID != "" && f.TaskID != e.TaskID {
		return false
	}
	return true
}

// HistoryFilter narrows a History query (spec.md: since, until?, limit≤5000).
type HistoryFilter struct {
	Since time.Time
	Until time.Time
	Limit int
}

// DurableSink is the subset of the Artifact Store the bus appends every
// event to and reads historical events from. Declared here, implemented by
// *pkg/store.Store through StoreAdapter, so this package never imports
// pkg/store directly.
type DurableSink interface {
	AppendEvent(ctx context.Context, e Event) error
	History(ctx context.Context, orgSlug string, filter HistoryFilter) ([]Event, error)
}

// UsernameResolver looks up the display name for a userId. There is no
// identity/directory service elsewhere in this module, and cmd/govpipe
// builds the bus with a nil resolver, so its events carry no display name.
type UsernameResolver interface {
	ResolveDisplayName(ctx context.Context, userID string) (string, error)
}

const (
	// DefaultSubscriberQueue is K from spec.md §4.5: a subscriber is
	// dropped once it has this many events queued and unread.
	DefaultSubscriberQueue = 128
)

type subscriber struct {
	id     uint64
	filter Filter
	ch     chan Event
}

// Bus is the Observability Bus. Construct with New and call Run in its own
// goroutine before any Push.
type Bus struct {
	ch   chan Event
	sink DurableSink
	name *usernameCache

	subMu   sync.Mutex
	subs    map[uint64]*subscriber
	nextSub uint64

	dropped        int64 // ring buffer overflow count
	subDropped     int64 // subscriber-dropped-for-slowness count
	subscriberSize int

	metrics *obsmetrics.Metrics
}

// SetMetrics wires the ambient Prometheus collectors into the Bus. A nil
// *obsmetrics.Metrics (the default) makes every recording call a no-op,
// so this is optional to call.
func (b *Bus) SetMetrics(m *obsmetrics.Metrics) { b.metrics = m }

// New builds a Bus with ring buffer capacity bufferCapacity (spec.md
// default 500) and per-subscriber queue depth subscriberQueue (default
// 128, DefaultSubscriberQueue). sink may be nil to disable durable
// persistence (tests only — production always wires one). resolver/cache
// may also be nil to skip username enrichment entirely.
func New(bufferCapacity, subscriberQueue int, sink DurableSink, resolver UsernameResolver, cacheSize int, cacheTTL time.Duration) *Bus {
	if bufferCapacity <= 0 {
		bufferCapacity = 500
	}
	if subscriberQueue <= 0 {
		subscriberQueue = DefaultSubscriberQueue
	}
	var cache *usernameCache
	if resolver != nil {
		cache = newUsernameCache(resolver, cacheSize, cacheTTL)
	}
	return &Bus{
		ch:             make(chan Event, bufferCapacity),
		sink:           sink,
		name:           cache,
		subs:           make(map[uint64]*subscriber),
		subscriberSize: subscriberQueue,
	}
}

// Push enqueues e for durable persistence and subscriber fan-out. Never
// blocks: on a full ring buffer the oldest queued event is dropped and the
// drop counter is incremented.
func (b *Bus) Push(e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var dropped bool
	for {
		select {
		case b.ch <- e:
			b.metrics.RecordBusPush(dropped)
			return
		default:
		}
		select {
		case <-b.ch:
			atomic.AddInt64(&b.dropped, 1)
			dropped = true
		default:
			// Another goroutine drained concurrently; loop and retry the send.
		}
	}
}

// Emit implements llmgateway.EventEmitter (and the identical shape used by
// pkg/runner and pkg/dispatch) by translating a capsule-scoped event into
// a Push. sourceApp is derived from cap.AgentType since no caller of Emit
// has a richer notion of "source application" than the capsule already
// carries.
func (b *Bus) Emit(ctx context.Context, cap capsule.Capsule, eventType string, payload map[string]any) {
	b.Push(Event{
		OrgSlug: cap.OrgSlug, UserID: cap.UserID, ConversationID: cap.ConversationID,
		AgentSlug: cap.AgentSlug, TaskID: cap.TaskID, SourceApp: cap.AgentType,
		EventType: eventType, Payload: payload,
	})
}

// Run drains the ring buffer, enriching, persisting, and fanning out each
// event, until ctx is cancelled. Callers start exactly one Run per Bus.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-b.ch:
			if !ok {
				return
			}
			b.deliver(ctx, e)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, e Event) {
	if b.name != nil {
		if name, ok := b.name.lookup(ctx, e.UserID); ok {
			e.DisplayName = name
		}
	}

	if b.sink != nil {
		go func(evt Event) {
			sinkCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = b.sink.AppendEvent(sinkCtx, evt) // failures are the sink's to log; never blocks delivery
		}(e)
	}

	b.fanOut(e)
}

func (b *Bus) fanOut(e Event) {
	b.subMu.Lock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.filter.matches(e) {
			targets = append(targets, s)
		}
	}
	b.subMu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- e:
		default:
			b.dropSubscriber(s.id)
		}
	}
}

// Subscribe registers filter and returns a channel of matching events and
// an Unsubscribe func. The channel is closed when Unsubscribe is called or
// when the subscriber is dropped for being too slow (spec.md: dropped
// after K queued events).
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.subMu.Lock()
	id := b.nextSub
	b.nextSub++
	s := &subscriber{id: id, filter: filter, ch: make(chan Event, b.subscriberSize)}
	b.subs[id] = s
	count := len(b.subs)
	b.subMu.Unlock()
	b.metrics.SetBusSubscribers(count)

	return s.ch, func() { b.dropSubscriber(id) }
}

func (b *Bus) dropSubscriber(id uint64) {
	b.subMu.Lock()
	s, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	count := len(b.subs)
	b.subMu.Unlock()
	if ok {
		atomic.AddInt64(&b.subDropped, 1)
		close(s.ch)
	}
	b.metrics.SetBusSubscribers(count)
}

// History delegates to the durable sink (spec.md: since, until?, limit≤5000).
func (b *Bus) History(ctx context.Context, orgSlug string, filter HistoryFilter) ([]Event, error) {
	if filter.Limit <= 0 || filter.Limit > 5000 {
		filter.Limit = 5000
	}
	return b.sink.History(ctx, orgSlug, filter)
}

// DroppedEvents reports the cumulative ring-buffer overflow count.
func (b *Bus) DroppedEvents() int64 { return atomic.LoadInt64(&b.dropped) }

// DroppedSubscribers reports the cumulative count of subscribers removed
// for falling more than K events behind.
func (b *Bus) DroppedSubscribers() int64 { return atomic.LoadInt64(&b.subDropped) }

// SubscriberCount reports the number of currently active subscribers.
func (b *Bus) SubscriberCount() int {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	return len(b.subs)
}
