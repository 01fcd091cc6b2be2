// Package broadcast fans events out to every registered connection. Each
// connection gets a bounded queue drained by its own pump goroutine, so a slow
// or dead peer never stalls the publisher or the other peers.
package broadcast

import (
	"sync"
	"sync/atomic"

	"exam-session-service/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultQueueSize is the per-connection backlog used when Options leaves it zero.
const DefaultQueueSize = 16

// Conn is the write side of one client channel.
type Conn interface {
	Send(domain.Event) error
	Close() error
}

// OverflowPolicy decides what happens when a connection's queue is full.
type OverflowPolicy int

const (
	// DropOldest discards the oldest queued event to make room.
	DropOldest OverflowPolicy = iota
	// Disconnect evicts the connection.
	Disconnect
)

type Options struct {
	QueueSize int
	Overflow  OverflowPolicy
	Logger    zerolog.Logger
}

// Stats are cumulative counters, safe to read at any time.
type Stats struct {
	Published int64
	Dropped   int64
	Evicted   int64
}

type client struct {
	id    string
	conn  Conn
	queue chan domain.Event
	done  chan struct{}
	once  sync.Once
}

func (c *client) stop() bool {
	stopped := false
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		stopped = true
	})
	return stopped
}

// Bus delivers events best-effort, at most once per connection.
type Bus struct {
	queueSize int
	overflow  OverflowPolicy
	log       zerolog.Logger

	mu      sync.Mutex
	clients map[string]*client
	onEvict func(id string)
	wg      sync.WaitGroup

	published atomic.Int64
	dropped   atomic.Int64
	evicted   atomic.Int64
}

func New(opts Options) *Bus {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Bus{
		queueSize: size,
		overflow:  opts.Overflow,
		log:       opts.Logger.With().Str("component", "broadcast").Logger(),
		clients:   make(map[string]*client),
	}
}

// OnEvict registers a hook run on its own goroutine whenever the bus drops a
// connection by itself because a write failed or its queue overflowed. Publish
// may be called while the hook's owner holds a lock, so the hook never runs
// inline.
func (b *Bus) OnEvict(fn func(id string)) {
	b.mu.Lock()
	b.onEvict = fn
	b.mu.Unlock()
}

// Register starts delivering to conn and returns its id.
func (b *Bus) Register(conn Conn) string {
	c := &client{
		id:    uuid.NewString(),
		conn:  conn,
		queue: make(chan domain.Event, b.queueSize),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.clients[c.id] = c
	b.wg.Add(1)
	b.mu.Unlock()

	go b.pump(c)
	return c.id
}

// Unregister stops delivery and closes the connection. Unknown or already
// removed ids are ignored.
func (b *Bus) Unregister(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()
	if ok {
		c.stop()
	}
}

// Publish queues ev for every connection. It never blocks and never fails.
func (b *Bus) Publish(ev domain.Event) {
	b.published.Add(1)
	var overflowed []*client

	b.mu.Lock()
	for _, c := range b.clients {
		if !b.enqueueLocked(c, ev) {
			overflowed = append(overflowed, c)
		}
	}
	b.mu.Unlock()

	for _, c := range overflowed {
		b.evict(c, "queue overflow")
	}
}

// SendTo queues ev for a single connection. It reports false when the id is
// unknown.
func (b *Bus) SendTo(id string, ev domain.Event) bool {
	b.mu.Lock()
	c, ok := b.clients[id]
	queued := ok && b.enqueueLocked(c, ev)
	b.mu.Unlock()

	if ok && !queued {
		b.evict(c, "queue overflow")
	}
	return ok
}

// Len is the number of open connections, identified or not.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
		Evicted:   b.evicted.Load(),
	}
}

// Close disconnects everyone and waits for the pumps to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for id, c := range b.clients {
		clients = append(clients, c)
		delete(b.clients, id)
	}
	b.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	b.wg.Wait()
}

// enqueueLocked reports false when the connection must be evicted.
func (b *Bus) enqueueLocked(c *client, ev domain.Event) bool {
	select {
	case c.queue <- ev:
		return true
	default:
	}

	b.dropped.Add(1)
	if b.overflow == Disconnect {
		return false
	}
	select {
	case <-c.queue:
	default:
	}
	select {
	case c.queue <- ev:
	default:
	}
	b.log.Debug().Str("conn", c.id).Str("event", string(ev.Type)).Msg("queue full, dropped oldest event")
	return true
}

func (b *Bus) pump(c *client) {
	defer b.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.queue:
			if err := c.conn.Send(ev); err != nil {
				b.log.Debug().Err(err).Str("conn", c.id).Msg("write failed")
				b.evict(c, "write failed")
				return
			}
		}
	}
}

func (b *Bus) evict(c *client, reason string) {
	b.mu.Lock()
	if cur, ok := b.clients[c.id]; ok && cur == c {
		delete(b.clients, c.id)
	}
	hook := b.onEvict
	b.mu.Unlock()

	if !c.stop() {
		return
	}
	b.evicted.Add(1)
	b.log.Warn().Str("conn", c.id).Str("reason", reason).Msg("connection evicted")
	if hook != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			hook(c.id)
		}()
	}
}
