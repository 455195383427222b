package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/complexity"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

// Config configures the gated client.
type Config struct {
	// QueueSize is the outgoing message buffer. When the queue is full
	// further messages are dropped (telemetry loss is tolerable).
	// Default: 4096.
	QueueSize int

	// RateLimit caps outgoing messages per second. Default: 500.
	RateLimit rate.Limit

	// Burst is the limiter burst size. Default: 200.
	Burst int

	// ClearWindow is how long a clear operation listens for retained
	// deliveries before erasing them. Default: 2s.
	ClearWindow time.Duration
}

// DefaultConfig returns the production client configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:   4096,
		RateLimit:   500,
		Burst:       200,
		ClearWindow: 2 * time.Second,
	}
}

// Counters reports message accounting for the status topic.
type Counters struct {
	Published uint64 `json:"messages_published"`
	Dropped   uint64 `json:"messages_dropped"`
	Failed    uint64 `json:"messages_failed"`
}

// Client is the level-gated publisher. Publish may be called from the
// tick loop while the level is changed from the control path; the level
// is atomic so no further synchronization is needed.
type Client struct {
	cfg       Config
	transport Transport
	log       *zap.Logger
	limiter   *rate.Limiter

	level atomic.Int32

	queue    chan uns.Message
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	// retained tracks every retained topic this client has published, so
	// targeted clears (site disable) work without broker discovery.
	retained sync.Map // topic -> struct{}
}

// NewClient creates a Client at the given starting level.
func NewClient(t Transport, cfg Config, level complexity.Level, log *zap.Logger) *Client {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 4096
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 500
	}
	if cfg.Burst == 0 {
		cfg.Burst = 200
	}
	if cfg.ClearWindow == 0 {
		cfg.ClearWindow = 2 * time.Second
	}
	c := &Client{
		cfg:       cfg,
		transport: t,
		log:       log,
		limiter:   rate.NewLimiter(cfg.RateLimit, cfg.Burst),
		queue:     make(chan uns.Message, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	c.level.Store(int32(level))
	return c
}

// Start launches the background sender. It returns after the sender is
// running; Stop shuts it down.
func (c *Client) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case msg := <-c.queue:
				c.send(ctx, msg)
			case <-c.done:
				// Drain what is already queued, then exit.
				for {
					select {
					case msg := <-c.queue:
						c.send(ctx, msg)
					default:
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop flushes the queue and stops the sender. Safe to call twice.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Client) send(ctx context.Context, msg uns.Message) {
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}
	if err := c.transport.Publish(msg); err != nil {
		c.failed.Add(1)
		c.log.Warn("publish failed",
			zap.String("topic", msg.Topic),
			zap.Error(err))
		return
	}
	c.published.Add(1)
}

// Level returns the current complexity level.
func (c *Client) Level() complexity.Level {
	return complexity.Level(c.level.Load())
}

// SetLevel changes the gate level for all subsequent publishes.
func (c *Client) SetLevel(l complexity.Level) {
	c.level.Store(int32(l.Clamp()))
}

// Publish enqueues msg iff the current level enables requiredLevel. The
// return value reports whether the message was accepted; a gated-off
// publish is an expected no-op, not an error.
func (c *Client) Publish(msg uns.Message, requiredLevel complexity.Level) bool {
	if !c.Level().Enables(requiredLevel) {
		c.dropped.Add(1)
		return false
	}
	return c.enqueue(msg)
}

// PublishRaw bypasses the gate for control and status topics.
func (c *Client) PublishRaw(msg uns.Message) bool {
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg uns.Message) bool {
	select {
	case c.queue <- msg:
		// Track retained topics only for accepted messages, so a later
		// clear does not erase topics that never reached the broker.
		if msg.Retain && len(msg.Payload) > 0 {
			c.retained.Store(msg.Topic, struct{}{})
		}
		return true
	default:
		c.dropped.Add(1)
		c.log.Warn("publish queue full, dropping message",
			zap.String("topic", msg.Topic))
		return false
	}
}

// Counters returns a snapshot of the message accounting.
func (c *Client) Counters() Counters {
	return Counters{
		Published: c.published.Load(),
		Dropped:   c.dropped.Load(),
		Failed:    c.failed.Load(),
	}
}

// Subscribe forwards to the transport.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	return c.transport.Subscribe(filter, qos, handler)
}

// ClearRetained discovers retained topics under the given MQTT subscribe
// filter, keeps those matching any of the doublestar patterns (all, when
// patterns is empty), and erases each by republishing an empty retained
// payload. It blocks for the configured discovery window and returns the
// number of topics cleared.
func (c *Client) ClearRetained(ctx context.Context, subscribeFilter string, patterns ...string) (int, error) {
	var mu sync.Mutex
	found := make(map[string]struct{})

	handler := func(topic string, payload []byte, retained bool) {
		if !retained || len(payload) == 0 {
			return
		}
		mu.Lock()
		found[topic] = struct{}{}
		mu.Unlock()
	}
	if err := c.transport.Subscribe(subscribeFilter, 1, handler); err != nil {
		return 0, err
	}

	select {
	case <-time.After(c.cfg.ClearWindow):
	case <-ctx.Done():
	}
	if err := c.transport.Unsubscribe(subscribeFilter); err != nil {
		c.log.Warn("unsubscribe after clear discovery failed", zap.Error(err))
	}

	mu.Lock()
	defer mu.Unlock()
	cleared := 0
	for topic := range found {
		if !matchAny(patterns, topic) {
			continue
		}
		c.eraseRetained(topic)
		cleared++
	}
	return cleared, nil
}

// ClearTracked erases the retained topics this client has published that
// match any of the doublestar patterns. Used when a site is disabled.
func (c *Client) ClearTracked(patterns ...string) int {
	cleared := 0
	c.retained.Range(func(key, _ any) bool {
		topic := key.(string)
		if matchAny(patterns, topic) {
			c.eraseRetained(topic)
			cleared++
		}
		return true
	})
	return cleared
}

func (c *Client) eraseRetained(topic string) {
	c.retained.Delete(topic)
	c.enqueue(uns.Message{Topic: topic, Retain: true, QoS: 1})
}

func matchAny(patterns []string, topic string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if uns.Match(p, topic) {
			return true
		}
	}
	return false
}
