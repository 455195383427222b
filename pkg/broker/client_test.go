package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/complexity"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

func newTestClient(t *testing.T, level complexity.Level) (*Client, *MemTransport) {
	t.Helper()
	mt := NewMemTransport()
	require.NoError(t, mt.Connect(context.Background()))

	cfg := DefaultConfig()
	cfg.RateLimit = 100000
	cfg.Burst = 100000
	cfg.ClearWindow = 20 * time.Millisecond

	c := NewClient(mt, cfg, level, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	t.Cleanup(func() {
		c.Stop()
		cancel()
	})
	return c, mt
}

func TestGateFiltersByLevel(t *testing.T) {
	c, mt := newTestClient(t, complexity.LevelSensors)

	msg := uns.NewMessage("umh/v1/metalfab/eindhoven/ERP/Inventory/DC01", []byte("x"))
	ok := c.Publish(msg, complexity.LevelERPMES)
	assert.False(t, ok, "publish above current level is gated off")

	ok = c.Publish(uns.NewMessage("umh/v1/metalfab/eindhoven/cutting/laser_01/_raw/laser_power", []byte("88")), complexity.LevelSensors)
	assert.True(t, ok)

	c.Stop() // flush
	assert.Empty(t, mt.MessagesTo("umh/v1/metalfab/eindhoven/ERP/Inventory/DC01"),
		"gated message never reaches the transport")
	assert.Len(t, mt.MessagesTo("umh/v1/metalfab/eindhoven/cutting/laser_01/_raw/laser_power"), 1)

	counters := c.Counters()
	assert.EqualValues(t, 1, counters.Published)
	assert.EqualValues(t, 1, counters.Dropped)
}

func TestSetLevelChangesGate(t *testing.T) {
	c, _ := newTestClient(t, complexity.LevelPaused)

	msg := uns.NewMessage("umh/v1/metalfab/eindhoven/cutting/laser_01/_raw/x", []byte("1"))
	assert.False(t, c.Publish(msg, complexity.LevelSensors))

	c.SetLevel(complexity.LevelStateful)
	assert.True(t, c.Publish(msg, complexity.LevelSensors))
	assert.Equal(t, complexity.LevelStateful, c.Level())

	c.SetLevel(complexity.Level(99))
	assert.Equal(t, complexity.LevelFull, c.Level(), "level clamps")
}

func TestPublishRawBypassesGate(t *testing.T) {
	c, mt := newTestClient(t, complexity.LevelPaused)

	ok := c.PublishRaw(uns.NewMessage(uns.StatusTopic, []byte(`{"level":0}`)))
	assert.True(t, ok)

	c.Stop()
	require.Len(t, mt.MessagesTo(uns.StatusTopic), 1)
	assert.True(t, mt.MessagesTo(uns.StatusTopic)[0].Retain)
}

func TestClearRetained(t *testing.T) {
	c, mt := newTestClient(t, complexity.LevelFull)

	// Seed the broker's retained store directly.
	seed := []string{
		"umh/v1/metalfab/eindhoven/cutting/laser_01/Line/Outfeed",
		"umh/v1/metalfab/eindhoven/cutting/laser_01/Asset/Name",
		"umh/v1/metalfab/roeselare/welding/robot_weld_01/Line/State",
	}
	for _, topic := range seed {
		require.NoError(t, mt.Publish(uns.NewMessage(topic, []byte("v"))))
	}
	require.Len(t, mt.RetainedTopics(), 3)

	cleared, err := c.ClearRetained(context.Background(), "umh/v1/#")
	require.NoError(t, err)
	assert.Equal(t, 3, cleared)

	c.Stop()
	assert.Empty(t, mt.RetainedTopics(), "empty retained payloads erase the store")
}

func TestClearRetainedWithPattern(t *testing.T) {
	c, mt := newTestClient(t, complexity.LevelFull)

	require.NoError(t, mt.Publish(uns.NewMessage("umh/v1/metalfab/eindhoven/cutting/laser_01/Line/Outfeed", []byte("v"))))
	require.NoError(t, mt.Publish(uns.NewMessage("umh/v1/metalfab/roeselare/welding/robot_weld_01/Line/State", []byte("v"))))

	cleared, err := c.ClearRetained(context.Background(), "umh/v1/#", "umh/v1/metalfab/roeselare/**")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)

	c.Stop()
	topics := mt.RetainedTopics()
	require.Len(t, topics, 1)
	assert.Contains(t, topics[0], "eindhoven")
}

func TestClearTracked(t *testing.T) {
	c, mt := newTestClient(t, complexity.LevelFull)

	c.Publish(uns.NewMessage("umh/v1/metalfab/eindhoven/cutting/laser_01/Line/Outfeed", []byte("5")), complexity.LevelStateful)
	c.Publish(uns.NewMessage("umh/v1/metalfab/roeselare/welding/robot_weld_01/Line/State", []byte("EXECUTE")), complexity.LevelStateful)
	c.Publish(uns.NewMessage("umh/v1/metalfab/eindhoven/cutting/laser_01/Edge/LaserPower", []byte("88")), complexity.LevelSensors)

	cleared := c.ClearTracked("**/roeselare/**")
	assert.Equal(t, 1, cleared)

	c.Stop()
	msgs := mt.MessagesTo("umh/v1/metalfab/roeselare/welding/robot_weld_01/Line/State")
	require.Len(t, msgs, 2)
	erase := msgs[1]
	assert.True(t, erase.Retain)
	assert.Empty(t, erase.Payload)
}

func TestMatchFilter(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"#", "a/b/c", true},
		{"a/#", "a/b/c", true},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/d", false},
		{"a/b/c", "a/b/c", true},
		{"a/b", "a/b/c", false},
		{"a/b/c/d", "a/b/c", false},
		{"metalfab-sim/#", "metalfab-sim/control/level", true},
		{"umh/v1/#", "metalfab-sim/status", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchFilter(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

func TestQueueOverflowDrops(t *testing.T) {
	mt := NewMemTransport()
	cfg := DefaultConfig()
	cfg.QueueSize = 2
	c := NewClient(mt, cfg, complexity.LevelFull, zap.NewNop())
	// Sender never started: the queue fills and further messages drop.

	for i := 0; i < 5; i++ {
		c.Publish(uns.NewMessage("umh/v1/metalfab/e/a/c/_raw/x", []byte("1")), complexity.LevelSensors)
	}
	assert.EqualValues(t, 3, c.Counters().Dropped)
}

func TestDroppedRetainedMessageIsNotTracked(t *testing.T) {
	mt := NewMemTransport()
	cfg := DefaultConfig()
	cfg.QueueSize = 1
	c := NewClient(mt, cfg, complexity.LevelFull, zap.NewNop())
	// Sender never started: the second retained publish drops.

	accepted := c.Publish(uns.NewMessage("umh/v1/metalfab/eindhoven/cutting/laser_01/Line/Outfeed", []byte("5")), complexity.LevelStateful)
	require.True(t, accepted)
	dropped := c.Publish(uns.NewMessage("umh/v1/metalfab/eindhoven/cutting/laser_01/Asset/Name", []byte("x")), complexity.LevelStateful)
	require.False(t, dropped)

	cleared := c.ClearTracked("umh/v1/metalfab/eindhoven/**")
	assert.Equal(t, 1, cleared, "only the delivered topic is tracked for clearing")
}
