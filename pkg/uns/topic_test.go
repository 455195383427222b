package uns

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testAddr = Address{
	Enterprise: "metalfab",
	Site:       "eindhoven",
	Area:       "cutting",
	Cell:       "laser_01",
}

func TestCellTopic(t *testing.T) {
	got := CellTopic(DefaultPrefix, testAddr, NamespaceEdge, "LaserPower")
	assert.Equal(t, "umh/v1/metalfab/eindhoven/cutting/laser_01/Edge/LaserPower", got)

	got = CellTopic(DefaultPrefix, testAddr, NamespaceLine, "OEE", "Availability")
	assert.Equal(t, "umh/v1/metalfab/eindhoven/cutting/laser_01/Line/OEE/Availability", got)
}

func TestSiteTopic(t *testing.T) {
	got := SiteTopic(DefaultPrefix, "metalfab", "eindhoven", NamespaceERP, "Inventory", "DC01")
	assert.Equal(t, "umh/v1/metalfab/eindhoven/ERP/Inventory/DC01", got)
}

func TestRetainPolicy(t *testing.T) {
	cell := func(ns string, fields ...string) string {
		return CellTopic(DefaultPrefix, testAddr, ns, fields...)
	}

	tests := []struct {
		name   string
		topic  string
		retain bool
	}{
		{"asset metadata", cell(NamespaceAsset, "SerialNumber"), true},
		{"edge sensor", cell(NamespaceEdge, "LaserPower"), false},
		{"edge state", cell(NamespaceEdge, "State"), false},
		{"edge shopfloor", cell(NamespaceEdge, "ShopFloor"), true},
		{"line counter", cell(NamespaceLine, "Outfeed"), true},
		{"line oee", cell(NamespaceLine, "OEE", "Availability"), true},
		{"dashboard", cell(NamespaceDashboard, "OEE"), true},
		{"raw mirror", cell(NamespaceRaw, "laser_power"), false},
		{"raw oee mirror", cell(NamespaceRaw, "oee"), false},
		{"erp order", SiteTopic(DefaultPrefix, "metalfab", "eindhoven", NamespaceERP, "ProductionOrder", "JOB_0001"), true},
		{"erp sales event", SiteTopic(DefaultPrefix, "metalfab", "eindhoven", NamespaceERP, "SalesOrder", "New"), false},
		{"mes quality", SiteTopic(DefaultPrefix, "metalfab", "eindhoven", NamespaceMES, "Quality", "laser_01"), true},
		{"control level", ControlLevelTopic, true},
		{"status", StatusTopic, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retain, Retained(tt.topic))
			msg := NewMessage(tt.topic, []byte("x"))
			assert.Equal(t, tt.retain, msg.Retain)
			if tt.retain {
				assert.EqualValues(t, 1, msg.QoS)
			} else {
				assert.EqualValues(t, 0, msg.QoS)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	topic := "umh/v1/metalfab/eindhoven/cutting/laser_01/Line/Outfeed"
	assert.True(t, Match("umh/v1/metalfab/**", topic))
	assert.True(t, Match("umh/v1/metalfab/eindhoven/**", topic))
	assert.True(t, Match("**/eindhoven/**", topic))
	assert.False(t, Match("umh/v1/metalfab/roeselare/**", topic))
	assert.False(t, Match("umh/v1/metalfab/*", topic))
}

func TestSnakeCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"LaserPower", "laser_power"},
		{"CuttingSpeed", "cutting_speed"},
		{"AssistGas", "assist_gas"},
		{"OvenTemp", "oven_temp"},
		{"State", "state"},
		{"BackgaugePos", "backgauge_pos"},
		{"already_snake", "already_snake"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SnakeCase(tt.in), tt.in)
	}
}

func TestEncodeValue(t *testing.T) {
	msg, err := NewValueMessage(StatusTopic, map[string]any{"level": 2})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"level":2}`, string(msg.Payload))

	msg, err = NewValueMessage(ControlClearTopic, "0")
	assert.NoError(t, err)
	assert.Equal(t, "0", string(msg.Payload))

	msg, err = NewValueMessage(ControlLevelTopic, 3)
	assert.NoError(t, err)
	assert.Equal(t, "3", string(msg.Payload))
}
