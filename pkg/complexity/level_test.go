package complexity

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

// enabledFlags returns the names of the feature flags set at a level.
func enabledFlags(t *testing.T, l Level) map[string]bool {
	t.Helper()
	f := FeaturesFor(l)
	v := reflect.ValueOf(f)
	flags := make(map[string]bool)
	for i := 0; i < v.NumField(); i++ {
		if v.Field(i).Bool() {
			flags[v.Type().Field(i).Name] = true
		}
	}
	return flags
}

func TestFeatureGatingIsMonotonic(t *testing.T) {
	for l := MinLevel; l < MaxLevel; l++ {
		lower := enabledFlags(t, l)
		higher := enabledFlags(t, l+1)
		for name := range lower {
			assert.True(t, higher[name],
				"flag %s enabled at level %d but not at level %d", name, l, l+1)
		}
	}
}

func TestFeaturesAtBoundaries(t *testing.T) {
	assert.Empty(t, enabledFlags(t, LevelPaused))

	f1 := FeaturesFor(LevelSensors)
	assert.True(t, f1.Sensors)
	assert.False(t, f1.MachineState)
	assert.False(t, f1.AGVPositions)

	f2 := FeaturesFor(LevelStateful)
	assert.True(t, f2.MachineState)
	assert.True(t, f2.AGVPositions)
	assert.False(t, f2.Dashboards)

	f3 := FeaturesFor(LevelERPMES)
	assert.True(t, f3.Dashboards)
	assert.True(t, f3.ERPJobData)
	assert.False(t, f3.Passports)

	f4 := FeaturesFor(LevelFull)
	assert.True(t, f4.Passports)
}

func TestNamespacesAreCumulative(t *testing.T) {
	for l := MinLevel; l < MaxLevel; l++ {
		lower := Namespaces(l)
		higher := Namespaces(l + 1)
		require.Subset(t, higher, lower, "level %d", l)
	}
	assert.Empty(t, Namespaces(LevelPaused))
	assert.Contains(t, Namespaces(LevelSensors), uns.NamespaceAsset)
	assert.NotContains(t, Namespaces(LevelERPMES), uns.NamespaceDPP)
	assert.Contains(t, Namespaces(LevelFull), uns.NamespaceDPP)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Level
		wantErr bool
	}{
		{name: "bare integer", payload: "3", want: LevelERPMES},
		{name: "zero", payload: "0", want: LevelPaused},
		{name: "four", payload: "4", want: LevelFull},
		{name: "whitespace", payload: " 2\n", want: LevelStateful},
		{name: "json object", payload: `{"level": 1}`, want: LevelSensors},
		{name: "json zero", payload: `{"level": 0}`, want: LevelPaused},
		{name: "out of range high", payload: "5", wantErr: true},
		{name: "out of range negative", payload: "-1", wantErr: true},
		{name: "json out of range", payload: `{"level": 9}`, wantErr: true},
		{name: "json missing field", payload: `{"lvl": 2}`, wantErr: true},
		{name: "garbage", payload: "full", wantErr: true},
		{name: "empty", payload: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelStringAndClamp(t *testing.T) {
	assert.Equal(t, "Paused", LevelPaused.String())
	assert.Equal(t, "ERP/MES", LevelERPMES.String())
	assert.Equal(t, LevelFull, Level(9).Clamp())
	assert.Equal(t, LevelPaused, Level(-3).Clamp())
	assert.True(t, LevelERPMES.Enables(LevelSensors))
	assert.False(t, LevelSensors.Enables(LevelERPMES))
}
