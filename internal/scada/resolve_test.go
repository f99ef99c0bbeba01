package scada

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverFeature(t *testing.T) {
	r, err := NewResolver(map[string]string{
		"wind_speed":     `^WMET\.HorWdSpd`,
		"wind_direction": `^WMET\.HorWdDir`,
		"power_output":   `^WTUR\.W`,
	}, []string{`wt(\d+)`})
	require.NoError(t, err)

	feat, ok := r.Feature("WMET.HorWdSpd.wt073")
	require.True(t, ok)
	assert.Equal(t, "wind_speed", feat)

	_, ok = r.Feature("WROT.BlPthAngVal")
	assert.False(t, ok)
}

func TestResolverTurbineID(t *testing.T) {
	r, err := NewResolver(nil, []string{`wt(\d+)`, `\.T(\d+)$`})
	require.NoError(t, err)

	id, ok := r.TurbineID("WMET.HorWdSpd.wt073")
	require.True(t, ok)
	assert.Equal(t, "wt073", id)

	// second fragment form
	id, ok = r.TurbineID("WTUR.W.T7")
	require.True(t, ok)
	assert.Equal(t, "wt007", id)

	_, ok = r.TurbineID("time")
	assert.False(t, ok)
}

func TestResolverCompileError(t *testing.T) {
	_, err := NewResolver(map[string]string{"wind_speed": "(["}, nil)
	assert.Error(t, err)

	_, err = NewResolver(nil, []string{"(["})
	assert.Error(t, err)
}

func TestTurbineIDFormat(t *testing.T) {
	assert.Equal(t, "wt007", TurbineID(7))
	assert.Equal(t, "wt123", TurbineID(123))
}
