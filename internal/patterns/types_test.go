package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateConfidenceAndSampleSize(t *testing.T) {
	h := HourlyProductivity{
		"9":  {Efficiency: 1, Confidence: 0.3, SampleSize: 3},
		"14": {Efficiency: 1, Confidence: 0.9, SampleSize: 9},
	}
	assert.InDelta(t, 0.6, h.Confidence(), 1e-9)
	assert.Equal(t, 9, h.SampleSize())

	assert.Equal(t, 0.5, HourlyProductivity{}.Confidence())
	assert.Zero(t, HourlyProductivity{}.SampleSize())
	assert.Equal(t, 0.5, CategoryEfficiency{}.Confidence())
	assert.Equal(t, 0.5, EnergyCycles{}.Confidence())
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode("mood", []byte("{}"))
	assert.Error(t, err)

	_, err = ParseType("mood")
	assert.Error(t, err)

	typ, err := ParseType("energy_cycles")
	require.NoError(t, err)
	assert.Equal(t, TypeEnergy, typ)
}

func TestDecodeCategory(t *testing.T) {
	p, err := Decode(TypeCategory, []byte(`{"Research":{"efficiency":0.8,"confidence":0.4,"sample_size":2,"typical_duration":45}}`))
	require.NoError(t, err)
	c := p.(CategoryEfficiency)
	assert.Equal(t, 45.0, c["Research"].TypicalDuration)
	assert.Equal(t, TypeCategory, p.Type())
}
