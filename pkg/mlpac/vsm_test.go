package mlpac

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUniformMatrixSumsToOne(t *testing.T) {
	mx := NewUniformMatrix(3, 3)
	assert.InDelta(t, 1.0, mx.Sum(), 1e-9)
}

func TestScaleEntryPreservesSum(t *testing.T) {
	mx := NewUniformMatrix(3, 3)
	mx.ScaleEntry(0.3, 1, 1)
	assert.InDelta(t, 1.0, mx.Sum(), 1e-9)
	assert.Greater(t, mx.At(1, 1), mx.At(0, 0))
}

func TestScaleBatchPreservesSum(t *testing.T) {
	mx := NewUniformMatrix(3, 3)
	mx.ScaleBatch(0.5, []VersionCoord{{Major: 0, Minor: 0}, {Major: 1, Minor: 0}})
	assert.InDelta(t, 1.0, mx.Sum(), 1e-9)
}

func TestScaleBatchEmptyIsNoOp(t *testing.T) {
	mx := NewUniformMatrix(3, 3)
	before := mx.Sum()
	beforeEntry := mx.At(0, 0)
	mx.ScaleBatch(0.5, nil)
	require.InDelta(t, before, mx.Sum(), 1e-9)
	assert.Equal(t, beforeEntry, mx.At(0, 0))
}

func TestScaleBatchRepeatedCallsStaySumToOne(t *testing.T) {
	mx := NewUniformMatrix(2, 2)
	for i := 0; i < 50; i++ {
		mx.ScaleEntry(0.2, i%3, (i*2)%3)
	}
	assert.True(t, math.Abs(mx.Sum()-1.0) < 1e-9)
}

func TestAllCoordsCount(t *testing.T) {
	mx := NewUniformMatrix(3, 2)
	assert.Len(t, mx.AllCoords(), 4*3)
}
