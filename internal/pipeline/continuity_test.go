package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContinuityDropsFailuresBeforeFirstSuccess(t *testing.T) {
	c := NewContinuity()

	c.Fail()
	c.Fail()
	c.Fail()
	c.Accept(testROI(2, 2, 0.5))

	seq, err := c.Finish()
	require.NoError(t, err)

	assert.Len(t, seq, 1)
	assert.Equal(t, 3, c.Dropped())
	assert.Equal(t, 0, c.Substituted())
}

func TestContinuitySubstitutesAfterWarmup(t *testing.T) {
	c := NewContinuity()

	c.Accept(testROI(2, 2, 0.25))
	c.Fail()
	c.Accept(testROI(2, 2, 0.75))

	seq, err := c.Finish()
	require.NoError(t, err)
	require.Len(t, seq, 3)

	assert.False(t, seq[0].Substituted)
	assert.True(t, seq[1].Substituted)
	assert.False(t, seq[2].Substituted)

	// The substituted patch is a pixel-for-pixel copy of its predecessor.
	assert.Equal(t, seq[0].Pixels, seq[1].Pixels)

	assert.Equal(t, 0, c.Dropped())
	assert.Equal(t, 1, c.Substituted())
}

func TestContinuitySubstituteCopyIsIndependent(t *testing.T) {
	c := NewContinuity()

	c.Accept(testROI(2, 2, 0.5))
	c.Fail()

	seq, err := c.Finish()
	require.NoError(t, err)
	require.Len(t, seq, 2)

	seq[0].Pixels[0] = 0.99
	assert.Equal(t, float32(0.5), seq[1].Pixels[0])
}

func TestContinuityReindexesSequence(t *testing.T) {
	c := NewContinuity()

	first := testROI(2, 2, 0.1)
	first.Index = 7
	second := testROI(2, 2, 0.2)
	second.Index = 12

	c.Fail()
	c.Accept(first)
	c.Fail()
	c.Accept(second)

	seq, err := c.Finish()
	require.NoError(t, err)
	require.Len(t, seq, 3)

	for i, roi := range seq {
		assert.Equal(t, i, roi.Index)
	}
}

func TestContinuityNeverReturnsToEmpty(t *testing.T) {
	c := NewContinuity()

	c.Accept(testROI(2, 2, 0.5))
	c.Fail()
	c.Fail()
	c.Fail()

	seq, err := c.Finish()
	require.NoError(t, err)

	assert.Len(t, seq, 4)
	assert.Equal(t, 0, c.Dropped())
	assert.Equal(t, 3, c.Substituted())
}

func TestContinuityAllFailuresIsFatal(t *testing.T) {
	c := NewContinuity()

	for i := 0; i < 5; i++ {
		c.Fail()
	}

	seq, err := c.Finish()
	require.Error(t, err)
	assert.Nil(t, seq)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNoValidROIs, kind)
	assert.True(t, ContentFatal(err))
}
