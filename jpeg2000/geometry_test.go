package jpeg2000

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointArithmetic(t *testing.T) {
	p := NewPoint(4, 6)
	assert.Equal(t, Point{X: 6, Y: 9}, p.Add(Point{X: 2, Y: 3}))
	assert.Equal(t, Point{X: 2, Y: 3}, p.Sub(Point{X: 2, Y: 3}))
	assert.Equal(t, Point{X: 8, Y: 18}, p.Mul(Point{X: 2, Y: 3}))
	assert.Equal(t, Point{X: 5, Y: 7}, p.AddScalar(1))
	assert.Equal(t, Point{X: 3, Y: 5}, p.SubScalar(1))
	assert.Equal(t, Point{X: 8, Y: 12}, p.MulScalar(2))
	assert.Equal(t, Point{X: 16, Y: 24}, p.Shl(2))
	assert.True(t, p.Equals(NewPoint(4, 6)))
	assert.Equal(t, "(4, 6)", p.String())
}

func TestFileSegmentContiguity(t *testing.T) {
	a := FileSegment{Offset: 100, Length: 50}
	b := FileSegment{Offset: 150, Length: 20}
	assert.True(t, a.IsContiguousTo(b))
	assert.False(t, b.IsContiguousTo(a))
	assert.True(t, NullSegment.IsNull())

	trimmed := a.RemoveFirst(10)
	assert.Equal(t, FileSegment{Offset: 110, Length: 40}, trimmed)

	trimmed = a.RemoveLast(10)
	assert.Equal(t, FileSegment{Offset: 100, Length: 40}, trimmed)
}

func TestPacketString(t *testing.T) {
	p := Packet{Layer: 1, Resolution: 2, Component: 3, PrecinctXY: Point{X: 4, Y: 5}}
	assert.Equal(t, "1\t2\t3\t5\t4", p.String())
}
