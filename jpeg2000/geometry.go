package jpeg2000

import "fmt"

// Point represents a 2-D integer coordinate or size. One value type serves
// both coordinates and extents; Size is its synonym.
type Point struct {
	X int
	Y int
}

// Size is a synonym of Point, used wherever a width/height pair is meant
// rather than a coordinate.
type Size = Point

// NewPoint creates a Point with the given coordinates.
func NewPoint(x, y int) Point {
	return Point{X: x, Y: y}
}

// Add returns the component-wise sum of p and o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns the component-wise difference of p and o.
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// Mul returns the component-wise product of p and o.
func (p Point) Mul(o Point) Point {
	return Point{X: p.X * o.X, Y: p.Y * o.Y}
}

// AddScalar returns p with val added to both components.
func (p Point) AddScalar(val int) Point {
	return Point{X: p.X + val, Y: p.Y + val}
}

// SubScalar returns p with val subtracted from both components.
func (p Point) SubScalar(val int) Point {
	return Point{X: p.X - val, Y: p.Y - val}
}

// MulScalar returns p with both components multiplied by val.
func (p Point) MulScalar(val int) Point {
	return Point{X: p.X * val, Y: p.Y * val}
}

// Shl returns p with both components left-shifted by n bits, equivalent to
// multiplying by 2^n. Used throughout coding-parameter arithmetic to project
// a point between resolution levels.
func (p Point) Shl(n int) Point {
	return Point{X: p.X << n, Y: p.Y << n}
}

// Equals reports whether p and o have identical coordinates.
func (p Point) Equals(o Point) bool {
	return p.X == o.X && p.Y == o.Y
}

// String renders the point as "(x, y)".
func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Packet identifies one JPEG 2000 packet within a codestream by its
// progression coordinates.
type Packet struct {
	Layer      int
	Resolution int
	Component  int
	PrecinctXY Point
}

// String renders the packet's progression coordinates.
func (p Packet) String() string {
	return fmt.Sprintf("%d\t%d\t%d\t%d\t%d", p.Layer, p.Resolution, p.Component, p.PrecinctXY.Y, p.PrecinctXY.X)
}

// FileSegment identifies a byte range of a file by offset and length.
type FileSegment struct {
	Offset uint64
	Length uint64
}

// NullSegment is the distinguished zero-value segment.
var NullSegment = FileSegment{}

// IsNull reports whether the segment is the null segment (offset and
// length both zero).
func (s FileSegment) IsNull() bool {
	return s.Offset == 0 && s.Length == 0
}

// IsContiguousTo reports whether s is immediately followed by other, i.e.
// other starts exactly where s ends.
func (s FileSegment) IsContiguousTo(other FileSegment) bool {
	return s.Offset+s.Length == other.Offset
}

// RemoveFirst returns s with count bytes dropped from its head.
func (s FileSegment) RemoveFirst(count uint64) FileSegment {
	return FileSegment{Offset: s.Offset + count, Length: s.Length - count}
}

// RemoveLast returns s with count bytes dropped from its tail.
func (s FileSegment) RemoveLast(count uint64) FileSegment {
	return FileSegment{Offset: s.Offset, Length: s.Length - count}
}

// String renders the segment as "[offset:length]".
func (s FileSegment) String() string {
	return fmt.Sprintf("[%d:%d]", s.Offset, s.Length)
}
