package jpeg2000

// WOI (Window Of Interest) identifies a rectangular region of an image at
// a given resolution level.
type WOI struct {
	Position   Point
	Size       Size
	Resolution int
}

// Equals reports whether two WOIs describe the same window.
func (w WOI) Equals(o WOI) bool {
	return w.Position.Equals(o.Position) && w.Size.Equals(o.Size) && w.Resolution == o.Resolution
}

// WOIComposer enumerates, in LRCP order, every packet whose precinct
// intersects a WOI projected onto an image's coding parameters.
//
// Reset projects the WOI's corners back to the full-resolution grid and
// derives the covering precinct range at resolution 0; Next then walks
// precinct-x, precinct-y, component, resolution and layer in turn,
// recomputing the precinct range whenever resolution rolls over.
type WOIComposer struct {
	pxy1, pxy2       Point
	morePackets      bool
	maxResolution    int
	minPrecinctXY    Size
	maxPrecinctXY    Size
	current          Packet
	codingParameters *CodingParameters
}

// Reset starts a new packet walk for woi against params.
func (c *WOIComposer) Reset(params *CodingParameters, woi WOI) {
	c.codingParameters = params
	c.morePackets = true
	c.current = Packet{}
	c.maxResolution = woi.Resolution

	shift := uint(params.NumLevels - woi.Resolution)
	c.pxy1 = woi.Position.Shl(int(shift))
	c.pxy2 = woi.Position.Add(woi.Size).SubScalar(1).Shl(int(shift))

	c.recomputePrecinctRange()
	c.current.PrecinctXY = c.minPrecinctXY
}

// recomputePrecinctRange derives min/max_precinct_xy for the current
// resolution, with the outset rule: decrement by one on each non-zero axis
// so boundary precincts are conservatively included. The relationship of
// this outset to the JPIP specification's own precinct-intersection rule is
// undocumented upstream; it is reproduced here verbatim per that ambiguity.
func (c *WOIComposer) recomputePrecinctRange() {
	c.minPrecinctXY = c.codingParameters.GetPrecincts(c.current.Resolution, c.pxy1)
	if c.minPrecinctXY.X != 0 {
		c.minPrecinctXY.X--
	}
	if c.minPrecinctXY.Y != 0 {
		c.minPrecinctXY.Y--
	}

	c.maxPrecinctXY = c.codingParameters.GetPrecincts(c.current.Resolution, c.pxy2)
	if c.maxPrecinctXY.X != 0 {
		c.maxPrecinctXY.X--
	}
	if c.maxPrecinctXY.Y != 0 {
		c.maxPrecinctXY.Y--
	}
}

// Current returns the packet the composer is currently positioned at.
func (c *WOIComposer) Current() Packet {
	return c.current
}

// Done reports whether the composer has enumerated every packet of its
// current window.
func (c *WOIComposer) Done() bool {
	return !c.morePackets
}

// Advance moves the composer past its current packet. It is a no-op once
// Done reports true.
func (c *WOIComposer) Advance() {
	c.Next()
}

// Next returns the current packet and advances the composer to the next
// one in LRCP order (precinct-x innermost, then precinct-y, component,
// resolution, layer). The second return value is false once the walk is
// exhausted; each packet is visited at most once.
func (c *WOIComposer) Next() (Packet, bool) {
	if !c.morePackets {
		return Packet{}, false
	}

	pkt := c.current

	if c.current.PrecinctXY.X < c.maxPrecinctXY.X {
		c.current.PrecinctXY.X++
	} else {
		c.current.PrecinctXY.X = c.minPrecinctXY.X

		if c.current.PrecinctXY.Y < c.maxPrecinctXY.Y {
			c.current.PrecinctXY.Y++
		} else {
			c.current.PrecinctXY.Y = c.minPrecinctXY.Y

			if c.current.Component < c.codingParameters.NumComponents-1 {
				c.current.Component++
			} else {
				c.current.Component = 0

				if c.current.Resolution < c.maxResolution {
					c.current.Resolution++
				} else {
					c.current.Resolution = 0

					if c.current.Layer < c.codingParameters.NumLayers-1 {
						c.current.Layer++
					} else {
						c.morePackets = false
						return pkt, true
					}
				}

				c.recomputePrecinctRange()
				c.current.PrecinctXY = c.minPrecinctXY
			}
		}
	}

	return pkt, true
}
