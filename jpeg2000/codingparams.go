package jpeg2000

import (
	"fmt"
	"math"
)

// CodingParameters holds the coding parameters of a JPEG 2000 codestream:
// image size, resolution/layer/component counts, progression order, and
// per-resolution precinct sizes. It also derives, lazily, the cumulative
// precinct-count table (TotalPrecinctsCum) that the progression-index
// formulas need.
type CodingParameters struct {
	Size          Size
	NumLevels     int
	NumLayers     int
	Progression   Progression
	NumComponents int
	PrecinctSize  []Size

	totalPrecincts []int
}

// IsResolutionProgression reports whether the progression order is
// resolution-major (RLCP or RPCL), the case in which the packet index
// builder can bound a resolution's packets without walking to the end of
// the image.
func (p *CodingParameters) IsResolutionProgression() bool {
	return p.Progression == ProgressionRLCP || p.Progression == ProgressionRPCL
}

// fillTotalPrecinctsVector computes the cumulative precinct count per
// resolution level, total_precincts[r] = sum of precinct counts for
// resolutions < r, with one extra trailing entry for the full image.
func (p *CodingParameters) fillTotalPrecinctsVector() {
	pa := 0
	p.totalPrecincts = make([]int, 0, p.NumLevels+2)
	p.totalPrecincts = append(p.totalPrecincts, pa)
	for i := 0; i <= p.NumLevels; i++ {
		pp := p.GetPrecincts(i, p.Size)
		pa += pp.X * pp.Y
		p.totalPrecincts = append(p.totalPrecincts, pa)
	}
}

func (p *CodingParameters) ensureTotalPrecincts() {
	if len(p.totalPrecincts) == 0 {
		p.fillTotalPrecinctsVector()
	}
}

// GetPrecincts returns the precinct grid size (in precincts, not pixels) at
// resolution r for an image/point of the given size.
func (p *CodingParameters) GetPrecincts(r int, point Size) Size {
	shift := 1 << uint(p.NumLevels-r)
	x := math.Ceil(math.Ceil(float64(point.X)/float64(shift)) / float64(p.PrecinctSize[r].X))
	y := math.Ceil(math.Ceil(float64(point.Y)/float64(shift)) / float64(p.PrecinctSize[r].Y))
	return Size{X: int(x), Y: int(y)}
}

// GetProgressionIndex returns the linear index of packet within the
// codestream's progression order (LRCP, RLCP or RPCL). PCRL and CPRL are
// out of scope and return ErrUnsupportedProgression.
func (p *CodingParameters) GetProgressionIndex(packet Packet) (int, error) {
	p.ensureTotalPrecincts()

	switch p.Progression {
	case ProgressionRPCL:
		return p.progressionIndexRPCL(packet.Layer, packet.Resolution, packet.Component, packet.PrecinctXY.X, packet.PrecinctXY.Y), nil
	case ProgressionRLCP:
		return p.progressionIndexRLCP(packet.Layer, packet.Resolution, packet.Component, packet.PrecinctXY.X, packet.PrecinctXY.Y), nil
	case ProgressionLRCP:
		return p.progressionIndexLRCP(packet.Layer, packet.Resolution, packet.Component, packet.PrecinctXY.X, packet.PrecinctXY.Y), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedProgression, p.Progression)
	}
}

func (p *CodingParameters) progressionIndexRPCL(l, r, c, px, py int) int {
	pp := p.GetPrecincts(r, p.Size)
	return p.totalPrecincts[r]*p.NumComponents*p.NumLayers +
		py*pp.X*p.NumComponents*p.NumLayers +
		px*p.NumComponents*p.NumLayers +
		c*p.NumLayers + l
}

func (p *CodingParameters) progressionIndexRLCP(l, r, c, px, py int) int {
	pp := p.GetPrecincts(r, p.Size)
	return p.totalPrecincts[r]*p.NumComponents*p.NumLayers +
		l*p.NumComponents*pp.X*pp.Y +
		c*pp.X*pp.Y +
		py*pp.X + px
}

func (p *CodingParameters) progressionIndexLRCP(l, r, c, px, py int) int {
	pp := p.GetPrecincts(r, p.Size)
	return l*p.totalPrecincts[p.NumLevels+1]*p.NumComponents +
		p.NumComponents*p.totalPrecincts[r] +
		c*pp.X*pp.Y +
		py*pp.X + px
}

// GetPrecinctDataBinID returns the data-bin identifier of the precinct
// containing packet (the data-bin id is shared across all layers of one
// precinct — only the resolution/component/precinct coordinates matter).
func (p *CodingParameters) GetPrecinctDataBinID(packet Packet) int {
	p.ensureTotalPrecincts()
	pp := p.GetPrecincts(packet.Resolution, p.Size)
	s := p.totalPrecincts[packet.Resolution] + pp.X*packet.PrecinctXY.Y + packet.PrecinctXY.X
	return packet.Component + s*p.NumComponents
}

func (p *CodingParameters) resolutionImageSize(r int) Size {
	shift := int64(1) << uint(r)
	x := int(math.Ceil(float64(p.Size.X) / float64(shift)))
	y := int(math.Ceil(float64(p.Size.Y) / float64(shift)))
	return Size{X: x, Y: y}
}

func clampResolution(res, numLevels int) int {
	if res > numLevels {
		return numLevels
	}
	if res < 0 {
		return 0
	}
	return res
}

// GetRoundUpResolution returns the resolution whose image size is the
// smallest one greater than or equal to resSize on both axes: it finds the
// largest resolution reduction r with that property and returns
// NumLevels-r, the "resolution level" in WOI terms.
func (p *CodingParameters) GetRoundUpResolution(resSize Size) (int, Size) {
	r := p.NumLevels
	var imgSize Size
	bigger := false
	for !bigger && r >= 0 {
		imgSize = p.resolutionImageSize(r)
		if imgSize.X >= resSize.X && imgSize.Y >= resSize.Y {
			bigger = true
		} else {
			r--
		}
	}
	return clampResolution(p.NumLevels-r, p.NumLevels), imgSize
}

// GetRoundDownResolution returns the resolution whose image size is the
// largest one less than or equal to resSize on both axes: it finds the
// smallest resolution reduction r with that property and returns
// NumLevels-r.
func (p *CodingParameters) GetRoundDownResolution(resSize Size) (int, Size) {
	r := 0
	var imgSize Size
	smaller := false
	for !smaller && r <= p.NumLevels {
		imgSize = p.resolutionImageSize(r)
		if imgSize.X <= resSize.X && imgSize.Y <= resSize.Y {
			smaller = true
		} else {
			r++
		}
	}
	return clampResolution(p.NumLevels-r, p.NumLevels), imgSize
}

// GetClosestResolution returns the resolution reduction whose image size
// minimizes Manhattan distance to resSize.
func (p *CodingParameters) GetClosestResolution(resSize Size) (int, Size) {
	finalR := 0
	imgSize := p.Size
	min := iabs(p.Size.X-resSize.X) + iabs(p.Size.Y-resSize.Y)

	for r := 1; r <= p.NumLevels; r++ {
		candidate := p.resolutionImageSize(r)
		dist := iabs(candidate.X-resSize.X) + iabs(candidate.Y-resSize.Y)
		if dist < min {
			imgSize = candidate
			min = dist
			finalR = r
		}
	}

	return clampResolution(p.NumLevels-finalR, p.NumLevels), imgSize
}

// GetResolution dispatches to the requested rounding policy.
func (p *CodingParameters) GetResolution(resSize Size, dir RoundDirection) (int, Size) {
	switch dir {
	case RoundUp:
		return p.GetRoundUpResolution(resSize)
	case RoundDown:
		return p.GetRoundDownResolution(resSize)
	default:
		return p.GetClosestResolution(resSize)
	}
}

func iabs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
