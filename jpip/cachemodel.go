package jpip

import "math"

// BinClass identifies the class of a JPIP data-bin.
type BinClass int

const (
	// PrecinctClass identifies a precinct data-bin.
	PrecinctClass BinClass = 0
	// ExtendedPrecinctClass identifies an extended-precinct data-bin.
	// Accepted by the writer but never produced by this server.
	ExtendedPrecinctClass BinClass = 1
	// TileHeaderClass identifies a tile-header data-bin.
	TileHeaderClass BinClass = 2
	// TileDataClass identifies a tile-data data-bin. Accepted by the
	// writer but never produced by this server.
	TileDataClass BinClass = 4
	// ExtendedTileClass identifies an extended-tile data-bin. Accepted by
	// the writer but never produced by this server.
	ExtendedTileClass BinClass = 5
	// MainHeaderClass identifies a codestream main-header data-bin.
	MainHeaderClass BinClass = 6
	// MetadataClass identifies a metadata data-bin.
	MetadataClass BinClass = 8
)

// completeBin is the sentinel value meaning "this data-bin is fully known
// to the client." It is the wire-level JPIP idiom (the model-update syntax
// writes an omitted length as "complete") and is kept as a literal sentinel
// rather than an Option type so arithmetic against it saturates naturally.
const completeBin uint32 = math.MaxUint32

// CodestreamCache is the per-codestream slice of a CacheModel: how much of
// the main header and tile header the client has, and, per precinct id
// (offset by MinPrecinct after Pack trims a completed prefix), how many
// bytes of each precinct.
type CodestreamCache struct {
	MainHeader  uint32
	TileHeader  uint32
	MinPrecinct int
	Precincts   []uint32
}

// CacheModel is the per-client channel's monotonic record of what the
// client is known to hold, keyed by data-bin class, codestream index, and
// (for precincts and metadata) data-bin id.
type CacheModel struct {
	FullMeta    bool
	Metadata    []uint32
	Codestreams []CodestreamCache
}

// NewCacheModel creates an empty cache model.
func NewCacheModel() *CacheModel {
	return &CacheModel{}
}

func (m *CacheModel) ensureCodestream(cs int) *CodestreamCache {
	for len(m.Codestreams) <= cs {
		m.Codestreams = append(m.Codestreams, CodestreamCache{})
	}
	return &m.Codestreams[cs]
}

func saturate(value, delta uint64, complete bool) uint32 {
	if complete || delta >= uint64(completeBin) {
		return completeBin
	}
	sum := value + delta
	if sum >= uint64(completeBin) {
		return completeBin
	}
	return uint32(sum)
}

// GetBin returns the number of bytes of data-bin (class, cs, id) the
// client is known to hold; completeBin means fully cached.
func (m *CacheModel) GetBin(class BinClass, cs, id int) uint32 {
	if class == MetadataClass {
		if m.FullMeta {
			return completeBin
		}
		if id < 0 || id >= len(m.Metadata) {
			return 0
		}
		return m.Metadata[id]
	}

	if cs < 0 || cs >= len(m.Codestreams) {
		return 0
	}
	c := &m.Codestreams[cs]

	switch class {
	case MainHeaderClass:
		return c.MainHeader
	case TileHeaderClass:
		return c.TileHeader
	case PrecinctClass, ExtendedPrecinctClass, TileDataClass, ExtendedTileClass:
		if id < c.MinPrecinct {
			return completeBin
		}
		idx := id - c.MinPrecinct
		if idx >= len(c.Precincts) {
			return 0
		}
		return c.Precincts[idx]
	default:
		return 0
	}
}

// AddToBin records delta more bytes of data-bin (class, cs, id) as known
// to the client, saturating at completeBin if complete is true or the
// addition would overflow it, and returns the new value.
func (m *CacheModel) AddToBin(class BinClass, cs, id int, delta uint32, complete bool) uint32 {
	if class == MetadataClass {
		if m.FullMeta {
			return completeBin
		}
		for len(m.Metadata) <= id {
			m.Metadata = append(m.Metadata, 0)
		}
		m.Metadata[id] = saturate(uint64(m.Metadata[id]), uint64(delta), complete)
		return m.Metadata[id]
	}

	c := m.ensureCodestream(cs)
	switch class {
	case MainHeaderClass:
		c.MainHeader = saturate(uint64(c.MainHeader), uint64(delta), complete)
		return c.MainHeader
	case TileHeaderClass:
		c.TileHeader = saturate(uint64(c.TileHeader), uint64(delta), complete)
		return c.TileHeader
	default:
		if id < c.MinPrecinct {
			return completeBin
		}
		idx := id - c.MinPrecinct
		for len(c.Precincts) <= idx {
			c.Precincts = append(c.Precincts, 0)
		}
		c.Precincts[idx] = saturate(uint64(c.Precincts[idx]), uint64(delta), complete)
		return c.Precincts[idx]
	}
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// Merge combines other into m, componentwise max, setting FullMeta if
// either side has it. Per the invariant that FullMeta implies an empty
// Metadata vector, a merge that yields FullMeta discards any partial
// metadata counts.
func (m *CacheModel) Merge(other *CacheModel) {
	m.FullMeta = m.FullMeta || other.FullMeta
	if m.FullMeta {
		m.Metadata = nil
	} else {
		for i, v := range other.Metadata {
			if i >= len(m.Metadata) {
				m.Metadata = append(m.Metadata, v)
			} else {
				m.Metadata[i] = maxU32(m.Metadata[i], v)
			}
		}
	}

	for i, oc := range other.Codestreams {
		c := m.ensureCodestream(i)
		c.MainHeader = maxU32(c.MainHeader, oc.MainHeader)
		c.TileHeader = maxU32(c.TileHeader, oc.TileHeader)

		if oc.MinPrecinct > c.MinPrecinct {
			// other has already trimmed a longer completed prefix; adopt it.
			drop := oc.MinPrecinct - c.MinPrecinct
			if drop > len(c.Precincts) {
				drop = len(c.Precincts)
			}
			c.Precincts = c.Precincts[drop:]
			c.MinPrecinct = oc.MinPrecinct
		}
		for id, v := range oc.Precincts {
			absID := oc.MinPrecinct + id
			if absID < c.MinPrecinct {
				continue
			}
			idx := absID - c.MinPrecinct
			for len(c.Precincts) <= idx {
				c.Precincts = append(c.Precincts, 0)
			}
			c.Precincts[idx] = maxU32(c.Precincts[idx], v)
		}
	}
}

// Pack trims, for every codestream, the longest completed prefix of
// precincts from the head (advancing MinPrecinct), but only when that
// prefix is at least minRun long. This keeps long-lived sessions' memory
// bounded by the client's outstanding (incomplete) window rather than the
// whole image.
func (m *CacheModel) Pack(minRun int) {
	for i := range m.Codestreams {
		c := &m.Codestreams[i]
		run := 0
		for run < len(c.Precincts) && c.Precincts[run] == completeBin {
			run++
		}
		if run >= minRun && run > 0 {
			c.Precincts = c.Precincts[run:]
			c.MinPrecinct += run
		}
	}
}

// Clear resets the cache model to empty.
func (m *CacheModel) Clear() {
	m.FullMeta = false
	m.Metadata = nil
	m.Codestreams = nil
}
