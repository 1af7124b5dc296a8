package jpeg2000

// Codestream marker codes (ISO/IEC 15444-1 Annex A). Markers not listed
// here but carrying a length field are skipped generically by reading and
// jumping their 2-byte length.
const (
	markerSOC uint16 = 0xFF4F
	markerSIZ uint16 = 0xFF51
	markerCOD uint16 = 0xFF52
	markerSOT uint16 = 0xFF90
	markerPLT uint16 = 0xFF58
	markerSOD uint16 = 0xFF93
	markerEOC uint16 = 0xFFD9
)

// JP2/JPX box type codes (ISO/IEC 15444-2), the big-endian uint32 value of
// their 4-character ASCII tag.
const (
	boxJP2C uint32 = 0x6A703263 // "jp2c"
	boxJPCH uint32 = 0x6A706368 // "jpch"
	boxFTBL uint32 = 0x6674626C // "ftbl"
	boxFLST uint32 = 0x666C7374 // "flst"
	boxURL  uint32 = 0x75726C20 // "url "
	boxDBTL uint32 = 0x6474626C // "dbtl"
)

// Progression identifies a JPEG 2000 packet progression order.
type Progression int

const (
	ProgressionLRCP Progression = iota
	ProgressionRLCP
	ProgressionRPCL
	ProgressionPCRL
	ProgressionCPRL
)

// String renders the progression's standard four-letter name.
func (p Progression) String() string {
	switch p {
	case ProgressionLRCP:
		return "LRCP"
	case ProgressionRLCP:
		return "RLCP"
	case ProgressionRPCL:
		return "RPCL"
	case ProgressionPCRL:
		return "PCRL"
	case ProgressionCPRL:
		return "CPRL"
	default:
		return "UNKNOWN"
	}
}

// RoundDirection selects how GetResolution rounds a requested frame size to
// an available resolution level.
type RoundDirection int

const (
	RoundUp RoundDirection = iota
	RoundDown
	RoundClosest
)
