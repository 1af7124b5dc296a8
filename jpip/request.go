package jpip

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/codeninja55/go-jpip/jpeg2000"
	"github.com/go-playground/validator/v10"
)

// Mask bits recording which JPIP query parameters were present on a
// request; a session only applies the fields a request actually carried.
const (
	MaskFsiz = 1 << iota
	MaskRoff
	MaskRsiz
	MaskStream
	MaskLen
	MaskModel
	MaskCnew
	MaskCid
	MaskCclose
	MaskMetareq
	MaskTarget
)

// ModelItem is one parsed item of a `model=` cache-model update string,
// e.g. "P0:50" or "[0-0]P0:50".
type ModelItem struct {
	CodestreamLow  int
	CodestreamHigh int
	Class          BinClass
	ID             int
	Value          uint32
	Complete       bool
}

// Request is a fully parsed JPIP query, as produced by the HTTP
// collaborator's CGI-style parameter string (§6 of the wire contract).
type Request struct {
	Mask int

	WOIPosition    jpeg2000.Point
	WOISize        jpeg2000.Size
	ResolutionSize jpeg2000.Size
	RoundDirection jpeg2000.RoundDirection

	Codestreams []int

	LengthResponse int `validate:"gte=0"`

	ModelItems []ModelItem

	Metareq bool

	Cnew   bool
	Cid    string
	Cclose bool
	Target string `validate:"omitempty,filepath"`
}

var requestValidator = validator.New()

// Validate runs struct-tag validation over the parsed request.
func (r *Request) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// ParseRequest parses an HTTP query string (the part after '?', with
// parameters joined by '&') into a Request.
func ParseRequest(query string) (*Request, error) {
	req := &Request{}

	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("%w: percent-decoding %q: %v", ErrBadRequest, key, err)
		}

		if err := req.applyParam(key, decoded); err != nil {
			return nil, err
		}
	}

	return req, nil
}

func (r *Request) applyParam(key, value string) error {
	switch key {
	case "fsiz":
		return r.parseFsiz(value)
	case "roff":
		x, y, err := parsePair(value)
		if err != nil {
			return err
		}
		r.WOIPosition = jpeg2000.Point{X: x, Y: y}
		r.Mask |= MaskRoff
	case "rsiz":
		x, y, err := parsePair(value)
		if err != nil {
			return err
		}
		r.WOISize = jpeg2000.Size{X: x, Y: y}
		r.Mask |= MaskRsiz
	case "stream":
		codestreams, err := parseStreamRange(value)
		if err != nil {
			return err
		}
		r.Codestreams = codestreams
		r.Mask |= MaskStream
	case "context":
		codestreams, err := parseContextRange(value)
		if err != nil {
			return err
		}
		r.Codestreams = codestreams
		r.Mask |= MaskStream
	case "len":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: bad len %q", ErrBadRequest, value)
		}
		r.LengthResponse = n
		r.Mask |= MaskLen
	case "model":
		items, err := ParseModel(value)
		if err != nil {
			return err
		}
		r.ModelItems = items
		r.Mask |= MaskModel
	case "metareq":
		r.Metareq = true
		r.Mask |= MaskMetareq
	case "cnew":
		r.Cnew = true
		r.Mask |= MaskCnew
	case "cid":
		r.Cid = value
		r.Mask |= MaskCid
	case "cclose":
		r.Cclose = true
		r.Mask |= MaskCclose
	case "target":
		r.Target = value
		r.Mask |= MaskTarget
	}
	return nil
}

// parseFsiz parses "Fx,Fy[,round-up|round-down|closest]".
func (r *Request) parseFsiz(value string) error {
	parts := strings.Split(value, ",")
	if len(parts) < 2 {
		return fmt.Errorf("%w: bad fsiz %q", ErrBadRequest, value)
	}
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("%w: bad fsiz %q", ErrBadRequest, value)
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("%w: bad fsiz %q", ErrBadRequest, value)
	}
	r.ResolutionSize = jpeg2000.Size{X: x, Y: y}
	r.RoundDirection = jpeg2000.RoundClosest
	if len(parts) >= 3 {
		switch parts[2] {
		case "round-up":
			r.RoundDirection = jpeg2000.RoundUp
		case "round-down":
			r.RoundDirection = jpeg2000.RoundDown
		case "closest":
			r.RoundDirection = jpeg2000.RoundClosest
		default:
			return fmt.Errorf("%w: bad fsiz round direction %q", ErrBadRequest, parts[2])
		}
	}
	r.Mask |= MaskFsiz
	return nil
}

func parsePair(value string) (int, int, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: expected \"x,y\", got %q", ErrBadRequest, value)
	}
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return x, y, nil
}

// parseStreamRange parses "stream=a" or "stream=a:b" into an inclusive
// codestream index range.
func parseStreamRange(value string) ([]int, error) {
	a, b, found := strings.Cut(value, ":")
	lo, err := strconv.Atoi(a)
	if err != nil {
		return nil, fmt.Errorf("%w: bad stream %q", ErrBadRequest, value)
	}
	hi := lo
	if found {
		hi, err = strconv.Atoi(b)
		if err != nil {
			return nil, fmt.Errorf("%w: bad stream %q", ErrBadRequest, value)
		}
	}
	return intRange(lo, hi)
}

// parseContextRange parses "context=jpxl<a>" or "context=jpxl<a-b>" into
// an inclusive codestream index range, the JPX-layer alternative to
// "stream=" in the JPIP parameter grammar.
func parseContextRange(value string) ([]int, error) {
	if !strings.HasPrefix(value, "jpxl<") || !strings.HasSuffix(value, ">") {
		return nil, fmt.Errorf("%w: bad context %q", ErrBadRequest, value)
	}
	inner := value[len("jpxl<") : len(value)-1]
	a, b, found := strings.Cut(inner, "-")
	lo, err := strconv.Atoi(a)
	if err != nil {
		return nil, fmt.Errorf("%w: bad context %q", ErrBadRequest, value)
	}
	hi := lo
	if found {
		hi, err = strconv.Atoi(b)
		if err != nil {
			return nil, fmt.Errorf("%w: bad context %q", ErrBadRequest, value)
		}
	}
	return intRange(lo, hi)
}

func intRange(lo, hi int) ([]int, error) {
	if hi < lo {
		return nil, fmt.Errorf("%w: empty range %d-%d", ErrBadRequest, lo, hi)
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out, nil
}

// ParseModel parses a `model=` value: comma-separated items, each
// optionally prefixed by "[a-b]" scoping it to a codestream range, the
// rest being Hm[:n] (main header), H<id>[:n] (tile header), P<id>[:n]
// (precinct) or M<id>[:n] (metadata). An omitted ":n" means complete. A
// leading '-' (subtractive update) is rejected — the cache model only
// grows.
func ParseModel(value string) ([]ModelItem, error) {
	var items []ModelItem
	for _, raw := range strings.Split(value, ",") {
		if raw == "" {
			continue
		}
		item, err := parseModelItem(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func parseModelItem(raw string) (ModelItem, error) {
	item := ModelItem{CodestreamLow: -1, CodestreamHigh: -1}

	if strings.HasPrefix(raw, "[") {
		end := strings.Index(raw, "]")
		if end < 0 {
			return ModelItem{}, fmt.Errorf("%w: bad model range %q", ErrBadRequest, raw)
		}
		rng := raw[1:end]
		a, b, found := strings.Cut(rng, "-")
		lo, err := strconv.Atoi(a)
		if err != nil {
			return ModelItem{}, fmt.Errorf("%w: bad model range %q", ErrBadRequest, raw)
		}
		hi := lo
		if found {
			hi, err = strconv.Atoi(b)
			if err != nil {
				return ModelItem{}, fmt.Errorf("%w: bad model range %q", ErrBadRequest, raw)
			}
		}
		item.CodestreamLow, item.CodestreamHigh = lo, hi
		raw = raw[end+1:]
	}

	if strings.HasPrefix(raw, "-") {
		return ModelItem{}, fmt.Errorf("%w: subtractive model update %q not permitted", ErrBadRequest, raw)
	}

	if raw == "" {
		return ModelItem{}, fmt.Errorf("%w: empty model item", ErrBadRequest)
	}

	body := raw[1:]
	idPart, nPart, hasN := strings.Cut(body, ":")

	switch raw[0] {
	case 'H':
		if idPart == "m" {
			item.Class = MainHeaderClass
			item.ID = 0
		} else {
			item.Class = TileHeaderClass
			id, err := strconv.Atoi(idPart)
			if err != nil {
				return ModelItem{}, fmt.Errorf("%w: bad model item %q", ErrBadRequest, raw)
			}
			item.ID = id
		}
	case 'P':
		item.Class = PrecinctClass
		id, err := strconv.Atoi(idPart)
		if err != nil {
			return ModelItem{}, fmt.Errorf("%w: bad model item %q", ErrBadRequest, raw)
		}
		item.ID = id
	case 'M':
		item.Class = MetadataClass
		id, err := strconv.Atoi(idPart)
		if err != nil {
			return ModelItem{}, fmt.Errorf("%w: bad model item %q", ErrBadRequest, raw)
		}
		item.ID = id
	default:
		return ModelItem{}, fmt.Errorf("%w: unknown model item kind %q", ErrBadRequest, raw)
	}

	if hasN {
		n, err := strconv.Atoi(nPart)
		if err != nil {
			return ModelItem{}, fmt.Errorf("%w: bad model item length %q", ErrBadRequest, raw)
		}
		item.Value = uint32(n)
	} else {
		item.Complete = true
	}

	return item, nil
}

// ApplyModel applies a set of parsed model items to the cache model,
// expanding each item's codestream range (defaulting to codestreams, the
// request's current codestream set, when the item carried none).
func (m *CacheModel) ApplyModel(items []ModelItem, codestreams []int) {
	for _, item := range items {
		if item.Class == MetadataClass {
			m.AddToBin(MetadataClass, 0, item.ID, item.Value, item.Complete)
			continue
		}

		targets := codestreams
		if item.CodestreamLow >= 0 {
			targets, _ = intRange(item.CodestreamLow, item.CodestreamHigh)
		}
		for _, cs := range targets {
			m.AddToBin(item.Class, cs, item.ID, item.Value, item.Complete)
		}
	}
}

// FormatCnewHeader builds the JPIP-cnew response header value for a newly
// opened channel, e.g. "cid=<id>,path=jpip,transport=http".
func FormatCnewHeader(cid string) string {
	return fmt.Sprintf("cid=%s,path=jpip,transport=http", cid)
}
