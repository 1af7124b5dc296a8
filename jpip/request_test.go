package jpip

import (
	"testing"

	"github.com/codeninja55/go-jpip/jpeg2000"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestFsizRoffRsiz(t *testing.T) {
	req, err := ParseRequest("fsiz=1024,768,round-down&roff=10,20&rsiz=100,200")
	require.NoError(t, err)

	assert.NotZero(t, req.Mask&MaskFsiz)
	assert.NotZero(t, req.Mask&MaskRoff)
	assert.NotZero(t, req.Mask&MaskRsiz)
	assert.Equal(t, jpeg2000.Size{X: 1024, Y: 768}, req.ResolutionSize)
	assert.Equal(t, jpeg2000.RoundDown, req.RoundDirection)
	assert.Equal(t, jpeg2000.Point{X: 10, Y: 20}, req.WOIPosition)
	assert.Equal(t, jpeg2000.Size{X: 100, Y: 200}, req.WOISize)
}

func TestParseRequestFsizDefaultsToClosest(t *testing.T) {
	req, err := ParseRequest("fsiz=640,480")
	require.NoError(t, err)
	assert.Equal(t, jpeg2000.RoundClosest, req.RoundDirection)
}

func TestParseRequestStreamSingleAndRange(t *testing.T) {
	req, err := ParseRequest("stream=3")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, req.Codestreams)

	req, err = ParseRequest("stream=2:4")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, req.Codestreams)
}

func TestParseRequestContextJPXL(t *testing.T) {
	req, err := ParseRequest("context=jpxl<2-4>")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, req.Codestreams)

	req, err = ParseRequest("context=jpxl<5>")
	require.NoError(t, err)
	assert.Equal(t, []int{5}, req.Codestreams)
}

func TestParseRequestPercentDecoding(t *testing.T) {
	req, err := ParseRequest("target=a%20b.jp2")
	require.NoError(t, err)
	assert.Equal(t, "a b.jp2", req.Target)
}

func TestParseRequestLenAndMetareqAndChannelFlags(t *testing.T) {
	req, err := ParseRequest("len=4096&metareq=yes&cnew=http&cid=abc123&cclose=abc123")
	require.NoError(t, err)
	assert.Equal(t, 4096, req.LengthResponse)
	assert.True(t, req.Metareq)
	assert.True(t, req.Cnew)
	assert.Equal(t, "abc123", req.Cid)
	assert.True(t, req.Cclose)
}

func TestParseModelBasicItems(t *testing.T) {
	items, err := ParseModel("Hm,P3:50,M2")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, MainHeaderClass, items[0].Class)
	assert.True(t, items[0].Complete)

	assert.Equal(t, PrecinctClass, items[1].Class)
	assert.Equal(t, 3, items[1].ID)
	assert.Equal(t, uint32(50), items[1].Value)
	assert.False(t, items[1].Complete)

	assert.Equal(t, MetadataClass, items[2].Class)
	assert.Equal(t, 2, items[2].ID)
	assert.True(t, items[2].Complete)
}

func TestParseModelCodestreamRangePrefix(t *testing.T) {
	items, err := ParseModel("[0-2]P5:10")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].CodestreamLow)
	assert.Equal(t, 2, items[0].CodestreamHigh)
	assert.Equal(t, 5, items[0].ID)
}

func TestParseModelTileHeaderItem(t *testing.T) {
	items, err := ParseModel("H7:20")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TileHeaderClass, items[0].Class)
	assert.Equal(t, 7, items[0].ID)
	assert.Equal(t, uint32(20), items[0].Value)
}

func TestParseModelRejectsSubtractiveUpdate(t *testing.T) {
	_, err := ParseModel("-P3:10")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestParseModelRejectsUnknownKind(t *testing.T) {
	_, err := ParseModel("Z3:10")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestApplyModelMetadataAndPrecinctTargets(t *testing.T) {
	m := NewCacheModel()
	items := []ModelItem{
		{Class: MetadataClass, ID: 0, Value: 10},
		{Class: PrecinctClass, ID: 4, Value: 20, CodestreamLow: -1, CodestreamHigh: -1},
	}
	m.ApplyModel(items, []int{0, 1})

	assert.Equal(t, uint32(10), m.GetBin(MetadataClass, 0, 0))
	assert.Equal(t, uint32(20), m.GetBin(PrecinctClass, 0, 4))
	assert.Equal(t, uint32(20), m.GetBin(PrecinctClass, 1, 4))
}

func TestApplyModelRespectsExplicitCodestreamRange(t *testing.T) {
	m := NewCacheModel()
	items := []ModelItem{
		{Class: PrecinctClass, ID: 1, Value: 5, CodestreamLow: 2, CodestreamHigh: 2},
	}
	m.ApplyModel(items, []int{0, 1})

	assert.Equal(t, uint32(5), m.GetBin(PrecinctClass, 2, 1))
	assert.Equal(t, uint32(0), m.GetBin(PrecinctClass, 0, 1))
}

func TestRequestValidateRejectsNegativeLen(t *testing.T) {
	req := &Request{LengthResponse: -1}
	err := req.Validate()
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestFormatCnewHeader(t *testing.T) {
	assert.Equal(t, "cid=jpip-1,path=jpip,transport=http", FormatCnewHeader("jpip-1"))
}
