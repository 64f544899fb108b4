package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"zm-image/config"
)

func TestParseScaleRequest_InRange(t *testing.T) {
	req := ParseScaleRequest(Query{Scale: "50", Width: "640", Height: "480"}, config.DefaultLimits())

	assert.Equal(t, ScaleRequest{Scale: 50, Width: 640, Height: 480}, req)
}

func TestParseScaleRequest_OutOfRangeIsAbsent(t *testing.T) {
	limits := config.DefaultLimits()

	cases := []struct {
		name string
		q    Query
	}{
		{"scale too small", Query{Scale: "0"}},
		{"scale too large", Query{Scale: "401"}},
		{"width too small", Query{Width: "9"}},
		{"width too large", Query{Width: "8001"}},
		{"height negative", Query{Height: "-20"}},
		{"non numeric", Query{Scale: "big", Width: "wide", Height: "0x10"}},
		{"not a number", Query{Scale: "NaN"}},
		{"fractional scale above max", Query{Scale: "400.5"}},
		{"fractional width above max", Query{Width: "8000.9"}},
		{"fractional scale below min", Query{Scale: "0.5"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, ScaleRequest{}, ParseScaleRequest(tc.q, limits))
		})
	}
}

func TestParseScaleRequest_Bounds(t *testing.T) {
	limits := config.DefaultLimits()

	req := ParseScaleRequest(Query{Scale: "1", Width: "10", Height: "8000"}, limits)
	assert.Equal(t, ScaleRequest{Scale: 1, Width: 10, Height: 8000}, req)

	req = ParseScaleRequest(Query{Scale: "400"}, limits)
	assert.Equal(t, 400, req.Scale)
}

func TestParseScaleRequest_FractionalTruncated(t *testing.T) {
	req := ParseScaleRequest(Query{Scale: "50.7"}, config.DefaultLimits())
	assert.Equal(t, 50, req.Scale)

	req = ParseScaleRequest(Query{Scale: "9.5", Width: "10.5", Height: "7999.99"}, config.DefaultLimits())
	assert.Equal(t, ScaleRequest{Scale: 9, Width: 10, Height: 7999}, req)
}

func TestParseSourceReference_PathWins(t *testing.T) {
	ref := ParseSourceReference(Query{Path: "3/17/00001-capture.jpg", Eid: "17", Fid: "1"})

	assert.Equal(t, SourceDirect, ref.Kind)
	assert.Equal(t, "3/17/00001-capture.jpg", ref.Path)
}

func TestParseSourceReference_ByFrame(t *testing.T) {
	ref := ParseSourceReference(Query{Eid: "17", Fid: "42"})

	assert.Equal(t, SourceByFrame, ref.Kind)
	assert.Equal(t, uint64(17), ref.EventID)
	assert.Equal(t, uint64(42), ref.FrameID)
	assert.Equal(t, DefaultVariant, ref.Variant)
}

func TestParseSourceReference_FrameKeyOnly(t *testing.T) {
	ref := ParseSourceReference(Query{Fid: "9001", Show: "analyse"})

	assert.Equal(t, SourceByFrame, ref.Kind)
	assert.Zero(t, ref.EventID)
	assert.Equal(t, uint64(9001), ref.FrameID)
	assert.Equal(t, "analyse", ref.Variant)
}

func TestParseSourceReference_None(t *testing.T) {
	assert.Equal(t, SourceNone, ParseSourceReference(Query{}).Kind)
	assert.Equal(t, SourceNone, ParseSourceReference(Query{Eid: "17"}).Kind)
	assert.Equal(t, SourceNone, ParseSourceReference(Query{Fid: "abc"}).Kind)
	assert.Equal(t, SourceNone, ParseSourceReference(Query{Fid: "0"}).Kind)
	assert.Equal(t, SourceNone, ParseSourceReference(Query{Fid: "1", Show: "../../etc"}).Kind)
}
