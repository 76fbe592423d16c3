package action

import (
	"math"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name, text, expected string
	}{
		{name: "empty", text: "", expected: "Logged Action: "},
		{name: "ascii", text: "clicked", expected: "Logged Action: clicked"},
		{
			name:     "json",
			text:     `{"type":"click","target":"BUTTON"}`,
			expected: `Logged Action: {"type":"click","target":"BUTTON"}`,
		},
		{name: "verbs are literal", text: "100%s %d", expected: "Logged Action: 100%s %d"},
		{name: "unicode", text: "héllo 世界", expected: "Logged Action: héllo 世界"},
		{name: "newline", text: "a\nb", expected: "Logged Action: a\nb"},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Format(tt.text))
		})
	}
}

func TestPrefix(t *testing.T) {
	require.Equal(t, Prefix, Format(""))
}

func TestMultiply(t *testing.T) {
	tests := []struct {
		a, b, expected int32
	}{
		{a: 3, b: 4, expected: 12},
		{a: -2, b: 5, expected: -10},
		{a: 0, b: math.MaxInt32, expected: 0},
		{a: math.MaxInt32, b: 2, expected: -2},
		{a: math.MinInt32, b: -1, expected: math.MinInt32},
		{a: math.MinInt32, b: 2, expected: 0},
		{a: 65536, b: 65536, expected: 0},
		{a: -1, b: -1, expected: 1},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, Multiply(tt.a, tt.b), "%d * %d", tt.a, tt.b)
	}
}

func TestMultiply_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("wraps modulo 2^32", prop.ForAll(
		func(a, b int32) bool {
			wide := int64(a) * int64(b)
			return Multiply(a, b) == int32(uint32(uint64(wide)))
		},
		gen.Int32(), gen.Int32(),
	))

	properties.Property("zero annihilates", prop.ForAll(
		func(b int32) bool {
			return Multiply(0, b) == 0 && Multiply(b, 0) == 0
		},
		gen.Int32(),
	))

	properties.Property("commutative", prop.ForAll(
		func(a, b int32) bool {
			return Multiply(a, b) == Multiply(b, a)
		},
		gen.Int32(), gen.Int32(),
	))

	properties.TestingRun(t)
}

func TestFormat_PropertyBased(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("embeds text after the prefix", prop.ForAll(
		func(text string) bool {
			msg := Format(text)
			return strings.HasPrefix(msg, Prefix) && msg[len(Prefix):] == text
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestToInt32(t *testing.T) {
	tests := []struct {
		name     string
		f        float64
		expected int32
	}{
		{name: "zero", f: 0, expected: 0},
		{name: "negative zero", f: math.Copysign(0, -1), expected: 0},
		{name: "one", f: 1, expected: 1},
		{name: "minus one", f: -1, expected: -1},
		{name: "truncates positive", f: 2.7, expected: 2},
		{name: "truncates negative", f: -2.7, expected: -2},
		{name: "max int32", f: math.MaxInt32, expected: math.MaxInt32},
		{name: "min int32", f: math.MinInt32, expected: math.MinInt32},
		{name: "2^31 wraps", f: 1 << 31, expected: math.MinInt32},
		{name: "2^32 wraps", f: 1 << 32, expected: 0},
		{name: "2^32+5 wraps", f: 4294967301, expected: 5},
		{name: "-2^32-1 wraps", f: -4294967297, expected: -1},
		{name: "1e20", f: 1e20, expected: 1661992960},
		{name: "-1e20", f: -1e20, expected: -1661992960},
		{name: "NaN", f: math.NaN(), expected: 0},
		{name: "+Inf", f: math.Inf(1), expected: 0},
		{name: "-Inf", f: math.Inf(-1), expected: 0},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, ToInt32(tt.f))
		})
	}
}

func TestToInt32_PropertyBased(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("wraps exact integers modulo 2^32", prop.ForAll(
		func(n int64) bool {
			return ToInt32(float64(n)) == int32(n)
		},
		gen.Int64Range(-(1 << 53), 1<<53),
	))

	properties.TestingRun(t)
}
