package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "hello", `"hello"`},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"control escaped", "a\nb\x01", `"a\nb\u0001"`},
		{"quote and backslash", `say "hi" \o/`, `"say \"hi\" \\o/"`},
		{"nfc", "e\u0301", "\"\u00e9\""},
		{"ints", []any{1, int64(-2), json.Number("3")}, `[1,-2,3]`},
		{"bool", true, `true`},
		{"strings", []string{"b", "a"}, `["b","a"]`},
		{"nested sorted", map[string]any{"b": 1, "a": map[string]string{"z": "1", "y": "2"}}, `{"a":{"y":"2","z":"1"},"b":1}`},
		{"empty object", map[string]any{}, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshal_Rejects(t *testing.T) {
	for _, in := range []any{nil, 1.5, json.Number("1.5"), map[string]any{"a": nil}, struct{}{}} {
		_, err := Marshal(in)
		assert.Error(t, err, "%#v", in)
	}
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...) and sorts before U+FF61.
	obj := map[string]any{"\uff61": 1, "\U0001F600": 2, "a": 3}
	assert.Equal(t, []string{"a", "\U0001F600", "\uff61"}, SortedKeys(obj))
}

func TestDigest_Stable(t *testing.T) {
	a, err := Digest("nudge/v1", map[string]any{"title": "x", "key": "k"})
	require.NoError(t, err)
	b, err := Digest("nudge/v1", map[string]any{"key": "k", "title": "x"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Digest("other/v1", map[string]any{"title": "x", "key": "k"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
