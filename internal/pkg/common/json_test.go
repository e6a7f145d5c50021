package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
}

func TestParseJSON(t *testing.T) {
	var s sample
	require.NoError(t, ParseJSON(`{"index": 2, "status": "same", "extra": true}`, &s))
	assert.Equal(t, sample{Index: 2, Status: "same"}, s)

	assert.Error(t, ParseJSON(`{"index": 1} {"index": 2}`, &s))
	assert.Error(t, ParseJSONBytes([]byte(`[1, 2`), &[]int{}))
}

func TestDecodeJSONStrict(t *testing.T) {
	var s sample
	require.NoError(t, DecodeJSONStrict(strings.NewReader(`{"index": 3}`), &s))
	assert.Equal(t, 3, s.Index)

	assert.Error(t, DecodeJSONStrict(strings.NewReader(`{"index": 3, "legacy": 1}`), &s))
}

func TestToJSON(t *testing.T) {
	out, err := ToJSON(sample{Index: 1, Status: "similar"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"index": 1, "status": "similar"}`, out)

	_, err = ToJSON(make(chan int))
	assert.Error(t, err)
}

func TestExtractJSONArray(t *testing.T) {
	raw, ok := ExtractJSONArray("Here you go:\n```json\n[{\"index\": 0}]\n```")
	require.True(t, ok)
	assert.Equal(t, `[{"index": 0}]`, raw)

	_, ok = ExtractJSONArray("no array here")
	assert.False(t, ok)
}

func TestQuoteJSONKeys(t *testing.T) {
	fixed := QuoteJSONKeys(`[{index: 0, status: "same"}]`)
	var items []sample
	require.NoError(t, ParseJSON(fixed, &items))
	assert.Equal(t, []sample{{Index: 0, Status: "same"}}, items)
}
