package scope

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormscope/ormscope/internal/errs"
)

func TestParseRecordRoundTrip(t *testing.T) {
	tests := []struct {
		raw string
		id  int64
	}{
		{raw: "42", id: 42},
		{raw: "0", id: 0},
		{raw: "9223372036854775807", id: 9223372036854775807},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ref, err := ParseRecord("res.user", tt.raw)
			require.NoError(t, err)
			assert.Equal(t, "res.user", ref.Model)
			assert.Equal(t, tt.id, ref.ID)
			assert.Equal(t, tt.raw, ref.Path(), "parsing and rendering must round-trip to the same text")
		})
	}
}

func TestParseRecordRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "letters", raw: "abc"},
		{name: "mixed", raw: "1a"},
		{name: "negative", raw: "-1"},
		{name: "leading space", raw: " 1"},
		{name: "empty", raw: ""},
		{name: "list shape", raw: "1,2"},
		{name: "decimal point", raw: "1.5"},
		{name: "overflow", raw: "9223372036854775808"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord("res.user", tt.raw)

			var httpErr *errs.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusNotFound, httpErr.Status, "a malformed id is a missing resource, not a bad request")
		})
	}
}

func TestParseRecordsRoundTrip(t *testing.T) {
	tests := []struct {
		raw string
		ids []int64
	}{
		{raw: "3,5,9", ids: []int64{3, 5, 9}},
		{raw: "42", ids: []int64{42}},
		{raw: "9,5,3", ids: []int64{9, 5, 3}},
		{raw: "7,7,7", ids: []int64{7, 7, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ref, err := ParseRecords("res.user", tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.ids, ref.IDs, "ids keep URL order, duplicates included")
			assert.Equal(t, tt.raw, ref.Path())
		})
	}
}

func TestParseRecordsRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "empty element", raw: "1,,2"},
		{name: "trailing comma", raw: "1,2,"},
		{name: "leading comma", raw: ",1"},
		{name: "letters element", raw: "1,abc"},
		{name: "spaces", raw: "1, 2"},
		{name: "overflow element", raw: "1,9223372036854775808"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecords("res.user", tt.raw)

			var httpErr *errs.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusNotFound, httpErr.Status)
		})
	}
}

func TestParamSpecConstructors(t *testing.T) {
	single := Record("user", "res.user")
	assert.Equal(t, "user", single.name)
	assert.Equal(t, "res.user", single.model)
	assert.False(t, single.many)

	many := Records("users", "res.user")
	assert.Equal(t, "users", many.name)
	assert.Equal(t, "res.user", many.model)
	assert.True(t, many.many)
}
