package orm

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccessors(t *testing.T) {
	created := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	record := NewRecord("res.user", 42, map[string]any{
		"login":   "jdoe",
		"active":  true,
		"company": int64(3),
		"rate":    decimal.RequireFromString("12.50"),
		"created": created,
		"email":   nil,
	})

	assert.Equal(t, "res.user", record.Model())
	assert.Equal(t, int64(42), record.ID())

	assert.Equal(t, "jdoe", record.String("login"))
	assert.True(t, record.Bool("active"))
	assert.Equal(t, int64(3), record.Int("company"))
	assert.True(t, decimal.RequireFromString("12.50").Equal(record.Decimal("rate")))
	assert.Equal(t, created, record.Time("created"))

	assert.True(t, record.Has("email"), "a loaded null field is still loaded")
	assert.Nil(t, record.Get("email"))
	assert.False(t, record.Has("missing"))
}

func TestRecordTypedGettersZeroOnMismatch(t *testing.T) {
	record := NewRecord("res.user", 1, map[string]any{"login": 99})

	assert.Equal(t, "", record.String("login"), "a non-string field reads as the zero string")
	assert.Equal(t, int64(0), record.Int("missing"))
	assert.False(t, record.Bool("missing"))
	assert.True(t, record.Decimal("missing").IsZero())
	assert.True(t, record.Time("missing").IsZero())
}

func TestNilRecordReadsEmpty(t *testing.T) {
	var record *Record

	assert.Nil(t, record.Get("login"))
	assert.False(t, record.Has("login"))
	assert.Equal(t, "", record.String("login"))
	assert.Equal(t, int64(0), record.Int("company"))
	assert.False(t, record.Bool("active"))
	assert.True(t, record.Decimal("rate").IsZero())
	assert.True(t, record.Time("created").IsZero())
	assert.Empty(t, record.Fields())
}

func TestRecordFieldsReturnsCopy(t *testing.T) {
	record := NewRecord("res.user", 1, map[string]any{"login": "jdoe"})

	fields := record.Fields()
	require.Equal(t, map[string]any{"login": "jdoe"}, fields)

	fields["login"] = "tampered"
	assert.Equal(t, "jdoe", record.String("login"), "mutating the copy must not reach the record")
}
