package domain

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestModification_Validate(t *testing.T) {
	valid := []Modification{
		{Type: ModificationAdd, Page: 1, NewText: "hello"},
		{Type: ModificationReplace, Page: 2, OldText: "old", NewText: "new"},
		{Type: ModificationRedact, Page: 1, OldText: "secret"},
	}
	for _, m := range valid {
		assert.NoError(t, m.Validate(), "type %s", m.Type)
	}

	invalid := []Modification{
		{Type: ModificationAdd, Page: 1},
		{Type: ModificationReplace, Page: 1, NewText: "new"},
		{Type: ModificationReplace, Page: 1, OldText: "old"},
		{Type: ModificationRedact, Page: 1},
		{Type: ModificationAdd, Page: 0, NewText: "hello"},
		{Type: "rotate", Page: 1},
	}
	for _, m := range invalid {
		err := m.Validate()
		assert.Error(t, err, "type %s page %d", m.Type, m.Page)
		assert.Equal(t, ErrorKindInvalidInput, KindOf(err))
	}
}

func TestRect_Contains_WithTolerance(t *testing.T) {
	outer := Rect{X: 100, Y: 200, Width: 50, Height: 20}

	assert.True(t, outer.Contains(Rect{X: 105, Y: 205, Width: 10, Height: 5}, 0))
	assert.True(t, outer.Contains(outer, 0), "a rect contains itself")
	// Slightly outside, absorbed by tolerance.
	assert.False(t, outer.Contains(Rect{X: 99, Y: 200, Width: 50, Height: 20}, 0))
	assert.True(t, outer.Contains(Rect{X: 99, Y: 200, Width: 50, Height: 20}, 2))
}

func TestRect_Overlaps(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}

	assert.True(t, a.Overlaps(Rect{X: 5, Y: 5, Width: 10, Height: 10}))
	assert.False(t, a.Overlaps(Rect{X: 20, Y: 0, Width: 5, Height: 5}))
	// Touching edges do not overlap.
	assert.False(t, a.Overlaps(Rect{X: 10, Y: 0, Width: 5, Height: 5}))
}

func TestTenantContext_RoundTrip(t *testing.T) {
	_, ok := TenantFromContext(context.Background())
	assert.False(t, ok, "empty context carries no tenant")

	tc := TenantContext{TenantID: uuid.New(), UserID: uuid.New()}
	ctx := WithTenant(context.Background(), tc)

	got, ok := TenantFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, tc, got)
	assert.True(t, got.Valid())
	assert.False(t, TenantContext{}.Valid())
}
