package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/core/services"
	"github.com/ammerola/stockroom/test/helpers"
)

func itemsWithIDs(ids ...string) []*domain.InventoryItem {
	items := make([]*domain.InventoryItem, 0, len(ids))
	for _, id := range ids {
		id := id
		items = append(items, helpers.CreateTestInventoryItem(func(i *domain.InventoryItem) {
			i.ID = id
		}))
	}
	return items
}

func ids(items []*domain.InventoryItem) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	items := itemsWithIDs("box", "apple", "BOX", "toolbox", "bx", "Boxer")

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{
			name:     "case_insensitive_substring",
			query:    "Box",
			expected: []string{"box", "BOX", "toolbox", "Boxer"},
		},
		{
			name:     "lowercase_query_matches_uppercase_id",
			query:    "box",
			expected: []string{"box", "BOX", "toolbox", "Boxer"},
		},
		{
			name:     "exact_id",
			query:    "apple",
			expected: []string{"apple"},
		},
		{
			name:     "no_match",
			query:    "pear",
			expected: []string{},
		},
		{
			name:     "whitespace_query_is_literal",
			query:    " ",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := services.Filter(items, tt.query)
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, ids(got))
		})
	}
}

func TestFilter_EmptyQueryIsIdentity(t *testing.T) {
	items := itemsWithIDs("b", "a", "c")

	got := services.Filter(items, "")

	require.Len(t, got, len(items))
	for i := range items {
		assert.Same(t, items[i], got[i])
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	items := itemsWithIDs("box", "apple")

	_ = services.Filter(items, "box")

	assert.Equal(t, []string{"box", "apple"}, ids(items))
}

func TestFilter_NilItems(t *testing.T) {
	assert.Nil(t, services.Filter(nil, ""))
	assert.Empty(t, services.Filter(nil, "box"))
}
