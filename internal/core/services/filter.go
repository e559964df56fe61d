package services

import (
	"strings"

	"github.com/ammerola/stockroom/internal/core/domain"
)

// Filter narrows items to those whose ID contains query, ignoring case.
// An empty query returns items as given.
func Filter(items []*domain.InventoryItem, query string) []*domain.InventoryItem {
	if query == "" {
		return items
	}

	needle := strings.ToLower(query)
	matched := make([]*domain.InventoryItem, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.ID), needle) {
			matched = append(matched, item)
		}
	}
	return matched
}
