package services

import (
	"fmt"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

// Partition returns chunk index (0-based) of total from an ordered slice.
// Chunks are contiguous ranges of ceil(len/total) items, so the union over
// every index reconstructs the input with no gap and no overlap. An index
// past the last non-empty chunk yields an empty slice.
func Partition[T any](items []T, total, index int) ([]T, error) {
	if total < 1 {
		return nil, fmt.Errorf("%w: chunk total must be at least 1, got %d", domain.ErrInvalidInput, total)
	}
	if index < 0 || index >= total {
		return nil, fmt.Errorf("%w: chunk index %d outside [0,%d)", domain.ErrInvalidInput, index, total)
	}
	if total == 1 {
		return items, nil
	}

	n := len(items)
	size := (n + total - 1) / total
	start := index * size
	if start >= n {
		return []T{}, nil
	}
	end := min(start+size, n)
	return items[start:end], nil
}
