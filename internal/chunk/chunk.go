// Package chunk splits ordered sequences into size-bounded pieces.
package chunk

import (
	"errors"
	"fmt"
	"iter"
)

// ErrInvalidChunkSize is returned when a chunk size is not positive
var ErrInvalidChunkSize = errors.New("chunk size must be a positive integer")

// Batches yields contiguous sub-slices of items, each at most size long.
// The sub-slices alias items.
func Batches[T any](items []T, size int) (iter.Seq[[]T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
	}
	return func(yield func([]T) bool) {
		for start := 0; start < len(items); start += size {
			end := min(start+size, len(items))
			if !yield(items[start:end:end]) {
				return
			}
		}
	}, nil
}

// Split is the eager form of Batches
func Split[T any](items []T, size int) ([][]T, error) {
	seq, err := Batches(items, size)
	if err != nil {
		return nil, err
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for batch := range seq {
		out = append(out, batch)
	}
	return out, nil
}

// SplitText cuts s into pieces of at most max characters. A piece ends right
// after the last newline inside its window; without one it is cut at max.
func SplitText(s string, max int) ([]string, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, max)
	}

	runes := []rune(s)
	var out []string
	for pos := 0; pos < len(runes); {
		if len(runes)-pos <= max {
			out = append(out, string(runes[pos:]))
			break
		}

		cut := pos + max
		for i := cut - 1; i >= pos; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(runes[pos:cut]))
		pos = cut
	}
	return out, nil
}
