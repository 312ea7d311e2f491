package text

import (
	"errors"
	"fmt"
	"iter"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 0
)

var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// ValidateChunkConfig checks the window parameters used by Chunks.
func ValidateChunkConfig(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidChunkConfig, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidChunkConfig, overlap, size)
	}
	return nil
}

// Chunks splits text into greedy fixed-length windows of at most size
// characters. Each window after the first starts overlap characters before
// the end of the previous one. Lengths are counted in runes so multi-byte
// characters are never cut in half.
//
// The returned sequence yields (chunkIndex, content) pairs, is computed on
// demand and can be ranged over any number of times with identical results.
func Chunks(text string, size, overlap int) (iter.Seq2[int, string], error) {
	if err := ValidateChunkConfig(size, overlap); err != nil {
		return nil, err
	}

	return func(yield func(int, string) bool) {
		start := 0
		for i := 0; start < len(text); i++ {
			end := advance(text, start, size)
			if !yield(i, text[start:end]) {
				return
			}
			if end == len(text) {
				return
			}
			start = retreat(text, end, overlap)
		}
	}, nil
}

// Split is the eager form of Chunks.
func Split(text string, size, overlap int) ([]string, error) {
	seq, err := Chunks(text, size, overlap)
	if err != nil {
		return nil, err
	}
	var chunks []string
	for _, c := range seq {
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Join reverses Split: it drops the overlapping prefix of every chunk after
// the first and concatenates the rest.
func Join(chunks []string, overlap int) string {
	var out []byte
	for i, c := range chunks {
		if i > 0 {
			c = c[advance(c, 0, overlap):]
		}
		out = append(out, c...)
	}
	return string(out)
}

// advance returns the byte offset n runes after from, capped at len(s).
func advance(s string, from, n int) int {
	i := from
	for ; n > 0 && i < len(s); n-- {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return i
}

// retreat returns the byte offset n runes before from.
func retreat(s string, from, n int) int {
	i := from
	for ; n > 0 && i > 0; n-- {
		_, w := utf8.DecodeLastRuneInString(s[:i])
		i -= w
	}
	return i
}

// PageOffset reports the 1-based page that contains byte offset off, given
// the byte offset at which every page starts.
func PageOffset(pageStarts []int, off int) int {
	page := 0
	for i, start := range pageStarts {
		if off < start {
			break
		}
		page = i
	}
	return page + 1
}
