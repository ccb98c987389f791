package text

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order: paragraphs, lines, words, then a hard
// cut between characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Piece is a split of the input together with its rune offset in it.
type Piece struct {
	Text  string
	Start int
}

// RecursiveSplitter splits text into pieces of at most ChunkSize runes,
// consecutive pieces sharing up to ChunkOverlap runes.
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func NewRecursiveSplitter(size, overlap int) (*RecursiveSplitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &RecursiveSplitter{ChunkSize: size, ChunkOverlap: overlap, Separators: DefaultSeparators}, nil
}

// Split returns the pieces of text in order. Identical input always yields
// identical boundaries.
func (s *RecursiveSplitter) Split(text string) []Piece {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	texts := s.split(text, seps)

	pieces := make([]Piece, 0, len(texts))
	prevByte, prevLen := -1, 0
	for _, t := range texts {
		from := 0
		if prevByte >= 0 {
			// the next piece can start inside the overlap of the previous one
			from = prevByte + prevLen - overlapBytes(text[prevByte:prevByte+prevLen], s.ChunkOverlap)
		}
		idx := strings.Index(text[from:], t)
		if idx < 0 {
			from = 0
			idx = strings.Index(text, t)
		}
		start := -1
		if idx >= 0 {
			prevByte, prevLen = from+idx, len(t)
			start = utf8.RuneCountInString(text[:prevByte])
		}
		pieces = append(pieces, Piece{Text: t, Start: start})
	}
	return pieces
}

// split cuts text on the first separator present in it. Small parts are
// merged back up to the size and oversized parts recurse with the remaining
// separators.
func (s *RecursiveSplitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var next []string
	for i, c := range seps {
		if c == "" {
			sep = c
			break
		}
		if strings.Contains(text, c) {
			sep = c
			next = seps[i+1:]
			break
		}
	}

	var final, good []string
	for _, part := range splitKeep(text, sep) {
		if utf8.RuneCountInString(part) < s.ChunkSize {
			good = append(good, part)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(next) == 0 {
			if t := strings.TrimSpace(part); t != "" {
				final = append(final, t)
			}
			continue
		}
		final = append(final, s.split(part, next)...)
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge packs parts into chunks no longer than ChunkSize, starting each new
// chunk with the trailing parts of the previous one up to ChunkOverlap.
func (s *RecursiveSplitter) merge(parts []string) []string {
	var docs, current []string
	total := 0
	for _, p := range parts {
		n := utf8.RuneCountInString(p)
		if total+n > s.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.ChunkOverlap || (total+n > s.ChunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeep cuts text on sep, keeping the separator at the start of the
// following part so that joining parts restores the original text.
func splitKeep(text, sep string) []string {
	if sep == "" {
		parts := make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	raw := strings.Split(text, sep)
	parts := make([]string, 0, len(raw))
	for i, p := range raw {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// overlapBytes is the byte length of the last n runes of s.
func overlapBytes(s string, n int) int {
	b := len(s)
	for i := 0; i < n && b > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:b])
		b -= size
	}
	return len(s) - b
}
