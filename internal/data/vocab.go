// Package data provides the vocabulary, the synthetic reversal dataset and
// the mini-batch loader used to train the seq2seq model.
package data

import (
	"errors"
	"fmt"
	"strings"
)

// Special token ids.
const (
	PadID int32 = 0
	BOSID int32 = 1
)

// ErrInvalidToken is returned for characters or ids outside the vocabulary.
var ErrInvalidToken = errors.New("invalid token")

const letters = "abcdefghijklmnopqrstuvwxyz"

// Vocab maps lowercase letters to token ids. Ids 0 and 1 are reserved for
// <pad> and <bos>; 'a'..'z' follow from id 2.
type Vocab struct {
	symbols []string
	index   map[rune]int32
}

// NewVocab returns the 28-symbol vocabulary.
func NewVocab() *Vocab {
	v := &Vocab{
		symbols: []string{"<pad>", "<bos>"},
		index:   make(map[rune]int32, len(letters)),
	}
	for _, r := range letters {
		v.index[r] = int32(len(v.symbols)) //nolint:gosec // vocabulary is tiny
		v.symbols = append(v.symbols, string(r))
	}
	return v
}

// Size returns the number of symbols, including the special tokens.
func (v *Vocab) Size() int {
	return len(v.symbols)
}

// Letters returns the number of letter symbols.
func (v *Vocab) Letters() int {
	return len(v.index)
}

// LetterID returns the id of the i-th letter (0 = 'a').
func (v *Vocab) LetterID(i int) int32 {
	return int32(i) + BOSID + 1 //nolint:gosec // caller passes i < Letters()
}

// Encode converts text to token ids.
func (v *Vocab) Encode(text string) ([]int32, error) {
	ids := make([]int32, 0, len(text))
	for pos, r := range text {
		id, ok := v.index[r]
		if !ok {
			return nil, fmt.Errorf("%w: %q at position %d", ErrInvalidToken, r, pos)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Decode converts token ids back to text, skipping <pad> and <bos>.
// Ids outside the vocabulary render as '?'.
func (v *Vocab) Decode(ids []int32) string {
	var sb strings.Builder
	for _, id := range ids {
		switch {
		case id == PadID || id == BOSID:
		case id < 0 || int(id) >= len(v.symbols):
			sb.WriteByte('?')
		default:
			sb.WriteString(v.symbols[id])
		}
	}
	return sb.String()
}

// Symbol returns the printable form of id.
func (v *Vocab) Symbol(id int32) (string, error) {
	if id < 0 || int(id) >= len(v.symbols) {
		return "", fmt.Errorf("%w: id %d outside vocabulary of size %d", ErrInvalidToken, id, len(v.symbols))
	}
	return v.symbols[id], nil
}

// Validate checks that every id lies in [0, Size()).
func (v *Vocab) Validate(ids []int32) error {
	for i, id := range ids {
		if id < 0 || int(id) >= len(v.symbols) {
			return fmt.Errorf("%w: id %d at position %d outside vocabulary of size %d",
				ErrInvalidToken, id, i, len(v.symbols))
		}
	}
	return nil
}
