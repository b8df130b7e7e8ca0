package molecule

import (
	"strings"
	"unicode/utf8"

	"github.com/turtacn/potencynet/pkg/errors"
)

// PadCode is the code of padding and of characters outside the vocabulary.
const PadCode = 0

// defaultVocabulary is the closed character vocabulary of the structure
// strings in the training data.
var defaultVocabulary = map[rune]int{
	'l': 1, 'y': 2, '@': 3, '3': 4, 'H': 5, 'S': 6, 'F': 7, 'C': 8, 'r': 9,
	's': 10, '/': 11, 'c': 12, 'o': 13, '+': 14, 'I': 15, '5': 16, '(': 17,
	'2': 18, ')': 19, '9': 20, 'i': 21, '#': 22, '6': 23, '8': 24, '4': 25,
	'=': 26, '1': 27, 'O': 28, '[': 29, 'D': 30, 'B': 31, ']': 32, 'N': 33,
	'7': 34, 'n': 35, '-': 36,
}

// VocabularySize is the number of distinct codes of the default vocabulary,
// padding included.  It is the input dimension of the embedding layer.
const VocabularySize = 37

// DefaultVocabulary returns a copy of the character vocabulary.
func DefaultVocabulary() map[rune]int {
	out := make(map[rune]int, len(defaultVocabulary))
	for k, v := range defaultVocabulary {
		out[k] = v
	}
	return out
}

// Encoder maps structure strings to fixed-length integer sequences.  It is
// immutable and safe for concurrent use.
type Encoder struct {
	vocab   map[rune]int
	inverse map[int]rune
	length  int
}

// NewEncoder returns an Encoder over the default vocabulary producing
// sequences of the given length.
func NewEncoder(length int) (*Encoder, error) {
	return NewEncoderWithVocabulary(defaultVocabulary, length)
}

// NewEncoderWithVocabulary is NewEncoder with a caller-supplied vocabulary.
// Codes must be positive and unique; 0 is reserved for padding.
func NewEncoderWithVocabulary(vocab map[rune]int, length int) (*Encoder, error) {
	if length <= 0 {
		return nil, errors.Newf(errors.ErrCodeSequenceEncodingInvalid, "sequence length must be positive, got %d", length)
	}
	e := &Encoder{
		vocab:   make(map[rune]int, len(vocab)),
		inverse: make(map[int]rune, len(vocab)),
		length:  length,
	}
	for r, code := range vocab {
		if code <= PadCode {
			return nil, errors.Newf(errors.ErrCodeSequenceEncodingInvalid, "code for %q must be positive, got %d", r, code)
		}
		if prev, dup := e.inverse[code]; dup {
			return nil, errors.Newf(errors.ErrCodeSequenceEncodingInvalid, "code %d assigned to both %q and %q", code, prev, r)
		}
		e.vocab[r] = code
		e.inverse[code] = r
	}
	return e, nil
}

// Length returns the fixed output length.
func (e *Encoder) Length() int { return e.length }

// Encode maps each character of s to its code (PadCode when unknown), then
// truncates or right-pads with PadCode to Length.
func (e *Encoder) Encode(s string) []int {
	out := make([]int, e.length)
	i := 0
	for _, r := range s {
		if i == e.length {
			break
		}
		out[i] = e.vocab[r]
		i++
	}
	return out
}

// EncodeAll encodes every string; all rows have Length entries.
func (e *Encoder) EncodeAll(smiles []string) [][]int {
	out := make([][]int, len(smiles))
	for i, s := range smiles {
		out[i] = e.Encode(s)
	}
	return out
}

// Decode maps codes back to characters, skipping PadCode.  Characters that
// were unknown at encoding time are lost.
func (e *Encoder) Decode(codes []int) (string, error) {
	var sb strings.Builder
	for i, c := range codes {
		if c == PadCode {
			continue
		}
		r, ok := e.inverse[c]
		if !ok {
			return "", errors.Newf(errors.ErrCodeSequenceEncodingInvalid, "unknown code %d at position %d", c, i)
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}

// MaxLength returns the length in characters of the longest string across
// all sets.
func MaxLength(sets ...[]string) int {
	max := 0
	for _, set := range sets {
		for _, s := range set {
			if n := utf8.RuneCountInString(s); n > max {
				max = n
			}
		}
	}
	return max
}
