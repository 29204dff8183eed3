package fingerprint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/corona10/goimagehash"
)

var (
	// ErrBitLengthMismatch is returned when comparing fingerprints of different sizes.
	ErrBitLengthMismatch = errors.New("fingerprint bit lengths differ")
	// ErrInvalidHex is returned when a hex string cannot be decoded into a fingerprint.
	ErrInvalidHex = errors.New("invalid fingerprint hex")
)

// Fingerprint is a fixed-length perceptual hash compared by Hamming distance.
// The bit pattern is stored big-endian across 64-bit words, left-padded with
// zero bits when the length is not a multiple of 64.
type Fingerprint struct {
	bits int
	hash *goimagehash.ExtImageHash
}

// New builds a fingerprint of the given bit length from its words.
func New(words []uint64, bits int) (Fingerprint, error) {
	if bits <= 0 {
		return Fingerprint{}, fmt.Errorf("fingerprint bit length must be positive, got %d", bits)
	}
	if len(words) != wordsFor(bits) {
		return Fingerprint{}, fmt.Errorf("fingerprint of %d bits needs %d words, got %d", bits, wordsFor(bits), len(words))
	}
	cp := make([]uint64, len(words))
	copy(cp, words)
	return Fingerprint{
		bits: bits,
		hash: goimagehash.NewExtImageHash(cp, goimagehash.PHash, bits),
	}, nil
}

// MustNew is like New but panics on error. Intended for tests and constants.
func MustNew(words []uint64, bits int) Fingerprint {
	fp, err := New(words, bits)
	if err != nil {
		panic(err)
	}
	return fp
}

func wordsFor(bits int) int {
	return (bits + 63) / 64
}

// Bits returns the fingerprint length in bits.
func (f Fingerprint) Bits() int {
	return f.bits
}

// IsZero reports whether f is the zero value.
func (f Fingerprint) IsZero() bool {
	return f.hash == nil
}

// Words returns a copy of the underlying words.
func (f Fingerprint) Words() []uint64 {
	if f.hash == nil {
		return nil
	}
	src := f.hash.GetHash()
	out := make([]uint64, len(src))
	copy(out, src)
	return out
}

// Equal reports whether two fingerprints have the same length and bits.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if f.bits != other.bits {
		return false
	}
	d, err := f.Distance(other)
	return err == nil && d == 0
}

// Distance returns the number of differing bits between f and other.
func (f Fingerprint) Distance(other Fingerprint) (int, error) {
	if f.hash == nil || other.hash == nil {
		return 0, errors.New("cannot compare empty fingerprint")
	}
	if f.bits != other.bits {
		return 0, fmt.Errorf("%w: %d vs %d", ErrBitLengthMismatch, f.bits, other.bits)
	}
	return f.hash.Distance(other.hash)
}

// Similarity returns 100 × (1 − distance / bits) for two fingerprints.
func Similarity(a, b Fingerprint) (float64, error) {
	d, err := a.Distance(b)
	if err != nil {
		return 0, err
	}
	return SimilarityFromDistance(d, a.bits), nil
}

// SimilarityFromDistance converts a Hamming distance into a percentage.
func SimilarityFromDistance(distance, bits int) float64 {
	return 100 * (1 - float64(distance)/float64(bits))
}

// MaxDistance returns the largest integer distance that can still reach
// minSimilarity for fingerprints of the given length. It may overshoot by
// one because of float rounding, so callers re-check with Similarity.
func MaxDistance(minSimilarity float64, bits int) int {
	d := int(float64(bits)*(1-minSimilarity/100)) + 1
	if d < 0 {
		return 0
	}
	if d > bits {
		return bits
	}
	return d
}

// String encodes the fingerprint as lowercase hex, one digit per four bits.
func (f Fingerprint) String() string {
	if f.hash == nil {
		return ""
	}
	var b strings.Builder
	for _, w := range f.hash.GetHash() {
		fmt.Fprintf(&b, "%016x", w)
	}
	s := b.String()
	return s[len(s)-hexLen(f.bits):]
}

func hexLen(bits int) int {
	return (bits + 3) / 4
}

// Parse decodes a hex string produced by String. The bit length is four
// times the number of hex digits.
func Parse(s string) (Fingerprint, error) {
	return ParseBits(s, 0)
}

// ParseBits decodes a hex string of a fingerprint with the given bit
// length, which String rounds up to whole hex digits. A bits value of 0
// infers four bits per digit.
func ParseBits(s string, bits int) (Fingerprint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Fingerprint{}, fmt.Errorf("%w: empty string", ErrInvalidHex)
	}
	if bits <= 0 {
		bits = len(s) * 4
	}
	if len(s) != hexLen(bits) {
		return Fingerprint{}, fmt.Errorf("%w: %d digits for %d bits", ErrInvalidHex, len(s), bits)
	}
	n := wordsFor(bits)
	padded := strings.Repeat("0", n*16-len(s)) + s

	words := make([]uint64, n)
	for i := range words {
		chunk := padded[i*16 : (i+1)*16]
		w, err := strconv.ParseUint(chunk, 16, 64)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
		}
		words[i] = w
	}
	// bits above the length must be zero padding
	if pad := n*64 - bits; pad > 0 && words[0]>>(64-pad) != 0 {
		return Fingerprint{}, fmt.Errorf("%w: %q has bits beyond length %d", ErrInvalidHex, s, bits)
	}
	return New(words, bits)
}
