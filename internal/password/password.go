// Package password generates structured random passwords of the form
// XXXXXX-XXXXXX-XXXXXX and checks the minimal character class rule.
package password

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lower   = "abcdefghijklmnopqrstuvwxyz"
	digits  = "1234567890"
	special = "-_.!:;,#$%^&*"

	SegmentLength = 6
	SegmentCount  = 3
	Separator     = "-"
)

// Generator produces passwords from a source of random bytes.
type Generator struct {
	rnd io.Reader
}

// NewGenerator returns a Generator reading from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rnd: rand.Reader}
}

// NewGeneratorWithSource returns a Generator reading from r.
func NewGeneratorWithSource(r io.Reader) *Generator {
	return &Generator{rnd: r}
}

// Generate returns a password of SegmentCount segments of SegmentLength
// characters. With segmented set the segments are joined with Separator and
// at least one special character is included; otherwise they are concatenated
// and only letters and digits are used. Either way the result has at least one
// upper case letter, one lower case letter and one digit.
func (g *Generator) Generate(segmented bool) (string, error) {
	pool := upper + lower + digits
	classes := []string{upper, lower, digits}
	if segmented {
		pool += special
		classes = append(classes, special)
	}

	required := make([]byte, len(classes))
	for i, c := range classes {
		ch, err := g.pick(c)
		if err != nil {
			return "", err
		}
		required[i] = ch
	}

	segments := make([][]byte, SegmentCount)
	placed := make([]int, SegmentCount)
	for i := range segments {
		seg := make([]byte, SegmentLength)
		for j := range seg {
			ch, err := g.pick(pool)
			if err != nil {
				return "", err
			}
			seg[j] = ch
		}
		pos, err := g.intn(SegmentLength)
		if err != nil {
			return "", err
		}
		seg[pos] = required[i]
		placed[i] = pos
		segments[i] = seg
	}

	// More required characters than segments: put each extra one in a random
	// segment without overwriting the character already placed there.
	for _, ch := range required[SegmentCount:] {
		i, err := g.intn(SegmentCount)
		if err != nil {
			return "", err
		}
		off, err := g.intn(SegmentLength - 1)
		if err != nil {
			return "", err
		}
		segments[i][(placed[i]+1+off)%SegmentLength] = ch
	}

	parts := make([]string, SegmentCount)
	for i, seg := range segments {
		if err := g.shuffle(len(seg), func(a, b int) { seg[a], seg[b] = seg[b], seg[a] }); err != nil {
			return "", err
		}
		parts[i] = string(seg)
	}
	if err := g.shuffle(len(parts), func(a, b int) { parts[a], parts[b] = parts[b], parts[a] }); err != nil {
		return "", err
	}

	if segmented {
		return strings.Join(parts, Separator), nil
	}
	return strings.Join(parts, ""), nil
}

func (g *Generator) intn(n int) (int, error) {
	v, err := rand.Int(g.rnd, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return int(v.Int64()), nil
}

func (g *Generator) pick(set string) (byte, error) {
	i, err := g.intn(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

// shuffle is Fisher-Yates over n elements.
func (g *Generator) shuffle(n int, swap func(i, j int)) error {
	for i := n - 1; i > 0; i-- {
		j, err := g.intn(i + 1)
		if err != nil {
			return err
		}
		swap(i, j)
	}
	return nil
}

// IsValid reports whether p contains an upper case letter, a lower case
// letter and a digit. Length and special characters are not checked.
func IsValid(p string) bool {
	return strings.ContainsAny(p, upper) &&
		strings.ContainsAny(p, lower) &&
		strings.ContainsAny(p, digits)
}
