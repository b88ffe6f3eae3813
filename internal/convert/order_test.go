package convert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortByPrefixNumeric(t *testing.T) {
	got := SortByPrefix([]string{"2.png", "10.jpg", "1.pdf"})
	assert.Equal(t, []string{"1.pdf", "2.png", "10.jpg"}, got)
}

func TestSortByPrefixSeparators(t *testing.T) {
	got := SortByPrefix([]string{"03-c.pdf", "1_a.pdf", "2.b.pdf"})
	assert.Equal(t, []string{"1_a.pdf", "2.b.pdf", "03-c.pdf"}, got)
}

func TestSortByPrefixNoPrefixLast(t *testing.T) {
	got := SortByPrefix([]string{"notes.pdf", "2.png", "1.pdf"})
	assert.Equal(t, []string{"1.pdf", "2.png", "notes.pdf"}, got)
}

func TestSortByPrefixTieBreak(t *testing.T) {
	// Same (absent) prefix: fall back to case-insensitive numeric-aware
	// name comparison.
	got := SortByPrefix([]string{"page10.pdf", "Page2.pdf", "page1.pdf"})
	assert.Equal(t, []string{"page1.pdf", "Page2.pdf", "page10.pdf"}, got)
}

func TestSortByPrefixDoesNotMutateInput(t *testing.T) {
	in := []string{"2.png", "1.pdf"}
	_ = SortByPrefix(in)
	assert.Equal(t, []string{"2.png", "1.pdf"}, in)
}

func TestNumericPrefix(t *testing.T) {
	assert.Equal(t, 7.0, numericPrefix("/tmp/7_scan.png"))
	assert.Equal(t, 7.0, numericPrefix("07.pdf"))
	assert.True(t, math.IsInf(numericPrefix("scan.png"), 1))
}

func TestCompareNatural(t *testing.T) {
	assert.Negative(t, compareNatural("page2", "page10"))
	assert.Positive(t, compareNatural("page10", "page2"))
	assert.Zero(t, compareNatural("page07", "page7"))
	assert.Negative(t, compareNatural("a", "ab"))
}
