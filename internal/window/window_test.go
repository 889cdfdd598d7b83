package window

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spans(windows []models.TextWindow) [][2]int {
	out := make([][2]int, len(windows))
	for i, w := range windows {
		out[i] = [2]int{w.Start, w.End}
	}
	return out
}

func join(windows []models.TextWindow) string {
	var b strings.Builder
	for _, w := range windows {
		b.WriteString(w.Text)
	}
	return b.String()
}

func TestNewPlannerRejectsNonPositive(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := NewPlanner(n)
		assert.ErrorIs(t, err, errs.ErrConfiguration)
	}
}

func TestWindowsTenCharsBufferFour(t *testing.T) {
	p, err := NewPlanner(4)
	require.NoError(t, err)

	windows := p.Collect("abcdefghij")
	assert.Equal(t, [][2]int{{0, 4}, {4, 8}, {8, 10}}, spans(windows))
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, []string{windows[0].Text, windows[1].Text, windows[2].Text})
	for i, w := range windows {
		assert.Equal(t, i, w.Index)
	}
	assert.Equal(t, 3, p.Count("abcdefghij"))
}

func TestWindowsCoverText(t *testing.T) {
	texts := []string{
		"",
		"a",
		"exactly8",
		"The quick brown fox jumps over the lazy dog.",
		"héllo wörld, ñandú — 日本語のテキスト",
		strings.Repeat("paragraph one.\n\n", 20),
	}
	for _, text := range texts {
		for _, size := range []int{1, 3, 4, 8, 17, 1000} {
			p, err := NewPlanner(size)
			require.NoError(t, err)

			windows := p.Collect(text)
			assert.Equal(t, text, join(windows), "size=%d", size)

			n := utf8.RuneCountInString(text)
			assert.Equal(t, (n+size-1)/size, len(windows), "size=%d", size)
			assert.Equal(t, len(windows), p.Count(text))

			prevEnd := 0
			for i, w := range windows {
				assert.Equal(t, prevEnd, w.Start, "gap before window %d", i)
				if i < len(windows)-1 {
					assert.Equal(t, size, w.Len())
				} else {
					assert.LessOrEqual(t, w.Len(), size)
					assert.Equal(t, n, w.End)
				}
				assert.Equal(t, w.Len(), utf8.RuneCountInString(w.Text))
				prevEnd = w.End
			}
		}
	}
}

func TestWindowsRestartable(t *testing.T) {
	p, err := NewPlanner(3)
	require.NoError(t, err)

	seq := p.Windows("restartable")
	first := collectSeq(seq)
	second := collectSeq(seq)
	assert.Equal(t, first, second)
}

func TestWindowsStopEarly(t *testing.T) {
	p, err := NewPlanner(2)
	require.NoError(t, err)

	var seen []int
	for w := range p.Windows("abcdefgh") {
		seen = append(seen, w.Index)
		if w.Index == 1 {
			break
		}
	}
	assert.Equal(t, []int{0, 1}, seen)
}

func collectSeq(seq func(func(models.TextWindow) bool)) []models.TextWindow {
	var out []models.TextWindow
	seq(func(w models.TextWindow) bool {
		out = append(out, w)
		return true
	})
	return out
}

func TestBoundaryAwareSentence(t *testing.T) {
	p, err := NewPlanner(14, WithBoundaryAware())
	require.NoError(t, err)

	text := "Hello there. General Kenobi!"
	windows := p.Collect(text)
	require.NotEmpty(t, windows)
	assert.Equal(t, "Hello there. ", windows[0].Text)
	assert.Equal(t, text, join(windows))
	assert.Equal(t, len(windows), p.Count(text))
}

func TestBoundaryAwareParagraph(t *testing.T) {
	p, err := NewPlanner(10, WithBoundaryAware())
	require.NoError(t, err)

	windows := p.Collect("aaaaaa\n\nbbbbbbbb")
	require.NotEmpty(t, windows)
	assert.Equal(t, "aaaaaa\n\n", windows[0].Text)
	assert.Equal(t, "aaaaaa\n\nbbbbbbbb", join(windows))
}

func TestBoundaryAwareIgnoresFirstHalf(t *testing.T) {
	p, err := NewPlanner(10, WithBoundaryAware())
	require.NoError(t, err)

	windows := p.Collect("a\n\nbbbbbbbbbbbbbb")
	require.NotEmpty(t, windows)
	assert.Equal(t, 10, windows[0].Len(), "boundary in first half falls back to a hard cut")
}

func TestBoundaryAwareStaysBounded(t *testing.T) {
	text := strings.Repeat("Short one. Another sentence here!\nAnd a line\n\n", 30)
	for _, size := range []int{1, 2, 7, 25, 64} {
		p, err := NewPlanner(size, WithBoundaryAware())
		require.NoError(t, err)

		windows := p.Collect(text)
		assert.Equal(t, text, join(windows))
		prevEnd := 0
		for _, w := range windows {
			assert.Equal(t, prevEnd, w.Start)
			assert.Greater(t, w.Len(), 0)
			assert.LessOrEqual(t, w.Len(), size)
			prevEnd = w.End
		}
	}
}
