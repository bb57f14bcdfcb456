package postprocess

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/enginecore/pkg/vecstore"
)

// lineTokenizer counts one token per line for predictable budgets.
type lineTokenizer struct{}

func (lineTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Split(text, "\n"))
}

func makeFile(name string, lines int, l1, l2 int, gt vecstore.GradientType) vecstore.ContextFile {
	content := make([]string, lines)
	for i := range content {
		content[i] = "line content"
	}
	return vecstore.ContextFile{
		FileName:     name,
		FileContent:  strings.Join(content, "\n"),
		Line1:        l1,
		Line2:        l2,
		GradientType: gt,
		Usefulness:   10,
	}
}

func TestProcess_SkipPPEmitsVerbatim(t *testing.T) {
	t.Parallel()
	f := makeFile("a.go", 10, 2, 4, vecstore.GradientPlateau)
	f.SkipPP = true
	out := Process([]vecstore.ContextFile{f}, lineTokenizer{}, Settings{TokenLimit: 1})
	require.Len(t, out, 1)
	require.Len(t, out[0].Ranges, 1)
	assert.Equal(t, 2, out[0].Ranges[0].First)
	assert.Equal(t, 4, out[0].Ranges[0].Last)
}

func TestProcess_TwoFilesWithSnippets(t *testing.T) {
	t.Parallel()
	files := []vecstore.ContextFile{
		makeFile("a.go", 400, 100, 120, vecstore.GradientPlateau),
		makeFile("b.go", 400, 100, 120, vecstore.GradientPlateau),
	}
	out := Process(files, lineTokenizer{}, Settings{TokenLimit: 400, TakeFloor: 9, MaxFilesN: 10})
	require.Len(t, out, 2)
	for _, rf := range out {
		require.NotEmpty(t, rf.Ranges)
	}
}

func TestProcess_NeverExceedsBudgetPerRender(t *testing.T) {
	t.Parallel()
	files := []vecstore.ContextFile{
		makeFile("a.go", 100, 1, 100, vecstore.GradientZero),
	}
	out := Process(files, lineTokenizer{}, Settings{TokenLimit: 20, MaxFilesN: 10})
	require.Len(t, out, 1)
	total := 0
	for _, r := range out[0].Ranges {
		total += lineTokenizer{}.CountTokens(r.Text)
	}
	assert.LessOrEqual(t, total, 20+fileHeaderTokenMargin)
}

func TestProcess_RespectsMaxFilesN(t *testing.T) {
	t.Parallel()
	var files []vecstore.ContextFile
	for i := 0; i < 5; i++ {
		files = append(files, makeFile(string(rune('a'+i))+".go", 10, 1, 5, vecstore.GradientZero))
	}
	out := Process(files, lineTokenizer{}, Settings{TokenLimit: 1000, MaxFilesN: 2})
	assert.LessOrEqual(t, len(out), 2)
}

func TestMergeRanges_NoDuplicateLines(t *testing.T) {
	t.Parallel()
	f := makeFile("a.go", 20, 5, 8, vecstore.GradientPlateau)
	out := Process([]vecstore.ContextFile{f}, lineTokenizer{}, Settings{TokenLimit: 1000})
	require.Len(t, out, 1)
	seen := make(map[int]bool)
	for _, r := range out[0].Ranges {
		for l := r.First; l <= r.Last; l++ {
			assert.False(t, seen[l], "line %d duplicated", l)
			seen[l] = true
		}
	}
}

func TestCloseSmallGaps_RaisesSingleLineHole(t *testing.T) {
	t.Parallel()
	fs := &fileState{lines: []fileLine{{useful: 10}, {useful: 1}, {useful: 10}}}
	closeSmallGaps(fs)
	assert.Equal(t, 10.0, fs.lines[1].useful)
}

func TestTruncateParts_ImagePlaceholderWhenBudgetTooSmall(t *testing.T) {
	t.Parallel()
	parts := []PlainTextPart{{IsImage: true}}
	out := TruncateParts(parts, lineTokenizer{}, 10)
	require.Len(t, out, 1)
	assert.False(t, out[0].IsImage)
	assert.Contains(t, out[0].Text, "omitted")
}

func TestFilterText_GrepAndLineLimit(t *testing.T) {
	t.Parallel()
	text := "alpha\nbeta\nalpha again\ngamma"
	got := FilterText(text, PlainTextFilter{Grep: regexp.MustCompile("alpha"), MaxLines: 1})
	assert.Equal(t, "alpha", got)
}
