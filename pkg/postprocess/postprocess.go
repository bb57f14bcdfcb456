// Package postprocess implements the Postprocessor (spec.md §4.11):
// token-budgeted truncation of context files and plain text, directly
// grounded on the refact original's algorithm
// (_examples/original_source/.../scratchpads/pp_context_files.rs —
// function names below mirror it: colorByGradient ~ set_lines_usefulness,
// closeSmallGaps ~ close_small_gaps, limitAndMerge ~ pp_limit_and_merge).
//
// AST-derived symbol/comment coloring (pp_ast_markup_files in the
// original) is out of scope per spec.md §1 ("AST extraction ... assumed
// to expose the interfaces enumerated in §6"): this package accepts
// pre-resolved Symbols on a ContextFile and applies a uniform boost over
// the file's declared line range rather than walking a real syntax tree.
package postprocess

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"strings"

	"github.com/forgewright/enginecore/pkg/vecstore"
)

// Default coefficients, matching the refact original exactly.
const (
	downgradeBodyCoef        = 0.8
	downgradeParentCoef      = 0.6
	usefulBackground         = 5.0
	usefulSymbolDefault      = 10.0
	closeSmallGapsEnabled    = true
	commentsPropagateUpCoef  = 0.99
	takeFloorDefault         = 0.0
	maxFilesNDefault         = 10
	fileHeaderTokenMargin    = 5
)

// TokenCounter counts tokens in a string (backed by the Tokenizer Cache).
type TokenCounter interface {
	CountTokens(text string) int
}

// Settings configures one postprocessing pass (spec.md §4.11).
type Settings struct {
	TokenLimit  int
	TakeFloor   float64 // overridden to 50.0 by callers using pp_skeleton (spec.md §4.9)
	MaxFilesN   int
}

func (s Settings) normalized() Settings {
	if s.MaxFilesN <= 0 {
		s.MaxFilesN = maxFilesNDefault
	}
	return s
}

type fileLine struct {
	lineIdx int // 0-based
	useful  float64
}

type fileState struct {
	file  *vecstore.ContextFile
	lines []fileLine
}

// Process runs the full Postprocessor pipeline over files and returns the
// rendered, token-budgeted output per file in first-appearance order
// (spec.md §4.11 steps 1-7).
func Process(files []vecstore.ContextFile, tok TokenCounter, settings Settings) []RenderedFile {
	settings = settings.normalized()

	var verbatim []RenderedFile
	var pending []*fileState

	for i := range files {
		f := &files[i]
		if f.SkipPP {
			verbatim = append(verbatim, RenderedFile{
				FileName: f.FileName,
				Ranges:   []LineRange{{First: f.Line1, Last: f.Line2, Text: sliceLines(f.FileContent, f.Line1, f.Line2)}},
			})
			continue
		}
		pending = append(pending, buildFileState(f))
	}

	for _, fs := range pending {
		colorByGradient(fs)
		downgradeSubSymbols(fs)
		if closeSmallGapsEnabled {
			closeSmallGaps(fs)
		}
	}

	taken := limitAndMerge(pending, tok, settings)
	return append(verbatim, taken...)
}

func buildFileState(f *vecstore.ContextFile) *fileState {
	n := strings.Count(f.FileContent, "\n") + 1
	lines := make([]fileLine, n)
	for i := range lines {
		lines[i] = fileLine{lineIdx: i, useful: usefulBackground}
	}
	return &fileState{file: f, lines: lines}
}

// colorByGradient applies the per-gradient-type decay around
// [line1,line2] (spec.md §4.11 step 3).
func colorByGradient(fs *fileState) {
	f := fs.file
	l1, l2 := f.Line1-1, f.Line2-1 // 0-based
	n := len(fs.lines)
	clampIdx := func(i int) int {
		if i < 0 {
			return 0
		}
		if i >= n {
			return n - 1
		}
		return i
	}
	l1, l2 = clampIdx(l1), clampIdx(l2)

	base := usefulSymbolDefault
	if f.Usefulness > 0 {
		base = f.Usefulness
	}

	switch f.GradientType {
	case vecstore.GradientZero:
		for i := l1; i <= l2; i++ {
			fs.lines[i].useful = base - float64(i)*1e-5
		}
	case vecstore.GradientTriangle:
		for i := 0; i < n; i++ {
			dist := abs(i - l1)
			if dist > 50 {
				continue
			}
			v := base * (1 - float64(dist)/50)
			if v > fs.lines[i].useful {
				fs.lines[i].useful = v
			}
		}
	case vecstore.GradientRightTriangle:
		for i := 0; i <= l2 && i < n; i++ {
			v := base * (float64(i) + 1) / (float64(l2) + 1)
			if v > fs.lines[i].useful {
				fs.lines[i].useful = v
			}
		}
		for i := l2 + 1; i < n; i++ {
			fs.lines[i].useful = -1
		}
	case vecstore.GradientRightHalf:
		for i := l1; i <= l2 && i < n; i++ {
			if base > fs.lines[i].useful {
				fs.lines[i].useful = base
			}
		}
	case vecstore.GradientPlateau:
		for i := l1; i <= l2; i++ {
			if base > fs.lines[i].useful {
				fs.lines[i].useful = base
			}
		}
		for i := 0; i < l1; i++ {
			dist := l1 - i
			if dist > 50 {
				continue
			}
			v := base * (1 - float64(dist)/50)
			if v > fs.lines[i].useful {
				fs.lines[i].useful = v
			}
		}
		for i := l2 + 1; i < n; i++ {
			dist := i - l2
			if dist > 50 {
				continue
			}
			v := base * (1 - float64(dist)/50)
			if v > fs.lines[i].useful {
				fs.lines[i].useful = v
			}
		}
	default: // GradientConstant (-1) and any other value
		for i := l1; i <= l2 && i < n; i++ {
			if base > fs.lines[i].useful {
				fs.lines[i].useful = base
			}
		}
	}

	// Symbol boost: a uniform boost over the declared range when symbols
	// are present (AST stand-in, see package doc).
	if len(f.Symbols) > 0 {
		for i := l1; i <= l2 && i < n; i++ {
			if fs.lines[i].useful < usefulSymbolDefault {
				fs.lines[i].useful = usefulSymbolDefault
			}
		}
	}
}

// downgradeSubSymbols downgrades symbol bodies and parents so
// declarations outrank implementations (spec.md §4.11 step 4). Without a
// real AST we approximate "body" as everything but the first line of the
// range, and "parent" as the first line's immediate predecessor.
func downgradeSubSymbols(fs *fileState) {
	f := fs.file
	if len(f.Symbols) == 0 {
		return
	}
	l1, l2 := f.Line1-1, f.Line2-1
	n := len(fs.lines)
	if l1 < 0 || l1 >= n {
		return
	}
	for i := l1 + 1; i <= l2 && i < n; i++ {
		fs.lines[i].useful *= downgradeBodyCoef
	}
	if l1-1 >= 0 {
		fs.lines[l1-1].useful *= downgradeParentCoef
	}
}

// closeSmallGaps raises any 1-line hole whose neighbors are useful to
// min(left,right) (spec.md §4.11 step 5).
func closeSmallGaps(fs *fileState) {
	lines := fs.lines
	for i := 1; i+1 < len(lines); i++ {
		left, mid, right := lines[i-1].useful, lines[i].useful, lines[i+1].useful
		if mid < left && mid < right {
			m := left
			if right < m {
				m = right
			}
			lines[i].useful = m
		}
	}
}

// symmetryBreaker is a small deterministic per-file tiebreaker derived
// from a hash of the file path (refact's cpath_symmetry_breaker,
// SPEC_FULL.md §2).
func symmetryBreaker(path string) float64 {
	sum := sha256.Sum256([]byte(path))
	v := binary.BigEndian.Uint16(sum[:2])
	return float64(v) / float64(1<<16) * 1e-3
}

// LineRange is one emitted span of a rendered file.
type LineRange struct {
	First int
	Last  int
	Text  string
}

// RenderedFile is the Postprocessor's output for one file: one or more
// ranges, "..." implied between gaps (spec.md §4.11 step 7).
type RenderedFile struct {
	FileName string
	Ranges   []LineRange
}

type candidate struct {
	fileIdx int
	lineIdx int
	useful  float64
}

// limitAndMerge sorts all lines by useful+tiebreaker descending, greedily
// takes under TokenLimit (reserving fileHeaderTokenMargin tokens per
// newly-introduced file), respects MaxFilesN, and merges contiguous taken
// lines per file into ranges in file first-appearance order (spec.md
// §4.11 steps 6-7).
func limitAndMerge(files []*fileState, tok TokenCounter, settings Settings) []RenderedFile {
	if len(files) == 0 {
		return nil
	}

	var cands []candidate
	for fi, fs := range files {
		tb := symmetryBreaker(fs.file.FileName)
		for li, l := range fs.lines {
			if l.useful < settings.TakeFloor {
				continue
			}
			cands = append(cands, candidate{fileIdx: fi, lineIdx: li, useful: l.useful + tb})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].useful > cands[j].useful })

	taken := make([]map[int]bool, len(files))
	for i := range taken {
		taken[i] = make(map[int]bool)
	}
	firstSeenOrder := make([]int, 0, len(files))
	seenFile := make(map[int]bool)

	budget := settings.TokenLimit
	for _, c := range cands {
		if budget <= 0 {
			break
		}
		lineText := files[c.fileIdx].lineText(c.lineIdx)
		cost := tok.CountTokens(lineText)
		if !seenFile[c.fileIdx] {
			if len(firstSeenOrder) >= settings.MaxFilesN {
				continue
			}
			cost += fileHeaderTokenMargin
		}
		if cost > budget {
			continue
		}
		if !seenFile[c.fileIdx] {
			seenFile[c.fileIdx] = true
			firstSeenOrder = append(firstSeenOrder, c.fileIdx)
		}
		taken[c.fileIdx][c.lineIdx] = true
		budget -= cost
	}

	out := make([]RenderedFile, 0, len(firstSeenOrder))
	for _, fi := range firstSeenOrder {
		out = append(out, RenderedFile{
			FileName: files[fi].file.FileName,
			Ranges:   mergeRanges(files[fi], taken[fi]),
		})
	}
	return out
}

func (fs *fileState) lineText(idx int) string {
	lines := strings.Split(fs.file.FileContent, "\n")
	if idx < 0 || idx >= len(lines) {
		return ""
	}
	return lines[idx]
}

// mergeRanges merges the taken (0-based) line indices into contiguous
// 1-based [first,last] ranges, never duplicating lines (I4).
func mergeRanges(f *fileState, taken map[int]bool) []LineRange {
	var idxs []int
	for i := range taken {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	if len(idxs) == 0 {
		return nil
	}

	lines := strings.Split(f.file.FileContent, "\n")
	var ranges []LineRange
	start := idxs[0]
	prev := idxs[0]
	for _, i := range idxs[1:] {
		if i == prev+1 {
			prev = i
			continue
		}
		ranges = append(ranges, LineRange{First: start + 1, Last: prev + 1, Text: joinLines(lines, start, prev)})
		start, prev = i, i
	}
	ranges = append(ranges, LineRange{First: start + 1, Last: prev + 1, Text: joinLines(lines, start, prev)})
	return ranges
}

func joinLines(lines []string, from, to int) string {
	if from < 0 {
		from = 0
	}
	if to >= len(lines) {
		to = len(lines) - 1
	}
	if from > to {
		return ""
	}
	return strings.Join(lines[from:to+1], "\n")
}

func sliceLines(content string, line1, line2 int) string {
	lines := strings.Split(content, "\n")
	if line1 < 1 {
		line1 = 1
	}
	if line2 > len(lines) {
		line2 = len(lines)
	}
	if line1 > line2 {
		return ""
	}
	return strings.Join(lines[line1-1:line2], "\n")
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
