package postprocess

import (
	"regexp"
	"strings"
)

// imageTokenWeight is the fixed pre-computed token cost of an inline
// image in plain-text postprocessing (spec.md §4.11 "Plain-text
// post-processor").
const imageTokenWeight = 765

// PlainTextFilter configures the per-message filter applied before
// token-truncation (spec.md §4.11).
type PlainTextFilter struct {
	MaxLines int
	MaxChars int
	Grep     *regexp.Regexp
}

// PlainTextPart is one element of a non-file tool output: either text or
// a placeholder-eligible image.
type PlainTextPart struct {
	IsImage bool
	Text    string
}

// FilterText applies the line-limit/char-limit/grep filter (spec.md
// §4.11).
func FilterText(text string, f PlainTextFilter) string {
	if f.Grep != nil {
		var kept []string
		for _, line := range strings.Split(text, "\n") {
			if f.Grep.MatchString(line) {
				kept = append(kept, line)
			}
		}
		text = strings.Join(kept, "\n")
	}
	if f.MaxLines > 0 {
		lines := strings.Split(text, "\n")
		if len(lines) > f.MaxLines {
			text = strings.Join(lines[:f.MaxLines], "\n")
		}
	}
	if f.MaxChars > 0 && len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	return text
}

// TruncateParts truncates a sequence of text/image parts to fit budget
// tokens. Images count as imageTokenWeight and are preserved whole, or
// replaced by a placeholder when the remaining budget is too small
// (spec.md §4.11).
func TruncateParts(parts []PlainTextPart, tok TokenCounter, budget int) []PlainTextPart {
	var out []PlainTextPart
	for _, p := range parts {
		if budget <= 0 {
			break
		}
		if p.IsImage {
			if budget >= imageTokenWeight {
				out = append(out, p)
				budget -= imageTokenWeight
			} else {
				out = append(out, PlainTextPart{Text: "[image omitted: insufficient token budget]"})
			}
			continue
		}
		cost := tok.CountTokens(p.Text)
		if cost <= budget {
			out = append(out, p)
			budget -= cost
			continue
		}
		out = append(out, PlainTextPart{Text: truncateToTokenBudget(p.Text, tok, budget)})
		budget = 0
	}
	return out
}

// truncateToTokenBudget binary-searches the longest prefix of text whose
// token count fits in budget.
func truncateToTokenBudget(text string, tok TokenCounter, budget int) string {
	if budget <= 0 {
		return ""
	}
	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if tok.CountTokens(text[:mid]) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return text[:lo]
}
