package atcommands

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/forgewright/enginecore/pkg/chat"
)

// wordPattern mirrors refact's parse_words_from_line: `(@?\S*)`; trailing
// `!.,?` are trimmed from each matched word.
var wordPattern = regexp.MustCompile(`@?\S+`)

// member is one parsed word and its byte span in the original line,
// mirroring refact's AtCommandMember.
type member struct {
	Text       string
	Start, End int
}

func parseWordsFromLine(line string) []member {
	locs := wordPattern.FindAllStringIndex(line, -1)
	members := make([]member, 0, len(locs))
	for _, loc := range locs {
		text := strings.TrimRight(line[loc[0]:loc[1]], "!.,?")
		members = append(members, member{Text: text, Start: loc[0], End: loc[0] + len(text)})
	}
	return members
}

// Resolver parses and executes @-commands embedded in user messages
// (spec.md §4.9).
type Resolver struct {
	commands map[string]Command
	// knownPaths supports correct_at_arg's fuzzy filename correction
	// (SPEC_FULL.md §2).
	knownPaths []string
}

// NewResolver constructs a Resolver over a set of commands.
func NewResolver(commands ...Command) *Resolver {
	r := &Resolver{commands: make(map[string]Command, len(commands))}
	for _, c := range commands {
		r.commands[c.Name()] = c
	}
	return r
}

// SetKnownPaths supplies the indexed path universe for fuzzy filename
// correction.
func (r *Resolver) SetKnownPaths(paths []string) { r.knownPaths = paths }

// ReserveForContext computes the per-user-message context budget: total
// reserve split evenly across the trailing contiguous block of user
// messages that contain an @-command (spec.md §4.9). When
// nUserMessagesWithAt is 0 the full reserve is returned; otherwise the
// per-message budget is floored at minRAGContextLimit.
func ReserveForContext(reserve int, nUserMessagesWithAt int) int {
	if nUserMessagesWithAt <= 0 {
		return reserve
	}
	per := reserve / nUserMessagesWithAt
	if per < minRAGContextLimit {
		per = minRAGContextLimit
	}
	return per
}

// TrailingUserMessagesWithAt counts the trailing contiguous block of user
// messages (from the end of messages) that contain at least one @-command
// token.
func TrailingUserMessagesWithAt(messages []chat.Message) int {
	n := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != chat.RoleUser {
			break
		}
		if hasAtCommand(messages[i].Text) {
			n++
			continue
		}
		break
	}
	return n
}

func hasAtCommand(text string) bool {
	for _, m := range parseWordsFromLine(text) {
		if strings.HasPrefix(m.Text, "@") {
			return true
		}
	}
	return false
}

// splitBudget splits budget 50/50 between plain text and files; unused
// plain-text budget is donated to files (spec.md §4.9).
func splitBudget(budget, plainTextUsed int) (forText, forFiles int) {
	half := budget / 2
	forText = half
	forFiles = budget - half
	if plainTextUsed < forText {
		forFiles += forText - plainTextUsed
		forText = plainTextUsed
	}
	return forText, forFiles
}

// ExecuteInQuery runs every @-command found in query, replacing matched
// spans (in reverse position order, so earlier spans do not shift) with
// each command's replacement text, and returns the rewritten query plus
// the aggregated Result (spec.md §4.9, I: R1 round-trip law).
func (r *Resolver) ExecuteInQuery(ctx context.Context, turn *Turn, query string) (string, Result, error) {
	members := parseWordsFromLine(query)

	type hit struct {
		member member
		args   []string
		cmd    Command
		end    int
	}
	var hits []hit
	for i := 0; i < len(members); i++ {
		m := members[i]
		if !strings.HasPrefix(m.Text, "@") {
			continue
		}
		name := strings.TrimPrefix(m.Text, "@")
		cmd, ok := r.commands[name]
		if !ok {
			continue
		}
		var args []string
		j := i + 1
		for ; j < len(members); j++ {
			if strings.HasPrefix(members[j].Text, "@") {
				break
			}
			args = append(args, members[j].Text)
		}
		end := m.End
		if j > i+1 {
			// extend the replaced span through the command's arguments
			end = members[j-1].End
		}
		hits = append(hits, hit{member: m, args: args, cmd: cmd, end: end})
		i = j - 1
	}

	var agg Result
	replacements := make([]struct {
		start, end int
		text       string
	}, 0, len(hits))

	for _, h := range hits {
		res, err := h.cmd.Execute(ctx, turn, h.args)
		if err != nil {
			return query, agg, fmt.Errorf("executing @%s: %w", h.cmd.Name(), err)
		}
		agg.Messages = append(agg.Messages, res.Messages...)
		agg.ContextFiles = append(agg.ContextFiles, res.ContextFiles...)
		replacements = append(replacements, struct {
			start, end int
			text       string
		}{h.member.Start, h.end, res.ReplacementText})
	}

	// Reverse positional order so earlier spans do not shift (spec.md §4.9).
	sort.Slice(replacements, func(i, j int) bool { return replacements[i].start > replacements[j].start })
	out := query
	for _, rep := range replacements {
		if rep.start < 0 || rep.end > len(out) || rep.start > rep.end {
			continue
		}
		out = out[:rep.start] + rep.text + out[rep.end:]
	}

	return out, agg, nil
}

// CorrectAtArg attempts a best-effort filename correction when arg does
// not match a known path exactly: case-insensitive suffix match, then
// nearest by Levenshtein distance (refact's correct_at_arg, SPEC_FULL.md
// §2).
func (r *Resolver) CorrectAtArg(arg string) (string, bool) {
	for _, p := range r.knownPaths {
		if p == arg {
			return p, true
		}
	}
	lowerArg := strings.ToLower(arg)
	for _, p := range r.knownPaths {
		if strings.HasSuffix(strings.ToLower(p), lowerArg) {
			return p, true
		}
	}

	best, bestDist := "", -1
	for _, p := range r.knownPaths {
		d := levenshtein(arg, p)
		if bestDist == -1 || d < bestDist {
			best, bestDist = p, d
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
