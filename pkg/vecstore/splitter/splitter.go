// Package splitter implements the Vectorizer Service's text splitter
// (spec.md §4.5.1), adapted from pkg/rag/chunk's rune-based chunker into
// line-tracked, overlap-by-one-line windows with a canonical content hash.
package splitter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/forgewright/enginecore/pkg/vecstore"
)

// Splitter produces line-bounded, content-hashed windows over file text.
type Splitter struct {
	// Configured is the operator-configured window size in lines; the
	// effective size is min(embeddingNCtx/2, Configured).
	Configured int
}

// New returns a Splitter with the given configured window size in lines.
func New(configured int) *Splitter {
	if configured <= 0 {
		configured = 50
	}
	return &Splitter{Configured: configured}
}

// WindowHash returns the canonical 16-hex-digest content hash for a window
// of text, shared with the Vector Cache's key space (spec.md §3.4, §4.3).
func WindowHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// SplitText splits text into overlapping, line-tracked windows. Window
// size is min(embeddingNCtx/2, s.Configured) lines; consecutive windows
// overlap by one line (spec.md §4.5.1). Lines are 1-based.
func (s *Splitter) SplitText(filePath, text string, embeddingNCtx int) []vecstore.Window {
	lines := strings.Split(text, "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}

	size := s.Configured
	if embeddingNCtx > 0 && embeddingNCtx/2 < size {
		size = embeddingNCtx / 2
	}
	if size < 1 {
		size = 1
	}

	var windows []vecstore.Window
	start := 0 // 0-based index into lines
	n := len(lines)
	for start < n {
		end := start + size
		if end > n {
			end = n
		}
		windowText := strings.Join(lines[start:end], "\n")
		windows = append(windows, vecstore.Window{
			FilePath:       filePath,
			WindowText:     windowText,
			WindowTextHash: WindowHash(windowText),
			StartLine:      start + 1,
			EndLine:        end,
		})
		if end >= n {
			break
		}
		// Overlap by one line: next window starts at the last line of
		// this one.
		start = end - 1
		if start <= 0 {
			start = end
		}
	}
	return windows
}

// SplitFile reads path and splits its content via SplitText.
func (s *Splitter) SplitFile(path string, embeddingNCtx int) ([]vecstore.Window, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return s.SplitText(path, string(data), embeddingNCtx), nil
}

// CollectFiles recursively collects files under the given roots or globs,
// for the Vectorizer Service's initial scan (adapted from pkg/rag/chunk).
func CollectFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	for _, pattern := range paths {
		expanded, err := expandPattern(pattern)
		if err != nil {
			return nil, err
		}
		if len(expanded) == 0 {
			expanded = []string{pattern}
		}

		for _, entry := range expanded {
			normalized := normalizePath(entry)
			info, err := os.Stat(normalized)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("stat %s: %w", entry, err)
			}
			if info.IsDir() {
				walkErr := filepath.Walk(normalized, func(p string, info os.FileInfo, err error) error {
					if err != nil {
						return err
					}
					if info.IsDir() {
						return nil
					}
					fp := normalizePath(p)
					if !seen[fp] {
						files = append(files, fp)
						seen[fp] = true
					}
					return nil
				})
				if walkErr != nil {
					return nil, fmt.Errorf("walking %s: %w", normalized, walkErr)
				}
				continue
			}
			if !seen[normalized] {
				files = append(files, normalized)
				seen[normalized] = true
			}
		}
	}
	return files, nil
}

// Matches reports whether path matches any of the given glob/plain
// patterns, for filtering filesystem-watch events (adapted from
// pkg/rag/chunk's Matches).
func Matches(path string, patterns []string) (bool, error) {
	cleanPath := normalizePath(path)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		normalizedPattern := normalizePath(pattern)
		if strings.ContainsAny(pattern, "*?[") {
			match, err := doublestar.PathMatch(normalizedPattern, cleanPath)
			if err != nil {
				return false, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
			}
			if match {
				return true, nil
			}
			continue
		}
		if cleanPath == normalizedPattern || strings.HasPrefix(cleanPath, normalizedPattern+string(filepath.Separator)) {
			return true, nil
		}
	}
	return false, nil
}

func expandPattern(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{normalizePath(pattern)}, nil
	}
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	results := make([]string, 0, len(matches))
	for _, m := range matches {
		results = append(results, normalizePath(m))
	}
	return results, nil
}

func normalizePath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(p)
}
