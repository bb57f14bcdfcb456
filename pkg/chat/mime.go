package chat

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var imageExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// textExt is the allowlist of extensions treated as text/plain regardless
// of byte content.
var textExt = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".json": true, ".csv": true,
	".go": true, ".py": true, ".yaml": true, ".yml": true, ".mk": true,
	".html": true, ".htm": true, ".css": true, ".ts": true, ".tsx": true,
	".rs": true, ".java": true, ".sh": true, ".toml": true, ".sql": true,
	".dockerfile": true, ".graphql": true, ".gql": true, ".svg": true, ".diff": true,
	".xml": true, ".org": true, ".cpp": true, ".cc": true, ".h": true, ".hpp": true,
	".ex": true, ".exs": true, ".hs": true, ".swift": true, ".kt": true,
	".dart": true, ".zig": true, ".c": true, ".rb": true, ".php": true,
	".js": true, ".jsx": true, ".patch": true,
}

// textBasename handles extensionless or dotfile-style known-text names.
var textBasename = map[string]bool{
	"makefile": true, "dockerfile": true, ".gitignore": true, "gitignore": true,
}

// DetectMimeType maps a file name's extension to a MIME type. Unknown
// extensions resolve to application/octet-stream.
func DetectMimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := imageExt[ext]; ok {
		return mt
	}
	if ext == ".pdf" {
		return "application/pdf"
	}
	if textExt[ext] || textBasename[strings.ToLower(filepath.Base(name))] {
		return "text/plain"
	}
	return "application/octet-stream"
}

// IsSupportedMimeType reports whether mt is one of the mime types the
// multimodal wire format accepts (spec.md §6.5): images, PDF, plain text.
func IsSupportedMimeType(mt string) bool {
	switch mt {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "application/pdf", "text/plain":
		return true
	default:
		return false
	}
}

// IsTextFile reports whether path should be treated as text: either its
// extension is in the known-text allowlist, or (for unknown extensions)
// its content looks like text by byte-sniffing. Unreadable files are
// reported as non-text; empty files are treated as text.
func IsTextFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.ToLower(filepath.Base(path))
	if textExt[ext] || textBasename[base] {
		return true
	}
	if imageExt[ext] != "" || ext == ".pdf" {
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if len(data) == 0 {
		return true
	}
	n := len(data)
	if n > 512 {
		n = 512
	}
	return !bytes.Contains(data[:n], []byte{0x00})
}

// ReadFileForInline reads path and wraps its content in an
// <attached_file> tag for inline inclusion in a message.
func ReadFileForInline(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return fmt.Sprintf("<attached_file path=%q>\n%s\n</attached_file>", path, string(data)), nil
}
