// Package docid normalizes document identifiers into their canonical namespace form.
package docid

import (
	"path"
	"strings"

	"github.com/gosimple/slug"
)

const maxLength = 200

// legacyExtensions are file suffixes older clients appended to document ids.
var legacyExtensions = []string{".txt", ".md", ".vtt", ".srt", ".json"}

// Normalize returns the canonical form of a document id: namespace segments
// separated by "/", each segment lowercased and slugged, legacy file
// extensions dropped. It returns "" when nothing usable remains.
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	raw := strings.Split(strings.ReplaceAll(id, "\\", "/"), "/")
	segments := make([]string, 0, len(raw))
	for _, seg := range raw {
		seg = stripExtension(strings.TrimSpace(seg))
		seg = strings.ReplaceAll(seg, "_", "-")
		if s := slug.Make(seg); s != "" {
			segments = append(segments, s)
		}
	}
	out := strings.Join(segments, "/")
	if len(out) > maxLength {
		out = strings.TrimRight(out[:maxLength], "-/")
	}
	return out
}

// IsNormalized reports whether id is already in canonical form.
func IsNormalized(id string) bool {
	return id != "" && Normalize(id) == id
}

func stripExtension(seg string) string {
	ext := strings.ToLower(path.Ext(seg))
	for _, legacy := range legacyExtensions {
		if ext == legacy {
			return strings.TrimSuffix(seg, seg[len(seg)-len(ext):])
		}
	}
	return seg
}
