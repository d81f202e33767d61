package api

import (
	"path/filepath"
	"strings"
)

// invalidFilenameChars covers Windows plus path separators; the superset
// keeps output names portable.
const invalidFilenameChars = `<>:"/\|?*`

// outputFilename turns a title or user-supplied name into a safe .mp4
// filename.
func outputFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "download"
	}

	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(invalidFilenameChars, r) {
			return '_'
		}
		return r
	}, name)

	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" {
		cleaned = "download"
	}
	if len(cleaned) > 150 {
		cleaned = cleaned[:150]
	}

	if !strings.EqualFold(filepath.Ext(cleaned), ".mp4") {
		cleaned += ".mp4"
	}
	return cleaned
}
