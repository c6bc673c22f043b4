// Package filter implements the enumerator's cheap, in-memory accept/reject
// predicate: an active extension set mapped to categories, plus an optional
// byte-size window. It is the "filter predicate" abstract interface spec.md
// §1 lists as an external collaborator input — the core only consumes it.
package filter

import (
	"strings"

	"dupvault/internal/model"
)

// defaultExtensions is the built-in extension→category table. Callers may
// extend or replace entries via Chain.AddExtension.
var defaultExtensions = map[string]model.Category{
	".jpg": model.CategoryImage, ".jpeg": model.CategoryImage, ".png": model.CategoryImage,
	".gif": model.CategoryImage, ".bmp": model.CategoryImage, ".heic": model.CategoryImage,
	".tiff": model.CategoryImage, ".webp": model.CategoryImage, ".raw": model.CategoryImage,
	".cr2": model.CategoryImage, ".nef": model.CategoryImage, ".dng": model.CategoryImage,

	".mp4": model.CategoryMovie, ".mov": model.CategoryMovie, ".avi": model.CategoryMovie,
	".mkv": model.CategoryMovie, ".wmv": model.CategoryMovie, ".m4v": model.CategoryMovie,
	".flv": model.CategoryMovie, ".webm": model.CategoryMovie, ".3gp": model.CategoryMovie,

	".mp3": model.CategoryAudio, ".wav": model.CategoryAudio, ".flac": model.CategoryAudio,
	".aac": model.CategoryAudio, ".m4a": model.CategoryAudio, ".ogg": model.CategoryAudio,
	".wma": model.CategoryAudio,

	".pdf": model.CategoryDocument, ".doc": model.CategoryDocument, ".docx": model.CategoryDocument,
	".txt": model.CategoryDocument, ".xls": model.CategoryDocument, ".xlsx": model.CategoryDocument,
	".ppt": model.CategoryDocument, ".pptx": model.CategoryDocument,

	".zip": model.CategoryArchive, ".rar": model.CategoryArchive, ".7z": model.CategoryArchive,
	".tar": model.CategoryArchive, ".gz": model.CategoryArchive,
}

// Chain is the enumerator's per-scan filter: an active extension set (each
// mapped to a category) plus an optional inclusive byte-size window.
type Chain struct {
	extensions map[string]model.Category
	minSize    int64
	maxSize    int64
}

// NewChain builds a Chain seeded with the default extension→category table.
// Pass categories to restrict the active set to only those categories;
// an empty argument list activates every known extension.
func NewChain(enabled ...model.Category) *Chain {
	c := &Chain{extensions: make(map[string]model.Category, len(defaultExtensions))}
	allow := make(map[model.Category]bool, len(enabled))
	for _, cat := range enabled {
		allow[cat] = true
	}
	for ext, cat := range defaultExtensions {
		if len(allow) == 0 || allow[cat] {
			c.extensions[ext] = cat
		}
	}
	return c
}

// AddExtension registers (or overrides) the category for an extension,
// e.g. AddExtension(".heic", model.CategoryImage). The extension is
// lowercased.
func (c *Chain) AddExtension(ext string, cat model.Category) {
	c.extensions[strings.ToLower(ext)] = cat
}

// SetMinSize sets the minimum file size filter in bytes (0 disables it).
func (c *Chain) SetMinSize(n int64) { c.minSize = n }

// SetMaxSize sets the maximum file size filter in bytes (0 disables it).
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Match implements the enumerator's ordered per-candidate check (spec.md
// §4.2 step 2): extension membership first, then the size window. It
// returns the resolved category and whether the file should be emitted as
// a candidate at all.
func (c *Chain) Match(name string, size int64) (model.Category, bool) {
	cat, ok := c.extensions[Extension(name)]
	if !ok {
		return "", false
	}
	if c.minSize > 0 && size < c.minSize {
		return cat, false
	}
	if c.maxSize > 0 && size > c.maxSize {
		return cat, false
	}
	return cat, true
}

// Extension returns the lowercase extension (with leading dot) of name, or
// "" if name has none.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i:])
}
