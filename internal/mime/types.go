// Package mime is the extension-to-media-type table named as a thin,
// out-of-scope collaborator in spec.md §1: given a file extension, produce
// a media type.
package mime

import "strings"

var table = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".xml":  "application/xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
}

// Default is used when the extension is unknown or absent.
const Default = "application/octet-stream"

// TypeFor returns the media type for a file path's extension.
func TypeFor(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return Default
	}
	ext := strings.ToLower(path[i:])
	if t, ok := table[ext]; ok {
		return t
	}
	return Default
}
