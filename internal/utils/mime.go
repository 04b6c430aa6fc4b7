// Package utils holds small file-format helpers shared by the Telegram
// transport's attachment pipeline, adapted from the teacher's
// pkg/utils/mime.go sniffing helpers.
package utils

import (
	"mime"
	"net/http"
	"os"
)

// DetectFileMimeAndExt sniffs a file on disk via its first 512 bytes,
// returning ("application/octet-stream", ".bin") on any read failure.
func DetectFileMimeAndExt(path string) (string, string) {
	mimeType := "application/octet-stream"
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		buf := make([]byte, 512)
		if n, err := f.Read(buf); err == nil && n > 0 {
			mimeType = http.DetectContentType(buf[:n])
		}
	}
	return mimeType, mimeToExt(mimeType)
}

// DetectMimeAndExt sniffs an in-memory byte slice.
func DetectMimeAndExt(data []byte) (string, string) {
	mimeType := "application/octet-stream"
	if len(data) > 0 {
		mimeType = http.DetectContentType(data)
	}
	return mimeType, mimeToExt(mimeType)
}

func mimeToExt(mimeType string) string {
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}

// IsTextLike reports whether mimeType is plain-text extractable without
// a dedicated document parser (used to decide whether an attached
// document's content can be read directly vs. needs a DocumentExtractor).
func IsTextLike(mimeType string) bool {
	switch mimeType {
	case "text/plain", "text/csv", "application/json", "text/markdown":
		return true
	}
	return len(mimeType) >= 5 && mimeType[:5] == "text/"
}
