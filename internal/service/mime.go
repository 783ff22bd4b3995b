package service

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultMimeType = "application/octet-stream"

// sniffLen is how many leading bytes are offered to content detection.
const sniffLen = 3072

// DetectMimeType prefers a specific client-declared type, then content sniffing, then
// the extension table.
func DetectMimeType(declared, name string, head []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != defaultMimeType {
		return declared
	}
	byExt := GetContentBook(name)
	if len(head) > 0 {
		detected := mimetype.Detect(head)
		generic := detected.Is(defaultMimeType) || detected.Is("text/plain")
		if !generic || byExt == defaultMimeType {
			return detected.String()
		}
	}
	return byExt
}

// GetContentBook returns content type by file extension.
func GetContentBook(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".tar":
		return "application/x-tar"
	case ".gz":
		return "application/gzip"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	default:
		return defaultMimeType
	}
}
