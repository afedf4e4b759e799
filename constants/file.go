package constants

import "strings"

// PDFExtension is the only input extension the batch picks up.
const PDFExtension = "pdf"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDF reports whether ext (with or without a leading dot) names a PDF.
func IsPDF(ext string) bool {
	return NormalizeExt(ext) == PDFExtension
}
