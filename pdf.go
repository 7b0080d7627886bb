// pdf.go
package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// pdfChecksum returns the hex-encoded SHA-256 of the PDF content.
func pdfChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// pdfPageCount parses the PDF and returns its page count.
func pdfPageCount(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse PDF: %w", err)
	}
	return reader.NumPage(), nil
}

// pdfInfo is the metadata extracted from an uploaded PDF at ingestion time.
type pdfInfo struct {
	Checksum  string
	PageCount int
	FileSize  int64
}

// inspectPDF derives checksum, page count and size from raw PDF bytes.
func inspectPDF(data []byte) (pdfInfo, error) {
	pages, err := pdfPageCount(data)
	if err != nil {
		return pdfInfo{}, err
	}
	return pdfInfo{
		Checksum:  pdfChecksum(data),
		PageCount: pages,
		FileSize:  int64(len(data)),
	}, nil
}
