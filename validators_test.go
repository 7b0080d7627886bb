package main

import (
	"errors"
	"strings"
	"testing"
)

func validCVJSON() string {
	return `{
		"personal_info": {
			"name": {"value": "Jane Doe"},
			"title": {"value": "Professor"},
			"address": {"value": "1 Main St"},
			"contact_info": {"email": {"value": "jane@example.com"}}
		},
		"education": {"items": []},
		"appointments": {"items": []},
		"honors": [],
		"publications": {"peer_reviewed_articles": [], "book_chapters": []},
		"grants": []
	}`
}

func TestValidateCVJSONAccepted(t *testing.T) {
	if err := validateCVJSON([]byte(validCVJSON())); err != nil {
		t.Errorf("Expected valid CV JSON to pass, got: %v", err)
	}
}

func TestValidateCVJSONMissingSections(t *testing.T) {
	err := validateCVJSON([]byte(`{"personal_info":{}}`))
	if err == nil {
		t.Fatal("Expected error for missing sections")
	}
	var engineErr *EngineError
	if !errors.As(err, &engineErr) || engineErr.Kind != KindValidation {
		t.Fatalf("Expected validation error, got: %v", err)
	}
	if !strings.Contains(engineErr.Message, "education") {
		t.Errorf("Expected missing section named, got: %s", engineErr.Message)
	}
}

func TestValidateCVJSONPersonalInfoShape(t *testing.T) {
	raw := strings.Replace(validCVJSON(), `"contact_info": {"email": {"value": "jane@example.com"}}`, `"contact_info": "email"`, 1)
	err := validateCVJSON([]byte(raw))
	if err == nil || !strings.Contains(err.Error(), "contact_info") {
		t.Errorf("Expected contact_info shape error, got: %v", err)
	}
}

func TestValidateCVJSONPublicationLists(t *testing.T) {
	raw := strings.Replace(validCVJSON(), `"peer_reviewed_articles": []`, `"peer_reviewed_articles": {}`, 1)
	err := validateCVJSON([]byte(raw))
	if err == nil || !strings.Contains(err.Error(), "peer_reviewed_articles") {
		t.Errorf("Expected publication list error, got: %v", err)
	}
}

func TestValidateCVJSONRejectsNonObject(t *testing.T) {
	for _, raw := range []string{``, `[]`, `"text"`, `{broken`} {
		if err := validateCVJSON([]byte(raw)); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}

func TestValidateFileType(t *testing.T) {
	for _, ok := range []string{FileTypeCV, FileTypePaper, FileTypeReport, FileTypeOther} {
		if err := validateFileType(ok); err != nil {
			t.Errorf("Expected %s accepted, got: %v", ok, err)
		}
	}
	if err := validateFileType("spreadsheet"); err == nil {
		t.Error("Expected error for unknown file type")
	}
}

func TestPDFChecksumDeterministic(t *testing.T) {
	data := []byte("%PDF-1.4 test bytes")

	first := pdfChecksum(data)
	second := pdfChecksum(data)
	if first != second {
		t.Error("Expected checksum to be deterministic")
	}
	if len(first) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(first))
	}
	if first == pdfChecksum([]byte("other")) {
		t.Error("Expected different content to hash differently")
	}
}

func TestInspectPDFRejectsGarbage(t *testing.T) {
	if _, err := inspectPDF([]byte("not a pdf at all")); err == nil {
		t.Error("Expected error for non-PDF content")
	}
}
