// validators.go
package main

import (
	"encoding/json"
	"strings"
)

// requiredCVSections are the top-level sections every uploaded CV JSON must
// contain.
var requiredCVSections = []string{
	"personal_info",
	"education",
	"appointments",
	"honors",
	"publications",
	"grants",
}

// requiredPersonalFields are the members personal_info must carry.
var requiredPersonalFields = []string{"name", "title", "address", "contact_info"}

// validateCVJSON checks the shape of an uploaded CV document: required
// top-level sections present, sections typed as objects, publication lists
// typed as arrays. Returns a validation engine error describing the first
// problem found.
func validateCVJSON(raw []byte) error {
	if len(raw) == 0 {
		return ValidationError("JSON content must not be empty")
	}

	var content map[string]interface{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return ValidationError("JSON content must be an object")
	}

	var missing []string
	for _, section := range requiredCVSections {
		if _, ok := content[section]; !ok {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		return ValidationError("missing required sections: %s", strings.Join(missing, ", "))
	}

	personal, ok := content["personal_info"].(map[string]interface{})
	if !ok {
		return ValidationError("personal_info must be an object")
	}
	var missingPersonal []string
	for _, field := range requiredPersonalFields {
		if _, ok := personal[field]; !ok {
			missingPersonal = append(missingPersonal, field)
		}
	}
	if len(missingPersonal) > 0 {
		return ValidationError("personal_info is missing: %s", strings.Join(missingPersonal, ", "))
	}
	if _, ok := personal["contact_info"].(map[string]interface{}); !ok {
		return ValidationError("contact_info must be an object")
	}

	for _, section := range []string{"education", "appointments", "publications"} {
		if _, ok := content[section].(map[string]interface{}); !ok {
			return ValidationError("%s must be an object", section)
		}
	}

	publications := content["publications"].(map[string]interface{})
	for _, list := range []string{"peer_reviewed_articles", "book_chapters"} {
		if value, present := publications[list]; present {
			if _, ok := value.([]interface{}); !ok {
				return ValidationError("%s must be an array", list)
			}
		}
	}

	return nil
}

// validateFileType checks the uploaded file type against the accepted set.
func validateFileType(fileType string) error {
	switch fileType {
	case FileTypeCV, FileTypePaper, FileTypeReport, FileTypeOther:
		return nil
	default:
		return ValidationError("unknown file type %q", fileType)
	}
}
