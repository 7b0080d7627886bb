// fields.go
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
)

// errPathNotFound reports a dotted field path that does not resolve inside an
// annotation's content tree.
var errPathNotFound = errors.New("field path not found")

// jsonMember is one key/value pair of a JSON object with the value kept raw,
// so nested content survives round trips byte for byte and key order is ours
// to control.
type jsonMember struct {
	Key string
	Raw json.RawMessage
}

// decodeObjectMembers returns the top-level members of a JSON object in their
// original order. The second return is false when raw is not a JSON object.
func decodeObjectMembers(raw []byte) ([]jsonMember, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, false
	}

	var members []jsonMember
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		members = append(members, jsonMember{Key: key, Raw: value})
	}
	if _, err := dec.Token(); err != nil { // consume closing brace
		return nil, false
	}
	return members, true
}

// encodeObjectMembers rebuilds a JSON object from ordered members.
func encodeObjectMembers(members []jsonMember) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(m.Key)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(compactRaw(m.Raw))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// compactRaw strips insignificant whitespace so canonicalized output is
// stable regardless of how the client formatted the upload.
func compactRaw(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// orderContent canonicalizes the top-level key order of a JSON object:
// recognized keys first in the configured order, then the remaining keys in
// their original relative order. Non-object content is returned unchanged.
// Idempotent, applied before every persist of annotation content.
func orderContent(raw []byte, order []string) []byte {
	members, ok := decodeObjectMembers(raw)
	if !ok {
		return raw
	}

	recognized := make(map[string]bool, len(order))
	for _, name := range order {
		recognized[name] = true
	}

	ordered := make([]jsonMember, 0, len(members))
	for _, name := range order {
		for _, m := range members {
			if m.Key == name {
				ordered = append(ordered, m)
				break
			}
		}
	}
	for _, m := range members {
		if !recognized[m.Key] {
			ordered = append(ordered, m)
		}
	}
	return encodeObjectMembers(ordered)
}

// setFieldVerified descends the dotted path through the raw content tree and
// sets the verified flag on the addressed container. Every path segment must
// resolve to an existing object member or errPathNotFound is returned and the
// content is left untouched. When the addressed member is an object holding a
// "value" member the flag is set on it; otherwise resolution still succeeds
// but nothing changes, matching the extraction pipeline's convention.
func setFieldVerified(raw []byte, parts []string, verified bool) ([]byte, error) {
	members, ok := decodeObjectMembers(raw)
	if !ok {
		return nil, errPathNotFound
	}

	for i, m := range members {
		if m.Key != parts[0] {
			continue
		}
		if len(parts) == 1 {
			tagged, changed := tagValueContainer(m.Raw, verified)
			if !changed {
				return raw, nil
			}
			members[i].Raw = tagged
			return encodeObjectMembers(members), nil
		}
		child, err := setFieldVerified(m.Raw, parts[1:], verified)
		if err != nil {
			return nil, err
		}
		members[i].Raw = child
		return encodeObjectMembers(members), nil
	}
	return nil, errPathNotFound
}

// tagValueContainer sets or replaces a "verified" member on an object that
// carries a "value" member. Returns false when the raw value is not such a
// container.
func tagValueContainer(raw json.RawMessage, verified bool) (json.RawMessage, bool) {
	members, ok := decodeObjectMembers(raw)
	if !ok {
		return raw, false
	}

	hasValue := false
	for _, m := range members {
		if m.Key == "value" {
			hasValue = true
			break
		}
	}
	if !hasValue {
		return raw, false
	}

	flag, _ := json.Marshal(verified)
	for i, m := range members {
		if m.Key == "verified" {
			members[i].Raw = flag
			return encodeObjectMembers(members), true
		}
	}
	members = append(members, jsonMember{Key: "verified", Raw: flag})
	return encodeObjectMembers(members), true
}

// splitFieldPath splits a dotted field path into its segments.
func splitFieldPath(path string) []string {
	return strings.Split(path, ".")
}

// countTotalFields counts the reviewable fields of a decoded JSON value.
// Every object key counts once (the marker suffix never creates a second
// field); array elements count only when they are strings. Non-string
// scalars are not fields.
func countTotalFields(v interface{}) int {
	count := 0
	switch value := v.(type) {
	case map[string]interface{}:
		for _, child := range value {
			count++
			switch child.(type) {
			case map[string]interface{}, []interface{}:
				count += countTotalFields(child)
			}
		}
	case []interface{}:
		for _, item := range value {
			switch item.(type) {
			case string:
				count++
			case map[string]interface{}, []interface{}:
				count += countTotalFields(item)
			}
		}
	}
	return count
}

// countVerifiedFields counts fields carrying the marker suffix: object keys
// ending in the marker, and string array elements ending in the marker.
// String values of object members never count, only their keys do.
func countVerifiedFields(v interface{}, marker string) int {
	count := 0
	switch value := v.(type) {
	case map[string]interface{}:
		for key, child := range value {
			if strings.HasSuffix(key, marker) {
				count++
			}
			switch child.(type) {
			case map[string]interface{}, []interface{}:
				count += countVerifiedFields(child, marker)
			}
		}
	case []interface{}:
		for _, item := range value {
			switch element := item.(type) {
			case string:
				if strings.HasSuffix(element, marker) {
					count++
				}
			case map[string]interface{}, []interface{}:
				count += countVerifiedFields(element, marker)
			}
		}
	}
	return count
}

// ProgressStats is the verification progress of one annotation's content.
type ProgressStats struct {
	TotalFields    int     `json:"total_fields"`
	VerifiedFields int     `json:"verified_fields"`
	Progress       float64 `json:"progress"`
}

// computeProgress counts fields in raw annotation content and derives the
// completion percentage, rounded to two decimal places.
func computeProgress(raw []byte, marker string) (ProgressStats, error) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ProgressStats{}, err
	}

	stats := ProgressStats{
		TotalFields:    countTotalFields(decoded),
		VerifiedFields: countVerifiedFields(decoded, marker),
	}
	if stats.TotalFields > 0 {
		percent := float64(stats.VerifiedFields) / float64(stats.TotalFields) * 100
		stats.Progress = math.Round(percent*100) / 100
	}
	return stats, nil
}
