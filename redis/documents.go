package redis

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
)

func DecodeDocument(raw []byte, doc interface{}) error {
	if err := json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// MergeUpdate decodes raw into doc, runs update and applies the difference update
// made to doc onto raw as a JSON merge patch. Keys of raw that doc does not declare
// are kept untouched. A field update sets to null is removed from the document.
func MergeUpdate(raw []byte, doc interface{}, update func()) ([]byte, error) {
	if err := DecodeDocument(raw, doc); err != nil {
		return nil, err
	}
	before, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	update()
	after, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(before, after)
	if err != nil {
		return nil, fmt.Errorf("create merge patch: %w", err)
	}
	return jsonpatch.MergePatch(raw, patch)
}

// Project keeps only the keys of raw that doc declares.
func Project(raw []byte, doc interface{}) ([]byte, error) {
	if err := DecodeDocument(raw, doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
