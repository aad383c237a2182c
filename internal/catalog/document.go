package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fclairamb/gallerystore/internal/apperrors"
)

// Document is the whole catalog. Entries are opaque JSON values; the
// store never looks inside them. A saved entry is re-indented on disk, so
// a load returns the same JSON values but not necessarily the same bytes.
type Document struct {
	Galleries []json.RawMessage `json:"galleries"`
	Artworks  []json.RawMessage `json:"artworks"`
	Users     []json.RawMessage `json:"users"`
}

// DefaultDocument returns the document served when no catalog exists.
func DefaultDocument() Document {
	return Document{
		Galleries: []json.RawMessage{},
		Artworks:  []json.RawMessage{},
		Users:     []json.RawMessage{},
	}
}

// Normalized returns a copy where missing collections are empty rather
// than nil, so that they serialize as [] instead of null.
func (d Document) Normalized() Document {
	if d.Galleries == nil {
		d.Galleries = []json.RawMessage{}
	}
	if d.Artworks == nil {
		d.Artworks = []json.RawMessage{}
	}
	if d.Users == nil {
		d.Users = []json.RawMessage{}
	}
	return d
}

// UnmarshalJSON decodes a document, defaulting absent or null collections.
func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*d = Document(decoded).Normalized()
	return nil
}

// documentSchema only constrains the top level; entries stay opaque.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["galleries", "artworks", "users"],
  "properties": {
    "galleries": {"type": "array"},
    "artworks": {"type": "array"},
    "users": {"type": "array"}
  }
}`

const documentSchemaURL = "https://gallerystore.local/schemas/catalog.schema.json"

var compiledDocumentSchema = mustCompileDocumentSchema()

func mustCompileDocumentSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(documentSchemaURL, strings.NewReader(documentSchema)); err != nil {
		panic(fmt.Sprintf("catalog schema load failed: %v", err))
	}
	schema, err := c.Compile(documentSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("catalog schema compile failed: %v", err))
	}
	return schema
}

// ParseDocument decodes a full catalog supplied by a client. Unlike
// loading from disk, a body that is not a complete document is rejected.
func ParseDocument(data []byte) (Document, error) {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Document{}, apperrors.InvalidRequest(fmt.Errorf("%w: %w", apperrors.ErrInvalidDocument, err))
	}
	if err := compiledDocumentSchema.Validate(value); err != nil {
		return Document{}, apperrors.InvalidRequest(fmt.Errorf("%w: %w", apperrors.ErrInvalidDocument, err))
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, apperrors.InvalidRequest(fmt.Errorf("%w: %w", apperrors.ErrInvalidDocument, err))
	}
	return doc, nil
}
