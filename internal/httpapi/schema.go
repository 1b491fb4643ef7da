package httpapi

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const searchSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["query"],
  "properties": {
    "query": {"type": "string", "minLength": 1},
    "nodes": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "excludeNodes": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "limit": {"type": "integer", "minimum": 0},
    "minRelevance": {"type": "number", "minimum": 0, "maximum": 1},
    "tags": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

const putSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["content"],
  "properties": {
    "content": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "mimeType": {"type": "string"},
    "tags": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

// schemas holds the compiled request schemas.
type schemas struct {
	search *gojsonschema.Schema
	put    *gojsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	search, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(searchSchema))
	if err != nil {
		return nil, fmt.Errorf("search schema: %w", err)
	}
	put, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(putSchema))
	if err != nil {
		return nil, fmt.Errorf("put schema: %w", err)
	}
	return &schemas{search: search, put: put}, nil
}

// validate checks body against schema and joins every violation into one
// message.
func validate(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
