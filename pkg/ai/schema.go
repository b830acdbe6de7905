package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const sentenceListSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["sentences"],
  "properties": {
    "sentences": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func sentenceSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("sentences.schema.json", strings.NewReader(sentenceListSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("sentences.schema.json")
	})
	return compiledSchema, schemaErr
}

// ParseSentences strips code fences from a model answer, validates it against the
// sentence list schema and returns at most limit trimmed sentences.
func ParseSentences(content string, limit int) ([]string, error) {
	content = stripCodeFence(content)

	var raw interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parse sentence json: %w", err)
	}

	schema, err := sentenceSchema()
	if err != nil {
		return nil, fmt.Errorf("compile sentence schema: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("sentence json does not match schema: %w", err)
	}

	var payload struct {
		Sentences []string `json:"sentences"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("decode sentences: %w", err)
	}

	sentences := make([]string, 0, len(payload.Sentences))
	for _, s := range payload.Sentences {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if limit > 0 && len(sentences) > limit {
		sentences = sentences[:limit]
	}

	return sentences, nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
