package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/facetlabs/facet/pkg/types"
)

// entityEnvelope is the expected top-level shape of an extraction
// response. A bare entity object or bare array are also accepted, since
// models frequently ignore envelope instructions.
type entityEnvelope struct {
	Entities []types.EntitySpec `json:"entities"`
}

// ExtractJSON pulls the first balanced JSON object or array out of text
// that may carry markdown fences or prose around it. Returns the input
// unchanged when no balanced JSON is found, letting the caller's
// Unmarshal produce the error.
func ExtractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return text
	}
	open := text[start]
	var closing byte = '}'
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		switch {
		case c == '\\':
			escape = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// ParseEntitySpecs parses an LLM extraction response into entity specs.
// Accepted shapes: {"entities": [...]}, a bare array, or a single entity
// object. Entries without an entity_name are dropped with a log line;
// entity type validation is left to the manager so rejections surface in
// the create response. Returns an error only when no shape parses.
func ParseEntitySpecs(response string) ([]types.EntitySpec, error) {
	raw := ExtractJSON(response)

	var envelope entityEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err == nil && len(envelope.Entities) > 0 {
		return pruneNameless(envelope.Entities), nil
	}

	var list []types.EntitySpec
	if err := json.Unmarshal([]byte(raw), &list); err == nil && len(list) > 0 {
		return pruneNameless(list), nil
	}

	var single types.EntitySpec
	if err := json.Unmarshal([]byte(raw), &single); err == nil && single.EntityName != "" {
		return []types.EntitySpec{single}, nil
	}

	return nil, fmt.Errorf("no entity JSON found in response")
}

func pruneNameless(specs []types.EntitySpec) []types.EntitySpec {
	out := specs[:0]
	for _, spec := range specs {
		if spec.EntityName == "" {
			log.Printf("llm: dropping extracted entity with empty name (type %q)", spec.EntityType)
			continue
		}
		out = append(out, spec)
	}
	return out
}
