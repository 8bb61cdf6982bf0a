package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
	"github.com/OFFIS-RIT/newsgraph/pkg/common"
)

// SanitizeOutput removes a surrounding markdown code fence from a model
// answer. Only a leading "```json" or "```" and a trailing "```" are stripped;
// everything in between is left alone.
func SanitizeOutput(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseGraph accepts any sanitized answer that is a JSON object and returns
// it as the payload to store. With repair enabled, text that is not valid
// JSON gets a second chance through ai.RepairJSON and the repaired text
// becomes the payload.
func ParseGraph(clean string, repair bool) (*common.Graph, string, error) {
	payload := clean
	if !json.Valid([]byte(payload)) {
		if !repair {
			var v any
			return nil, "", fmt.Errorf("%w: %w", ErrBadExtraction, json.Unmarshal([]byte(payload), &v))
		}
		repaired, err := ai.RepairJSON(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrBadExtraction, err)
		}
		payload = repaired
	}

	g, err := DecodeGraph(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrBadExtraction, err)
	}
	return g, payload, nil
}

// DecodeGraph reads a JSON object into a Graph. Values whose type differs
// from the Graph fields are left empty instead of failing, since the payload
// itself is stored and served untouched.
func DecodeGraph(payload string) (*common.Graph, error) {
	data := []byte(strings.TrimSpace(payload))
	if !json.Valid(data) {
		return nil, errors.New("answer is not valid JSON")
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, errors.New("answer is not a JSON object")
	}

	var (
		g       common.Graph
		typeErr *json.UnmarshalTypeError
	)
	if err := json.Unmarshal(data, &g); err != nil && !errors.As(err, &typeErr) {
		return nil, err
	}
	return &g, nil
}
