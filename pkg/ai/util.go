package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// GenerateSchema reflects an inlined JSON schema for the type of value, for
// use as a structured output response format.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflector.Reflect(reflect.New(t).Interface())
}

// RepairJSON turns a malformed model answer into valid JSON text.
//
// An answer the model wrapped in a JSON string is unwrapped first. A doubled
// opening brace, which some models emit when they restart an object, is
// collapsed before the text goes through jsonrepair. The result is not
// checked for shape; callers decide whether an array or scalar is acceptable.
func RepairJSON(answer string) (string, error) {
	answer = strings.TrimSpace(answer)

	var inner string
	if err := json.Unmarshal([]byte(answer), &inner); err == nil {
		answer = strings.TrimSpace(inner)
	}
	if json.Valid([]byte(answer)) {
		return answer, nil
	}

	if rest, ok := strings.CutPrefix(answer, "{"); ok {
		if rest = strings.TrimSpace(rest); strings.HasPrefix(rest, "{") {
			answer = rest
		}
	}
	if json.Valid([]byte(answer)) {
		return answer, nil
	}

	repaired, err := jsonrepair.JSONRepair(answer)
	if err != nil {
		return "", fmt.Errorf("failed to repair answer: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return "", errors.New("repaired answer is still not valid JSON")
	}
	return repaired, nil
}
