// Package filter narrows JSON response bodies with JMESPath expressions.
package filter

import (
	"encoding/json"
	"fmt"

	"github.com/jmespath/go-jmespath"
)

// Apply evaluates a JMESPath expression against a JSON body and returns the
// matched subset pretty-printed. Non-JSON bodies and invalid expressions
// return the body unchanged alongside the error so callers can keep showing
// the full response.
func Apply(body, expression string) (string, error) {
	if expression == "" {
		return body, nil
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return body, fmt.Errorf("response is not JSON: %w", err)
	}

	result, err := jmespath.Search(expression, doc)
	if err != nil {
		return body, fmt.Errorf("invalid filter expression: %w", err)
	}
	if result == nil {
		return "null", nil
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return body, fmt.Errorf("failed to render filtered result: %w", err)
	}
	return string(out), nil
}
