package filter

import (
	"strings"
	"testing"
)

func TestApply_Projection(t *testing.T) {
	body := `{"users":[{"name":"ada","admin":true},{"name":"bob","admin":false}]}`

	out, err := Apply(body, "users[?admin].name")
	if err != nil {
		t.Fatalf("Expected filter to succeed, got: %v", err)
	}
	if !strings.Contains(out, "ada") || strings.Contains(out, "bob") {
		t.Errorf("Expected only admin names, got: %s", out)
	}
}

func TestApply_EmptyExpressionPassthrough(t *testing.T) {
	body := `{"a":1}`
	out, err := Apply(body, "")
	if err != nil || out != body {
		t.Errorf("Expected passthrough for empty expression, got: %q, %v", out, err)
	}
}

func TestApply_NonJSONBody(t *testing.T) {
	body := "<html>hello</html>"
	out, err := Apply(body, "a.b")
	if err == nil {
		t.Error("Expected error for non-JSON body")
	}
	if out != body {
		t.Errorf("Expected body returned unchanged, got: %q", out)
	}
}

func TestApply_InvalidExpression(t *testing.T) {
	body := `{"a":1}`
	out, err := Apply(body, "a[")
	if err == nil {
		t.Error("Expected error for invalid expression")
	}
	if out != body {
		t.Errorf("Expected body returned unchanged, got: %q", out)
	}
}

func TestApply_NoMatch(t *testing.T) {
	out, err := Apply(`{"a":1}`, "missing.path")
	if err != nil {
		t.Fatalf("Expected no-match to succeed, got: %v", err)
	}
	if out != "null" {
		t.Errorf("Expected null for no match, got: %q", out)
	}
}
