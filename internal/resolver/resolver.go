package resolver

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/apicove/apicove/internal/types"
)

var (
	// Variable placeholder pattern: {{varName}}
	varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

	// The same placeholder after URL encoding: %7B%7BvarName%7D%7D
	encodedVarPattern = regexp.MustCompile(`(?i)%7B%7B(.*?)%7D%7D`)
)

// Scope is the layered variable lookup: active-environment variables win over
// workspace-global variables.
type Scope struct {
	ActiveEnvironment *types.Environment
	GlobalVariables   map[string]string
}

// Resolver substitutes {{name}} placeholders against a Scope.
type Resolver struct {
	scope Scope
}

// New creates a resolver over the given scope.
func New(scope Scope) *Resolver {
	return &Resolver{scope: scope}
}

// Resolve replaces {{name}} and %7B%7Bname%7D%7D placeholders in text.
// Unknown variables are left in place verbatim, so resolution is idempotent
// on a miss. Percent-encoded placeholders substitute the percent-encoded
// value, keeping already-encoded query strings valid.
func (r *Resolver) Resolve(text string) string {
	if text == "" {
		return text
	}

	resolved := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := r.lookup(name); ok {
			return value
		}
		return match
	})

	resolved = encodedVarPattern.ReplaceAllStringFunc(resolved, func(match string) string {
		inner := match[6 : len(match)-6]
		if unescaped, err := url.QueryUnescape(inner); err == nil {
			inner = unescaped
		}
		name := strings.TrimSpace(inner)
		if value, ok := r.lookup(name); ok {
			return encodeComponent(value)
		}
		return match
	})

	return resolved
}

// BaseURL returns the active environment's base URL run through the resolver,
// or an empty string when no environment is active.
func (r *Resolver) BaseURL() string {
	if r.scope.ActiveEnvironment == nil {
		return ""
	}
	return r.Resolve(r.scope.ActiveEnvironment.BaseURL)
}

// lookup checks the active environment first, then the globals.
func (r *Resolver) lookup(name string) (string, bool) {
	if env := r.scope.ActiveEnvironment; env != nil {
		if value, ok := env.Variables[name]; ok {
			return value, true
		}
	}
	if value, ok := r.scope.GlobalVariables[name]; ok {
		return value, true
	}
	return "", false
}

// encodeComponent percent-encodes a value the way encodeURIComponent does:
// spaces become %20, not +.
func encodeComponent(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// ExtractVariableNames returns the unique variable names referenced in input,
// without the surrounding braces.
func ExtractVariableNames(input string) []string {
	matches := varPattern.FindAllStringSubmatch(input, -1)
	seen := make(map[string]bool)
	var names []string
	for _, match := range matches {
		if len(match) > 1 {
			name := strings.TrimSpace(match[1])
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
