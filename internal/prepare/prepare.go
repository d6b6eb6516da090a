package prepare

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/apicove/apicove/internal/oauth"
	"github.com/apicove/apicove/internal/resolver"
	"github.com/apicove/apicove/internal/types"
)

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// TokenFetcher obtains an OAuth token for tabs configured with a token
// endpoint. Nil disables fetching.
type TokenFetcher func(ctx context.Context, tokenURL, clientID, clientSecret, scope string) (*oauth.Token, error)

// Preparer assembles a transport-ready URL and header set from a tab.
type Preparer struct {
	Resolver   *resolver.Resolver
	FetchToken TokenFetcher
}

// New creates a preparer over the given resolver with the default token
// fetcher.
func New(r *resolver.Resolver) *Preparer {
	return &Preparer{Resolver: r, FetchToken: oauth.FetchClientCredentials}
}

// Prepared is the output of Prepare: the final URL and pre-body headers. AWS
// auth is deferred; the caller re-signs after the body is serialized.
type Prepared struct {
	URL     string
	Headers map[string]string
}

// Prepare resolves the tab's URL against the active environment, rebuilds the
// query with per-field resolution, resolves headers, and applies auth. The
// tab is not mutated.
func (p *Preparer) Prepare(ctx context.Context, tab *types.Tab) (*Prepared, error) {
	if tab.HTTP == nil {
		return nil, fmt.Errorf("not an HTTP tab")
	}
	h := tab.HTTP

	finalURL, err := p.buildURL(h)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string)
	for _, kv := range h.Headers {
		if !kv.Enabled {
			continue
		}
		key := p.Resolver.Resolve(kv.Key)
		if key == "" {
			continue
		}
		headers[key] = p.Resolver.Resolve(kv.Value)
	}

	finalURL, err = p.applyAuth(ctx, h, finalURL, headers)
	if err != nil {
		return nil, err
	}

	return &Prepared{URL: finalURL, Headers: headers}, nil
}

// buildURL resolves the raw URL, joins it with the environment base URL when
// relative, defaults the scheme, and re-resolves every query parameter.
func (p *Preparer) buildURL(h *types.HTTPState) (string, error) {
	raw := strings.TrimSpace(p.Resolver.Resolve(h.URL))

	if !schemePattern.MatchString(raw) {
		if base := p.Resolver.BaseURL(); base != "" {
			raw = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(raw, "/")
		}
	}
	if !schemePattern.MatchString(raw) {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	u.RawQuery = p.buildQuery(u.RawQuery, h.Params)

	return u.String(), nil
}

// buildQuery rebuilds the query from the raw string's pairs followed by the
// tab's params, resolving every key and value. Pair order is kept as entered;
// spaces encode as %20.
func (p *Preparer) buildQuery(rawQuery string, params []types.KV) string {
	type pair struct{ key, value string }
	var pairs []pair

	// Variables pasted straight into a raw query string get resolved
	// per key/value here.
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			key = rawKey
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			value = rawValue
		}
		key = p.Resolver.Resolve(key)
		if key == "" {
			continue
		}
		pairs = append(pairs, pair{key, p.Resolver.Resolve(value)})
	}
	for _, kv := range params {
		if !kv.Enabled {
			continue
		}
		key := p.Resolver.Resolve(kv.Key)
		if key == "" {
			continue
		}
		pairs = append(pairs, pair{key, p.Resolver.Resolve(kv.Value)})
	}

	parts := make([]string, 0, len(pairs))
	for _, pr := range pairs {
		parts = append(parts, escapeQueryComponent(pr.key)+"="+escapeQueryComponent(pr.value))
	}
	return strings.Join(parts, "&")
}

// escapeQueryComponent percent-encodes one query component, using %20 for
// spaces rather than the form-encoding +.
func escapeQueryComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// applyAuth injects auth material into headers (or the query for api-key) and
// returns the possibly-updated URL. AWS signing is deferred to the caller.
func (p *Preparer) applyAuth(ctx context.Context, h *types.HTTPState, finalURL string, headers map[string]string) (string, error) {
	data := h.Auth.Data
	get := func(key string) string { return p.Resolver.Resolve(data[key]) }

	switch h.Auth.Type {
	case types.AuthBearer:
		if token := get("token"); token != "" {
			headers["Authorization"] = "Bearer " + token
		}

	case types.AuthBasic:
		user := get("username")
		pass := get("password")
		headers["Authorization"] = "Basic " +
			base64.StdEncoding.EncodeToString([]byte(user+":"+pass))

	case types.AuthAPIKey:
		key := get("key")
		value := get("value")
		if key == "" {
			break
		}
		if data["addTo"] == "query" {
			u, err := url.Parse(finalURL)
			if err != nil {
				return "", fmt.Errorf("invalid URL for api-key injection: %w", err)
			}
			// Appended rather than Set/Encode so existing pair order
			// survives.
			pair := escapeQueryComponent(key) + "=" + escapeQueryComponent(value)
			if u.RawQuery == "" {
				u.RawQuery = pair
			} else {
				u.RawQuery += "&" + pair
			}
			finalURL = u.String()
		} else {
			headers[key] = value
		}

	case types.AuthOAuth2:
		token := get("accessToken")
		tokenType := get("tokenType")
		if token == "" && p.FetchToken != nil && data["tokenUrl"] != "" {
			fetched, err := p.FetchToken(ctx, get("tokenUrl"), get("clientId"), get("clientSecret"), get("scope"))
			if err == nil {
				token = fetched.AccessToken
				if tokenType == "" {
					tokenType = fetched.TokenType
				}
			}
			// Fetch failure degrades to an unauthenticated request.
		}
		if token != "" {
			if tokenType == "" {
				tokenType = "Bearer"
			}
			headers["Authorization"] = tokenType + " " + token
		}

	case types.AuthAWS:
		// Deferred: the signer needs the serialized body for the payload
		// hash, so the executor signs after SerializeBody.
	}

	return finalURL, nil
}

// HasHeader reports whether headers contains name, compared case-insensitively
// the way transports treat header names.
func HasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
