package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	algorithm      = "AWS4-HMAC-SHA256"
	defaultRegion  = "us-east-1"
	defaultService = "execute-api"
)

// Credentials are the resolved AWS signing inputs.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	Service      string
}

// CredentialsFromAuthData pulls signing inputs out of a tab's auth data bag,
// running each through resolve and trimming whitespace. Region and service
// fall back to their AWS defaults.
func CredentialsFromAuthData(data map[string]string, resolve func(string) string) Credentials {
	get := func(key, fallback string) string {
		v := strings.TrimSpace(resolve(data[key]))
		if v == "" {
			return fallback
		}
		return v
	}
	return Credentials{
		AccessKey:    get("accessKey", ""),
		SecretKey:    get("secretKey", ""),
		SessionToken: get("sessionToken", ""),
		Region:       get("region", defaultRegion),
		Service:      get("service", defaultService),
	}
}

// Signer computes AWS Signature Version 4 headers. Now is injectable so tests
// can pin the clock.
type Signer struct {
	Now func() time.Time
}

// New creates a signer on the real clock.
func New() *Signer {
	return &Signer{Now: time.Now}
}

// Sign returns a copy of headers with host, x-amz-date, optionally
// x-amz-security-token, and Authorization injected. Signing never fails the
// request: missing credentials or a malformed URL return the input headers
// unchanged.
func (s *Signer) Sign(method, rawURL string, headers map[string]string, body string, creds Credentials) map[string]string {
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return headers
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return headers
	}

	now := s.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := amzDate[:8]

	// Caller-supplied case-variants of the injected headers are dropped so
	// the canonical request never depends on which variant survives.
	signed := make(map[string]string, len(headers)+3)
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "host", "x-amz-date", "x-amz-security-token", "authorization":
			continue
		}
		signed[k] = v
	}
	signed["host"] = u.Host
	signed["x-amz-date"] = amzDate
	if creds.SessionToken != "" {
		signed["x-amz-security-token"] = creds.SessionToken
	}

	// Collapse to lowercase names in sorted key order so remaining
	// case-variant pairs pick the same survivor on every signing.
	keys := make([]string, 0, len(signed))
	for k := range signed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lowered := make(map[string]string, len(signed))
	for _, k := range keys {
		lowered[strings.ToLower(k)] = strings.TrimSpace(signed[k])
	}
	names := make([]string, 0, len(lowered))
	for name := range lowered {
		names = append(names, name)
	}
	sort.Strings(names)

	var canonicalHeaders strings.Builder
	for _, name := range names {
		canonicalHeaders.WriteString(name)
		canonicalHeaders.WriteByte(':')
		canonicalHeaders.WriteString(lowered[name])
		canonicalHeaders.WriteByte('\n')
	}
	signedHeaders := strings.Join(names, ";")

	payloadHash := hexSHA256(body)

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	canonicalRequest := strings.Join([]string{
		strings.ToUpper(method),
		path,
		canonicalQuery(u),
		canonicalHeaders.String(),
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := strings.Join([]string{dateStamp, creds.Region, creds.Service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hexSHA256(canonicalRequest),
	}, "\n")

	key := signingKey(creds.SecretKey, dateStamp, creds.Region, creds.Service)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	signed["Authorization"] = algorithm +
		" Credential=" + creds.AccessKey + "/" + scope +
		", SignedHeaders=" + signedHeaders +
		", Signature=" + signature

	return signed
}

// canonicalQuery renders the query string as sorted, RFC 3986 encoded
// key=value pairs.
func canonicalQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	values := u.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			pairs = append(pairs, awsEscape(k)+"="+awsEscape(v))
		}
	}
	return strings.Join(pairs, "&")
}

// awsEscape percent-encodes per RFC 3986: only A-Z a-z 0-9 - _ . ~ survive.
func awsEscape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
		}
	}
	return b.String()
}

// signingKey derives the signature key via the 4-stage HMAC chain.
func signingKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func hexSHA256(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
