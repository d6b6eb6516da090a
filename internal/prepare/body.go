package prepare

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"golang.org/x/sync/errgroup"

	"github.com/apicove/apicove/internal/types"
)

// SerializedBody is the transport-ready body: either a string content or a
// structured multipart form, plus the default content type for the body type
// ("" when no default applies).
type SerializedBody struct {
	Content     string
	FormData    []types.FormPart
	ContentType string
}

// SerializeBody renders the tab's body per its declared type. Raw string
// bodies are run through the resolver; multipart file parts are read
// concurrently and jointly awaited. Malformed GraphQL variables JSON is a
// fatal error for the send.
func (p *Preparer) SerializeBody(ctx context.Context, tab *types.Tab) (*SerializedBody, error) {
	if tab.HTTP == nil {
		return nil, fmt.Errorf("not an HTTP tab")
	}
	body := tab.HTTP.Body

	switch body.Type {
	case types.BodyNone, "":
		return &SerializedBody{}, nil

	case types.BodyJSON:
		return &SerializedBody{
			Content:     p.Resolver.Resolve(body.Raw),
			ContentType: "application/json",
		}, nil

	case types.BodyXML:
		return &SerializedBody{
			Content:     p.Resolver.Resolve(body.Raw),
			ContentType: "application/xml",
		}, nil

	case types.BodyText:
		return &SerializedBody{
			Content:     p.Resolver.Resolve(body.Raw),
			ContentType: "text/plain",
		}, nil

	case types.BodyURLEncoded:
		values := url.Values{}
		for _, kv := range body.URLEncoded {
			if !kv.Enabled {
				continue
			}
			key := p.Resolver.Resolve(kv.Key)
			if key == "" {
				continue
			}
			values.Add(key, p.Resolver.Resolve(kv.Value))
		}
		return &SerializedBody{
			Content:     values.Encode(),
			ContentType: "application/x-www-form-urlencoded",
		}, nil

	case types.BodyBinary:
		if body.BinaryPath == "" {
			return &SerializedBody{}, nil
		}
		content, err := os.ReadFile(body.BinaryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read binary body: %w", err)
		}
		return &SerializedBody{
			Content:     base64.StdEncoding.EncodeToString(content),
			ContentType: "application/octet-stream",
		}, nil

	case types.BodyGraphQL:
		return p.serializeGraphQL(body.GraphQL)

	case types.BodyFormData:
		return p.serializeForm(ctx, body.Form)

	default:
		// Unknown body types pass the raw string through untouched.
		return &SerializedBody{Content: body.Raw}, nil
	}
}

// serializeGraphQL builds the {query, variables} envelope. Variables accept
// lenient JSON (comments, trailing commas) but anything unparseable fails the
// send.
func (p *Preparer) serializeGraphQL(gql types.GraphQLBody) (*SerializedBody, error) {
	payload := struct {
		Query     string          `json:"query"`
		Variables json.RawMessage `json:"variables,omitempty"`
	}{
		Query: p.Resolver.Resolve(gql.Query),
	}

	if raw := p.Resolver.Resolve(gql.Variables); raw != "" {
		cleaned := jsonc.ToJSON([]byte(raw))
		var vars json.RawMessage
		if err := json.Unmarshal(cleaned, &vars); err != nil {
			return nil, fmt.Errorf("invalid GraphQL variables JSON: %w", err)
		}
		payload.Variables = vars
	}

	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL body: %w", err)
	}
	return &SerializedBody{
		Content:     string(content),
		ContentType: "application/json",
	}, nil
}

// serializeForm resolves each field and reads file-typed fields to base64.
// File reads run concurrently and are all awaited before the send.
func (p *Preparer) serializeForm(ctx context.Context, fields []types.FormField) (*SerializedBody, error) {
	var enabled []types.FormField
	for _, f := range fields {
		if f.Enabled {
			enabled = append(enabled, f)
		}
	}

	parts := make([]types.FormPart, len(enabled))
	g, _ := errgroup.WithContext(ctx)
	for i, field := range enabled {
		g.Go(func() error {
			part := types.FormPart{
				Key:    p.Resolver.Resolve(field.Key),
				IsFile: field.IsFile,
			}
			if field.IsFile {
				content, err := os.ReadFile(field.FilePath)
				if err != nil {
					return fmt.Errorf("failed to read form file %q: %w", field.FilePath, err)
				}
				part.FileName = filepath.Base(field.FilePath)
				part.ContentBase64 = base64.StdEncoding.EncodeToString(content)
			} else {
				part.Value = p.Resolver.Resolve(field.Value)
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &SerializedBody{FormData: parts}, nil
}
