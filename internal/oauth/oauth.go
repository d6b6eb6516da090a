// Package oauth fetches OAuth 2.0 tokens for tabs whose auth data carries a
// token endpoint instead of a literal access token.
package oauth

import (
	"context"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Token is a fetched access token with its type.
type Token struct {
	AccessToken string
	TokenType   string
}

// FetchClientCredentials performs a client-credentials grant against tokenURL.
// Scope is optional and space-separated.
func FetchClientCredentials(ctx context.Context, tokenURL, clientID, clientSecret, scope string) (*Token, error) {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	if scope != "" {
		cfg.Scopes = strings.Fields(scope)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	tok, err := cfg.Token(ctx)
	if err != nil {
		return nil, err
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &Token{AccessToken: tok.AccessToken, TokenType: tokenType}, nil
}
