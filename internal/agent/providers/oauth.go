package providers

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
)

// OAuthConfig configures an OAuth2 client-credentials token source for a
// provider reached through an enterprise gateway that fronts the real
// Anthropic/OpenAI endpoint with its own credential exchange. When TokenURL
// is empty, ResolveAPIKey is a no-op and the caller's static key is used
// as-is.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// ResolveAPIKey returns the bearer token to send as a provider's API key.
// If oauth.TokenURL is set it runs the client-credentials grant and returns
// the resulting access token; otherwise it returns staticKey unchanged.
func ResolveAPIKey(ctx context.Context, oauth OAuthConfig, staticKey string) (string, error) {
	if oauth.TokenURL == "" {
		return staticKey, nil
	}
	cc := clientcredentials.Config{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		TokenURL:     oauth.TokenURL,
	}
	token, err := cc.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("oauth2 client-credentials token: %w", err)
	}
	return token.AccessToken, nil
}
