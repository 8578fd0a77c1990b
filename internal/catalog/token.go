package catalog

import (
	"context"

	"golang.org/x/oauth2/clientcredentials"
)

// OAuthTokenSource resolves the bearer token via the standard OAuth2
// client-credentials grant against port.clientId/port.clientSecret (§6),
// caching and refreshing it transparently.
type OAuthTokenSource struct {
	cfg clientcredentials.Config
}

// NewOAuthTokenSource builds a TokenSource exchanging clientID/clientSecret
// for a bearer token at tokenURL.
func NewOAuthTokenSource(clientID, clientSecret, tokenURL string) *OAuthTokenSource {
	return &OAuthTokenSource{cfg: clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}}
}

func (s *OAuthTokenSource) Token(ctx context.Context) (string, error) {
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
