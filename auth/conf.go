package auth

import (
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
)

// Conf represents the configuration needed to authenticate against the
// factory API. Either a static Token or OAuth2 client credentials are used.
type Conf struct {
	Token        string   `json:"token"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURL      string   `json:"auth_url"`
	Scopes       []string `json:"scopes"`
}

// Validate rejects half-configured client credentials.
func (c Conf) Validate() error {
	if c.ClientID == "" && c.AuthURL == "" {
		return nil
	}
	if c.ClientID == "" || c.AuthURL == "" {
		return fmt.Errorf("client_id and auth_url must be set together")
	}
	return nil
}

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.AuthURL,
		Scopes:       c.Scopes,
	}
}
