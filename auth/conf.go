package auth

import (
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
)

// Conf holds the OAuth2 client credentials of a price provider.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURL      string   `json:"auth_url"`
	Scopes       []string `json:"scopes"`
}

// Validate reports missing credentials.
func (c Conf) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("auth: client_id and client_secret are required")
	}
	if c.AuthURL == "" {
		return fmt.Errorf("auth: auth_url is required")
	}
	return nil
}

func (c Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.AuthURL,
		Scopes:       c.Scopes,
	}
}
