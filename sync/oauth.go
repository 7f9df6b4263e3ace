// ABOUTME: OAuth client-credentials setup for Microsoft Graph
// ABOUTME: Builds the tenant's token source that the Graph SDK service signs requests with
package sync

import (
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

const graphDefaultScope = "https://graph.microsoft.com/.default"

// NewOAuthConfig creates the client-credentials config for the tenant's app registration.
func NewOAuthConfig(cfg *Config) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     microsoft.AzureADEndpoint(cfg.TenantID).TokenURL,
		Scopes:       []string{graphDefaultScope},
	}
}
