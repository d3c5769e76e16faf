package dataverse

import (
	"fmt"
	"strings"
)

// Config holds the connection settings for one Dataverse environment.
// All four fields are required together; a partially filled Config is
// rejected before any network call is made.
type Config struct {
	// ServiceURL is the organization URL (e.g. "https://yourorg.crm.dynamics.com").
	// Stored without a trailing slash.
	ServiceURL string

	// ClientID is the Azure AD application (client) ID.
	ClientID string

	// ClientSecret is the Azure AD application client secret.
	ClientSecret string

	// TenantID is the Azure AD tenant ID.
	TenantID string
}

// normalized returns a copy with whitespace and the trailing slash removed
// from the service URL.
func (c Config) normalized() Config {
	c.ServiceURL = strings.TrimRight(strings.TrimSpace(c.ServiceURL), "/")
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.TenantID = strings.TrimSpace(c.TenantID)
	return c
}

// validate checks that every required connection field is present.
func (c Config) validate() error {
	var missing []string
	if c.ServiceURL == "" {
		missing = append(missing, "service URL")
	}
	if c.ClientID == "" {
		missing = append(missing, "client ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if c.TenantID == "" {
		missing = append(missing, "tenant ID")
	}
	if len(missing) > 0 {
		return ConfigurationError{Reason: fmt.Sprintf("%s must be configured", strings.Join(missing, ", "))}
	}
	return nil
}
