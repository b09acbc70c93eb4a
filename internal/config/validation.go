package config

import (
	"net/url"
	"strings"

	"incidentrelay/pkg/logging"
)

// Validate checks the configuration and returns every problem found.
func (c RelayConfig) Validate() error {
	var errs ConfigurationErrorCollection

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs.Add("server.port", "must be between 1 and 65535")
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs.Add("server.tls", "certFile and keyFile are required when TLS is enabled")
	}

	if c.OAuth.ClientID == "" {
		errs.Add("oauth.clientID", "is required", "register the relay as a public PKCE client at your identity provider")
	}
	if c.OAuth.Issuer == "" && (c.OAuth.AuthURL == "" || c.OAuth.TokenURL == "") {
		errs.Add("oauth.issuer", "an issuer or explicit authURL and tokenURL are required")
	}
	urls := []struct{ field, value string }{
		{"oauth.issuer", c.OAuth.Issuer},
		{"oauth.authURL", c.OAuth.AuthURL},
		{"oauth.tokenURL", c.OAuth.TokenURL},
		{"oauth.userinfoURL", c.OAuth.UserinfoURL},
		{"oauth.redirectURL", c.OAuth.RedirectURL},
	}
	for _, u := range urls {
		if u.value != "" && !isAbsoluteURL(u.value) {
			errs.Add(u.field, "must be an absolute http(s) URL")
		}
	}

	if c.Incidents.InstanceURL == "" {
		errs.Add("incidents.instanceURL", "is required", "e.g. https://your-instance.service-now.com")
	} else if !isAbsoluteURL(c.Incidents.InstanceURL) {
		errs.Add("incidents.instanceURL", "must be an absolute http(s) URL")
	}
	if c.Incidents.PageSize < 0 || c.Incidents.MaxRecords < 0 {
		errs.Add("incidents", "pageSize and maxRecords must not be negative")
	}

	if c.Poller.Enabled && c.Poller.Interval <= 0 {
		errs.Add("poller.interval", "must be positive when polling is enabled")
	}
	if c.Session.PendingTTL <= 0 {
		errs.Add("session.pendingTTL", "must be positive", "pending logins must expire to bound memory use")
	}
	if c.Session.IdleTTL < 0 || c.Session.CleanupInterval < 0 {
		errs.Add("session", "idleTTL and cleanupInterval must not be negative")
	}
	if c.Session.RefreshTimeout < 0 {
		errs.Add("session.refreshTimeout", "must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", string(logging.FormatText), string(logging.FormatJSON):
	default:
		errs.Add("logging.format", "must be text or json")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
