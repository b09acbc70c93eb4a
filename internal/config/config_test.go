package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() RelayConfig {
	c := GetDefaultConfig()
	c.OAuth.Issuer = "https://idp.example.com"
	c.OAuth.ClientID = "relay"
	c.Incidents.InstanceURL = "https://acme.service-now.com"
	c.applyDerived()
	return c
}

func TestGetDefaultConfig(t *testing.T) {
	c := GetDefaultConfig()
	assert.Equal(t, 4000, c.Server.Port)
	assert.Equal(t, 60*time.Second, c.Poller.Interval)
	assert.Equal(t, 10*time.Minute, c.Session.PendingTTL)
	assert.Equal(t, 30*time.Second, c.Session.RefreshTimeout)
	assert.Equal(t, []string{"openid", "profile", "offline_access"}, c.OAuth.Scopes)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000", c.Server.PublicURL)
	assert.Equal(t, "http://localhost:4000/callback", c.OAuth.RedirectURL)
}

func TestLoadConfig_OverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("TEST_RELAY_SECRET", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8443
  publicURL: https://relay.example.com/
  tls:
    enabled: true
    certFile: /etc/relay/tls.crt
    keyFile: /etc/relay/tls.key
oauth:
  issuer: https://idp.example.com
  clientID: relay
  clientSecret: ${TEST_RELAY_SECRET}
incidents:
  instanceURL: https://acme.service-now.com
  pageSize: 50
poller:
  interval: 15s
session:
  pendingTTL: 5m
`), 0o600))

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8443, c.Server.Port)
	assert.Equal(t, "localhost", c.Server.Host, "unset fields keep defaults")
	assert.Equal(t, "s3cret", c.OAuth.ClientSecret)
	assert.Equal(t, "https://relay.example.com", c.Server.PublicURL)
	assert.Equal(t, "https://relay.example.com/callback", c.OAuth.RedirectURL)
	assert.Equal(t, 50, c.Incidents.PageSize)
	assert.Equal(t, 1000, c.Incidents.MaxRecords)
	assert.Equal(t, 15*time.Second, c.Poller.Interval)
	assert.Equal(t, 5*time.Minute, c.Session.PendingTTL)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not, a, map"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestParse_EmptyDocument(t *testing.T) {
	c := GetDefaultConfig()
	require.NoError(t, Parse([]byte("\n"), &c))
	assert.Equal(t, 4000, c.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RelayConfig)
		field  string
	}{
		{name: "missing client id", mutate: func(c *RelayConfig) { c.OAuth.ClientID = "" }, field: "oauth.clientID"},
		{name: "no issuer or endpoints", mutate: func(c *RelayConfig) { c.OAuth.Issuer = "" }, field: "oauth.issuer"},
		{name: "relative token url", mutate: func(c *RelayConfig) { c.OAuth.TokenURL = "/token" }, field: "oauth.tokenURL"},
		{name: "missing instance", mutate: func(c *RelayConfig) { c.Incidents.InstanceURL = "" }, field: "incidents.instanceURL"},
		{name: "bad port", mutate: func(c *RelayConfig) { c.Server.Port = 70000 }, field: "server.port"},
		{name: "tls without cert", mutate: func(c *RelayConfig) { c.Server.TLS.Enabled = true }, field: "server.tls"},
		{name: "zero interval", mutate: func(c *RelayConfig) { c.Poller.Interval = 0 }, field: "poller.interval"},
		{name: "unbounded pending", mutate: func(c *RelayConfig) { c.Session.PendingTTL = 0 }, field: "session.pendingTTL"},
		{name: "negative refresh timeout", mutate: func(c *RelayConfig) { c.Session.RefreshTimeout = -time.Second }, field: "session.refreshTimeout"},
		{name: "bad log format", mutate: func(c *RelayConfig) { c.Logging.Format = "xml" }, field: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)

			err := c.Validate()
			var coll ConfigurationErrorCollection
			require.True(t, errors.As(err, &coll), "expected ConfigurationErrorCollection, got %v", err)

			var fields []string
			for _, e := range coll.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_ExplicitEndpointsWithoutIssuer(t *testing.T) {
	c := validConfig()
	c.OAuth.Issuer = ""
	c.OAuth.AuthURL = "https://idp.example.com/authorize"
	c.OAuth.TokenURL = "https://idp.example.com/token"
	assert.NoError(t, c.Validate())
}

func TestConfigurationErrorCollection_Error(t *testing.T) {
	var coll ConfigurationErrorCollection
	assert.Equal(t, "no configuration errors", coll.Error())

	coll.Add("a", "bad", "fix it")
	assert.Equal(t, "a: bad", coll.Error())
	assert.Contains(t, coll.DetailedError(), "fix it")

	coll.Add("b", "worse")
	assert.Equal(t, "2 configuration errors: a: bad (and 1 more)", coll.Error())
}
