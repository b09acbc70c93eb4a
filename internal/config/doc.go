// Package config loads the relay configuration.
//
// Configuration is read from a single YAML file decoded over GetDefaultConfig,
// so any field left out of the file keeps its default. ${VAR} references in
// the file are expanded from the environment before parsing, which keeps
// client secrets out of the file itself:
//
//	oauth:
//	  issuer: https://idp.example.com/oauth2/default
//	  clientID: incidentrelay
//	  clientSecret: ${INCIDENTRELAY_CLIENT_SECRET}
//	incidents:
//	  instanceURL: https://acme.service-now.com
//
// Validate reports every problem at once as a ConfigurationErrorCollection.
package config
