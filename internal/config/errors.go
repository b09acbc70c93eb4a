package config

import (
	"fmt"
	"strings"
)

// ConfigurationError describes one invalid configuration value.
type ConfigurationError struct {
	Field       string   `json:"field"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ce.Field, ce.Message)
}

// DetailedError returns the error with its suggestions, one per line.
func (ce ConfigurationError) DetailedError() string {
	parts := []string{fmt.Sprintf("Configuration error in %s: %s", ce.Field, ce.Message)}
	for _, suggestion := range ce.Suggestions {
		parts = append(parts, "  - "+suggestion)
	}
	return strings.Join(parts, "\n")
}

// ConfigurationErrorCollection holds multiple configuration errors
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

// Error implements the error interface for the collection
func (cec ConfigurationErrorCollection) Error() string {
	if len(cec.Errors) == 0 {
		return "no configuration errors"
	}

	if len(cec.Errors) == 1 {
		return cec.Errors[0].Error()
	}

	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
}

// HasErrors returns true if there are any errors in the collection
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// Add appends an error to the collection.
func (cec *ConfigurationErrorCollection) Add(field, message string, suggestions ...string) {
	cec.Errors = append(cec.Errors, ConfigurationError{Field: field, Message: message, Suggestions: suggestions})
}

// DetailedError returns every error in detailed form.
func (cec ConfigurationErrorCollection) DetailedError() string {
	parts := make([]string, 0, len(cec.Errors))
	for _, e := range cec.Errors {
		parts = append(parts, e.DetailedError())
	}
	return strings.Join(parts, "\n")
}
