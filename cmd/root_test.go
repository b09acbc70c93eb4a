package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"incidentrelay/internal/client"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	SetVersion(testVersion)

	if GetVersion() != testVersion {
		t.Errorf("Expected version to be %s, got %s", testVersion, GetVersion())
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "incidentrelay" {
		t.Errorf("Expected Use to be 'incidentrelay', got %s", rootCmd.Use)
	}
	if rootCmd.Short == "" || rootCmd.Long == "" {
		t.Error("Expected Short and Long descriptions to be set")
	}
	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "incidentrelay version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	if err := testCmd.Execute(); err != nil {
		t.Fatalf("Error executing version command: %v", err)
	}

	if got := buf.String(); got != "incidentrelay version 1.0.0\n" {
		t.Errorf("Unexpected version output %q", got)
	}
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}

	for _, expected := range []string{"version", "self-update", "serve", "login", "logout", "incidents", "user", "watch"} {
		if !found[expected] {
			t.Errorf("Expected subcommand %s to be registered", expected)
		}
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic", errors.New("boom"), ExitCodeError},
		{"auth required", &AuthRequiredError{Server: "https://relay"}, ExitCodeAuthRequired},
		{"wrapped auth required", fmt.Errorf("x: %w", &AuthRequiredError{}), ExitCodeAuthRequired},
		{"relay 401", &client.APIError{StatusCode: 401}, ExitCodeAuthRequired},
		{"relay 500", &client.APIError{StatusCode: 500}, ExitCodeError},
		{"auth failed", &AuthFailedError{Reason: errors.New("timeout")}, ExitCodeAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getExitCode(tt.err); got != tt.want {
				t.Errorf("getExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAuthErrorMessages(t *testing.T) {
	err := &AuthRequiredError{Server: "https://relay.example.com"}
	if !strings.Contains(err.Error(), "incidentrelay login") {
		t.Errorf("Expected hint to run login, got %q", err.Error())
	}

	reason := errors.New("timed out")
	failed := &AuthFailedError{Reason: reason}
	if !errors.Is(failed, reason) {
		t.Error("Expected AuthFailedError to unwrap to its reason")
	}
}
