// Package env resolves env:// secret references from the process
// environment.
package env

import (
	"context"
	"fmt"
	"os"
)

// Provider reads secrets from environment variables.
type Provider struct{}

// New returns the environment provider.
func New() *Provider { return &Provider{} }

// Get returns the value of the variable named by path. An unset variable
// is an error so callers can distinguish "absent" from "empty on purpose".
func (p *Provider) Get(_ context.Context, path string) (string, error) {
	value, ok := os.LookupEnv(path)
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set", path)
	}
	return value, nil
}

// Close implements secret.Provider.
func (p *Provider) Close() error { return nil }
