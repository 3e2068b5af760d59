// Package vault resolves vault:// secret references from HashiCorp Vault.
// Reference format: "mount/path/to/secret#field"; the field defaults to
// "value" when omitted. KV v2 data wrappers are unwrapped transparently.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	vaultapi "github.com/hashicorp/vault/api"
)

// Config holds Vault connection and authentication settings.
type Config struct {
	Address string `yaml:"address"`

	// Token authenticates directly when set; otherwise AppRole login is
	// attempted with RoleID/SecretID.
	Token    string `yaml:"token"`
	RoleID   string `yaml:"role_id"`
	SecretID string `yaml:"secret_id"`

	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// Provider reads secrets from Vault and keeps the login token renewed.
type Provider struct {
	client *vaultapi.Client
	logger *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New connects to Vault and authenticates. Token auth needs no renewal
// goroutine; AppRole logins are renewed until Close.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	apiCfg := vaultapi.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.CACert != "" || cfg.ClientCert != "" || cfg.ClientKey != "" {
		tls := &vaultapi.TLSConfig{
			CACert:     cfg.CACert,
			ClientCert: cfg.ClientCert,
			ClientKey:  cfg.ClientKey,
		}
		if err := apiCfg.ConfigureTLS(tls); err != nil {
			return nil, fmt.Errorf("vault tls: %w", err)
		}
	}

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}

	p := &Provider{
		client: client,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
		return p, nil
	}

	if cfg.RoleID == "" {
		return nil, fmt.Errorf("vault auth requires a token or an approle role_id")
	}
	login, err := client.Logical().Write("auth/approle/login", map[string]any{
		"role_id":   cfg.RoleID,
		"secret_id": cfg.SecretID,
	})
	if err != nil {
		return nil, fmt.Errorf("vault approle login: %w", err)
	}
	if login == nil || login.Auth == nil {
		return nil, fmt.Errorf("vault approle login returned no auth data")
	}
	client.SetToken(login.Auth.ClientToken)

	p.wg.Add(1)
	go p.renewToken(login.Auth)

	return p, nil
}

// Get implements secret.Provider.
func (p *Provider) Get(ctx context.Context, path string) (string, error) {
	secretPath, field, ok := strings.Cut(path, "#")
	if !ok || field == "" {
		field = "value"
	}

	secret, err := p.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("read vault secret %q: %w", secretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault secret %q not found", secretPath)
	}

	data := secret.Data
	if wrapped, ok := data["data"].(map[string]any); ok {
		data = wrapped
	}

	value, ok := data[field]
	if !ok {
		return "", fmt.Errorf("field %q not present in vault secret %q", field, secretPath)
	}
	return fmt.Sprintf("%v", value), nil
}

// Close stops token renewal.
func (p *Provider) Close() error {
	close(p.stopCh)
	p.wg.Wait()
	return nil
}

func (p *Provider) renewToken(auth *vaultapi.SecretAuth) {
	defer p.wg.Done()

	if !auth.Renewable {
		return
	}

	watcher, err := p.client.NewLifetimeWatcher(&vaultapi.LifetimeWatcherInput{
		Secret: &vaultapi.Secret{Auth: auth},
	})
	if err != nil {
		p.logger.Error("vault lifetime watcher failed", "error", err)
		return
	}

	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case err := <-watcher.DoneCh():
			if err != nil {
				p.logger.Warn("vault token renewal ended", "error", err)
			}
			return
		case renewal := <-watcher.RenewCh():
			p.logger.Debug("vault token renewed", "lease_duration", renewal.Secret.LeaseDuration)
		}
	}
}
