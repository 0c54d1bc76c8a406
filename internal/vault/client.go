// Package vault loads messaging credentials from a HashiCorp Vault KV-v2
// secrets engine, so the Telegram bot token never has to live in config
// files or the environment.
package vault

import (
	"context"
	"fmt"

	"chartink-scanner-bot/config"

	"github.com/hashicorp/vault/api"
)

// TelegramCredentials is the secret payload stored in Vault
type TelegramCredentials struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// GetTelegramCredentials reads the Telegram bot token and chat id from the
// configured KV-v2 secret path.
func (c *Client) GetTelegramCredentials(ctx context.Context) (*TelegramCredentials, error) {
	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read telegram credentials from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("telegram credentials not found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", path)
	}

	creds := &TelegramCredentials{
		BotToken: getString(data, "bot_token"),
		ChatID:   getString(data, "chat_id"),
	}
	if creds.BotToken == "" || creds.ChatID == "" {
		return nil, fmt.Errorf("telegram secret at %s missing bot_token or chat_id", path)
	}
	return creds, nil
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
