package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/provider"
	"github.com/mailmirror/core/internal/provider/graph"
	"github.com/mailmirror/core/internal/provider/imap"
	"github.com/mailmirror/core/internal/store"
	"github.com/mailmirror/core/internal/vault"
)

// adapterFactory implements provider.Factory over both supported
// providers: IMAP (vault-decrypted app password) and Graph (vault
// token-rotated OAuth). It is the only place account credentials are
// ever in plaintext outside the vault itself.
type adapterFactory struct {
	vault    *vault.Vault
	accounts store.AccountStore
	http     *http.Client
	cfg      Config
}

var _ provider.Factory = (*adapterFactory)(nil)

// NewAdapterFactory returns the default provider.Factory: IMAP
// accounts decrypt their stored app password, Graph accounts rotate
// their refresh token and persist the new pair before first use.
func NewAdapterFactory(vlt *vault.Vault, accounts store.AccountStore, cfg Config) provider.Factory {
	return &adapterFactory{
		vault:    vlt,
		accounts: accounts,
		http:     &http.Client{Timeout: 30 * time.Second},
		cfg:      cfg,
	}
}

// NewAdapter resolves the live provider.Adapter for account, rotating
// its Graph access token or decrypting its IMAP password as needed.
// Token rotation persists immediately, before the adapter makes any
// call with it, so a crash between refresh and persist can't strand
// the account on an already-invalidated refresh token.
func (f *adapterFactory) NewAdapter(ctx context.Context, account *domain.MailAccount) (provider.Adapter, error) {
	if account.IsOAuth() {
		refreshed, err := vault.RefreshMicrosoftToken(ctx, f.http, f.cfg.MSClientID, f.cfg.MSClientSecret, account.RefreshToken)
		if err != nil {
			return nil, err
		}
		account.AccessToken = refreshed.AccessToken
		account.RefreshToken = refreshed.RefreshToken
		if err := f.accounts.UpdateAccount(ctx, account); err != nil {
			return nil, fmt.Errorf("persisting rotated token: %w", err)
		}
		return graph.NewWithFolderCache(account.AccessToken, account.FolderIDs), nil
	}

	password, err := f.vault.Decrypt(account.EncryptedPassword)
	if err != nil {
		return nil, err
	}
	return imap.New(imap.Config{
		Host:                  imapHostFor(account.Provider),
		Username:              account.Email,
		Password:              password,
		CertsDir:              f.cfg.CertsDir,
		TLSRejectUnauthorized: f.cfg.TLSRejectUnauthorized,
	}), nil
}

// imapHostFor maps a canonical provider to its IMAP host. Graph
// accounts never reach this path (they use OAuth).
func imapHostFor(p domain.Provider) string {
	switch p {
	case domain.ProviderGmail:
		return "imap.gmail.com"
	case domain.ProviderOutlook:
		return "outlook.office365.com"
	case domain.ProviderYahoo:
		return "imap.mail.yahoo.com"
	case domain.ProviderICloud:
		return "imap.mail.me.com"
	case domain.ProviderAOL:
		return "imap.aol.com"
	default:
		return ""
	}
}
