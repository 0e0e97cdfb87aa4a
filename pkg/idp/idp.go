package idp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/tasktrack/pkg/observability"
)

// Provider kinds
const (
	ProviderFirebase = "firebase"
	ProviderOIDC     = "oidc"
	ProviderHMAC     = "hmac"
)

// Config selects and configures the external verifier
type Config struct {
	Provider string

	// firebase
	ProjectID string

	// oidc
	IssuerURL string
	ClientID  string
	JWKSURL   string

	// hmac
	HMACSecret string
	Issuer     string
	Audience   string

	Timeout time.Duration
}

// New builds the configured verifier wrapped in NewBounded
func New(ctx context.Context, config Config, metrics *observability.Metrics) (Verifier, error) {
	client := &http.Client{Timeout: config.Timeout}

	var (
		v   Verifier
		err error
	)
	switch config.Provider {
	case ProviderFirebase:
		v, err = NewFirebaseVerifier(ctx, config.ProjectID, client)
	case ProviderOIDC:
		v, err = NewOIDCVerifier(ctx, OIDCConfig{
			IssuerURL:  config.IssuerURL,
			ClientID:   config.ClientID,
			JWKSURL:    config.JWKSURL,
			HTTPClient: client,
		})
	case ProviderHMAC:
		v, err = NewHMACVerifier(HMACConfig{
			Secret:   config.HMACSecret,
			Issuer:   config.Issuer,
			Audience: config.Audience,
		})
	default:
		return nil, fmt.Errorf("unknown identity provider %q", config.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewBounded(v, config.Timeout, metrics), nil
}
