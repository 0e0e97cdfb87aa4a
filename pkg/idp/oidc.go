package idp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/platinummonkey/tasktrack/pkg/auth"
)

const (
	firebaseIssuerPrefix = "https://securetoken.google.com/"
	firebaseJWKSURL      = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

// OIDCConfig describes an OpenID Connect token issuer
type OIDCConfig struct {
	IssuerURL string
	// ClientID is the expected audience
	ClientID string
	// JWKSURL skips discovery when set
	JWKSURL string
	// HTTPClient is used for discovery and key fetches
	HTTPClient *http.Client
}

// OIDCVerifier checks RS256/ES256 ID tokens against an issuer's published keys
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

var _ Verifier = (*OIDCVerifier)(nil)

// NewOIDCVerifier builds a verifier from discovery, or from JWKSURL when set.
// ctx must outlive the verifier; remote key refreshes run on it.
func NewOIDCVerifier(ctx context.Context, config OIDCConfig) (*OIDCVerifier, error) {
	if config.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}

	if config.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, config.HTTPClient)
	}

	verifierConfig := &oidc.Config{ClientID: config.ClientID}

	if config.JWKSURL != "" {
		keySet := oidc.NewRemoteKeySet(ctx, config.JWKSURL)
		return NewKeySetVerifier(config.IssuerURL, keySet, verifierConfig), nil
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(verifierConfig)}, nil
}

// NewFirebaseVerifier verifies Firebase Authentication ID tokens for projectID
func NewFirebaseVerifier(ctx context.Context, projectID string, client *http.Client) (*OIDCVerifier, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firebase project ID is required")
	}
	return NewOIDCVerifier(ctx, OIDCConfig{
		IssuerURL:  firebaseIssuerPrefix + projectID,
		ClientID:   projectID,
		JWKSURL:    firebaseJWKSURL,
		HTTPClient: client,
	})
}

// NewKeySetVerifier verifies tokens from issuer against an explicit key set
func NewKeySetVerifier(issuer string, keySet oidc.KeySet, config *oidc.Config) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, config)}
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*auth.VerifiedIdentity, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("failed to verify ID token: %w", err))
	}

	var claims identityClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", auth.ErrInvalidCredential, err)
	}

	return newIdentity(idToken.Subject, claims)
}
