// Package idp verifies ID tokens issued by an external identity provider.
//
// Three verifiers are available:
//
//   - Firebase Authentication (NewFirebaseVerifier), keys from Google's
//     securetoken JWKS endpoint
//   - any OpenID Connect issuer (NewOIDCVerifier), by discovery or explicit JWKS URL
//   - shared-secret HS256 tokens (NewHMACVerifier) for emulators and development
//
// New selects one from Config and wraps it in Bounded, which applies the
// verification timeout and records tasktrack_external_verify_duration_seconds.
// A timeout is reported as auth.ErrVerifierUnavailable. Every other
// rejection is auth.ErrInvalidCredential, and a valid token without a
// subject is auth.ErrInvalidIdentity.
package idp
