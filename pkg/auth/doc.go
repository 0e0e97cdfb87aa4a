// Package auth defines the authentication domain types shared by the
// verifier, provisioner, session manager and HTTP layer.
//
// # Session Credentials
//
// Credentials issued at login have the form "<public id>|<secret>". Only the
// sha256 of the secret is stored:
//
//	generator := auth.NewTokenGenerator()
//	tok, err := generator.GenerateToken()
//	// tok.Plaintext goes to the client once
//	// tok.PublicID and tok.SecretHash go to the store
//
// Any bearer containing "|" is tried against the local store before the
// identity provider:
//
//	if auth.LooksLocal(bearer) {
//		publicID, secret, ok := generator.ParseToken(bearer)
//		...
//	}
//
// # Identity
//
// VerifiedIdentity is what an identity provider vouched for. New users get
// their display name from VerifiedIdentity.ResolveDisplayName.
//
// # Errors
//
// Sentinel errors (ErrMissingCredential, ErrInvalidCredential,
// ErrVerifierUnavailable, ErrInvalidIdentity) are matched with errors.Is.
// Client input problems are reported as *ValidationError.
//
// # Related Packages
//
//   - pkg/idp: External ID token verification
//   - pkg/provision: Find-or-create of local users
//   - pkg/session: Session credential lifecycle
//   - pkg/middleware: HTTP authentication middleware
package auth
