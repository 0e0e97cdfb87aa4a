// Package provision maps a verified external identity onto exactly one
// local user.
//
// First sight of a subject creates the user. The display name is taken from
// the client handle, then the displayName and name claims, then the email
// local part, then the subject itself. A supplied handle must be 3 to 25
// characters and unused.
//
// A returning user who supplies a different handle gets it applied under the
// configured Policy. PolicyStrict re-runs the same validation. PolicyLax
// checks length only and leaves uniqueness to the store's constraint.
//
// In-process duplicates are collapsed with singleflight; cross-process races
// are settled by the store's get-or-create.
package provision
