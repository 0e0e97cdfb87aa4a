// Package session issues and resolves locally minted bearer credentials.
//
// A credential has the form "<public id>|<secret>". Only the sha256 of the
// secret is stored. Issue replaces every earlier credential of the user, so
// a user holds at most one live credential at a time.
//
// Lookup never treats a rejected credential as an error. It reports
// LookupFound, LookupNotFound or LookupMalformed, and returns an error only
// when the store or owner lookup fails, which lets the authenticator fall
// through to external verification.
//
// An optional Cache (MemoryCache or RedisCache) holds records by public id.
// Every deletion path evicts the affected ids and fails with ErrCacheEviction
// when it cannot. A cache fill re-reads the store after the Set so a
// concurrent supersession cannot leave the old record cached. MemoryCache is
// per process; deployments with more than one instance use RedisCache.
// Pruner removes credentials older than the configured max age on a cron
// schedule.
package session
