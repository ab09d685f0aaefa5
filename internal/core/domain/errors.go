package domain

import "errors"

// ErrSuffixConflict is returned by PendingTxRepository.Insert when the
// unique constraint on (principal, env, unique_suffix) is violated by
// a concurrent insert. The invoice service retries suffix allocation
// on this error rather than treating it as a hard failure.
var ErrSuffixConflict = errors.New("domain: unique suffix already claimed")

// ErrCredentialsNotFound is returned by CredentialsRepository.LookupByHash
// when no merchant owns the given API key fingerprint.
var ErrCredentialsNotFound = errors.New("domain: credentials not found")
