// Package repository defines the storage contracts of the auth subsystem.
//
// Every method takes a context. Implementations must express the
// check-then-act steps named on each interface as a single conditional
// statement (or an equivalent serialised section) so concurrent callers
// presenting the same token or failing against the same account are
// linearised by storage, not by in-process locks in the callers.
package repository

import "context"

// Transactor runs fn inside a storage transaction. Repository calls made with
// the ctx passed to fn join the transaction. Nested calls reuse the outer one.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles the repositories the auth services depend on.
type Store struct {
	Tx                 Transactor
	Users              UserRepository
	LoginAttempts      LoginAttemptRepository
	RefreshTokens      RefreshTokenRepository
	EmailVerifications EmailVerificationRepository
	PasswordResets     PasswordResetRepository
}
