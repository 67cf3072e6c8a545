package auth

import (
	"time"

	"storyboard/internal/models"
	"storyboard/internal/repository"
)

// LockoutPolicy decides when repeated login failures lock an account.
// It performs no I/O. Stores apply it through repository.LockoutRule.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// LockoutState is the failure counter and lock deadline after a login outcome
type LockoutState = repository.FailedLoginResult

// IsLocked reports whether the account is locked at now. A lock lapses on its own.
func (p LockoutPolicy) IsLocked(user *models.User, now time.Time) bool {
	return user.LockedUntil != nil && now.Before(*user.LockedUntil)
}

// OnFailure returns the state after one more failure. The counter survives an
// expired lock, so the first failure after expiry locks again.
func (p LockoutPolicy) OnFailure(user *models.User, now time.Time) LockoutState {
	state := LockoutState{
		FailedCount: user.FailedLoginCount + 1,
		LockedUntil: user.LockedUntil,
	}
	if state.FailedCount >= p.Threshold {
		until := now.Add(p.Duration)
		state.LockedUntil = &until
	}
	return state
}

// OnSuccess returns the cleared state
func (p LockoutPolicy) OnSuccess() LockoutState {
	return LockoutState{}
}

// Limits returns the threshold and lock duration
func (p LockoutPolicy) Limits() (int, time.Duration) {
	return p.Threshold, p.Duration
}
