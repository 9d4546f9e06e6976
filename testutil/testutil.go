//go:build test

// Package testutil provides shared test utilities for the collector,
// reconciliation, and exporter test suites.
//
// Test data generation is deterministic: the same seed always produces the
// same hashes and keys, so failures reproduce exactly and no test depends on
// wall-clock randomness.
package testutil

import (
	"math/rand"
	"strings"
	"time"
)

// TestValidatorPubKey is the validation public key the test suites treat as
// "ours". It is a fixed, publicly known test value.
const TestValidatorPubKey = "n9KvalidatorTESTkey00000000000000000000000000000000"

// OtherValidatorPubKey is a second validator key, used to verify that foreign
// validations never feed the reconciliation path.
const OtherValidatorPubKey = "n9KotherTESTvalidator0000000000000000000000000000000"

// Epoch is the fixed base time the deterministic suites advance from.
var Epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// DeterministicHash generates a 64-character uppercase hex ledger hash from a
// seed. The same seed always produces the same hash.
func DeterministicHash(seed int) string {
	//nolint:gosec // weak PRNG is intentional: deterministic test data
	rng := rand.New(rand.NewSource(int64(seed)))
	const hexChars = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < 64; i++ {
		b.WriteByte(hexChars[rng.Intn(len(hexChars))])
	}
	return b.String()
}

// FakeClock is a hand-driven clock for engine and window tests, replacing
// time.Sleep dependencies.
type FakeClock struct {
	now time.Time
}

// NewFakeClock starts a clock at Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// Now returns the current fake time; pass the method value as the Now hook.
func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// Set jumps the clock to an absolute time.
func (c *FakeClock) Set(t time.Time) {
	c.now = t
}
