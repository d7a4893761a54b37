// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

// Package bytesafe holds the handful of primitives every secret-bearing
// buffer in go-luksde passes through on its way out of memory.
package bytesafe

import "crypto/subtle"

// Zero overwrites b with zeros. It is the one place in the module allowed
// to touch secret bytes without a surrounding defer — callers are expected
// to `defer bytesafe.Zero(buf)` immediately after allocating a buffer that
// will hold key material, password bytes, or any AF-split workspace.
//
// The volatile-looking loop (rather than a slice-clear idiom the compiler
// could prove dead right before the backing array is discarded) matches
// the zeroization primitive the spec calls out as non-elidable.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Equal reports whether a and b are equal, in time independent of their
// contents (but not their lengths). Used for every validation-hash and
// master-key comparison so a mismatching unlock attempt can't be timed.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
