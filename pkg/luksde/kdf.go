// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luksde

import (
	"crypto/sha1" // #nosec G505 - SHA-1 is part of the LUKS1 on-disk format, required for HMAC/PBKDF2 compatibility
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2HashFunc resolves the RFC 2898 hash function for a header-named
// hash algorithm. RIPEMD160 parses in the header but PBKDF2 (and the AF
// diffuser) never accept it.
func pbkdf2HashFunc(algo HashAlgo) (func() hash.Hash, error) {
	switch algo {
	case HashSHA1:
		return sha1.New, nil
	case HashSHA224:
		return sha256.New224, nil
	case HashSHA256:
		return sha256.New, nil
	case HashSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: pbkdf2 hash %s", ErrUnsupportedAlgorithm, algo)
	}
}

// deriveKey runs PBKDF2-HMAC(password, salt, iterations, dkLen) over the
// header's configured hash. Used for slot-key derivation, master-key
// validation, and raw-key validation.
func deriveKey(password, salt []byte, iterations int, dkLen int, algo HashAlgo) ([]byte, error) {
	if iterations < 1 {
		return nil, &CryptoError{Op: "pbkdf2", Err: fmt.Errorf("%w: iterations must be >= 1", ErrCorruptHeader)}
	}
	h, err := pbkdf2HashFunc(algo)
	if err != nil {
		return nil, &CryptoError{Op: "pbkdf2", Err: err}
	}
	return pbkdf2.Key(password, salt, iterations, dkLen, h), nil
}
