// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luksde

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1" // #nosec G505 - SHA-1 is the on-disk ESSIV hash option, not used for signatures
	"crypto/sha256"
	"fmt"

	"github.com/aead/serpent"
	"golang.org/x/crypto/xts"

	"github.com/jeremyhahn/go-luksde/internal/bytesafe"
)

// encryptionContext is a keyed, ready-to-use cipher for one (cipher,
// chaining, iv_mode) combination. It is built fresh for the volume's real
// master key after unlock, and transiently (and discarded) once per key
// slot while unlock is trying passphrases.
type encryptionContext struct {
	cipher   Cipher
	chaining Chaining
	ivMode   IVMode

	block  cipher.Block // AES/Serpent, CBC or ECB
	xts    *xts.Cipher  // AES-XTS
	rc4Key []byte        // RC4 is re-keyed every sector; see decryptSector

	essivBlock cipher.Block // present iff ivMode == IVModeESSIV
}

// buildEncryptionContext builds the (cipher, chaining) combinations the
// encryption context actually supports. Everything else is
// ErrUnsupportedAlgorithm, matching the source's "Anything else" clause.
func buildEncryptionContext(hdr *VolumeHeader, key []byte) (*encryptionContext, error) {
	ctx := &encryptionContext{
		cipher:   hdr.Cipher,
		chaining: hdr.Chaining,
		ivMode:   hdr.IVMode,
	}

	switch {
	case hdr.Cipher == CipherRC4 && (hdr.Chaining == ChainingCBC || hdr.Chaining == ChainingECB):
		ctx.rc4Key = append([]byte(nil), key...)

	case hdr.Cipher == CipherAES && hdr.Chaining == ChainingXTS:
		if len(key)%2 != 0 {
			return nil, &CryptoError{Op: "context", Err: fmt.Errorf("%w: xts key length %d is not even", ErrUnsupportedAlgorithm, len(key))}
		}
		half := len(key) / 2
		if half != 16 && half != 32 {
			return nil, &CryptoError{Op: "context", Err: fmt.Errorf("%w: xts half-key must be 128 or 256 bits, got %d", ErrUnsupportedAlgorithm, half*8)}
		}
		x, err := xts.NewCipher(aes.NewCipher, key)
		if err != nil {
			return nil, &CryptoError{Op: "context", Err: fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)}
		}
		ctx.xts = x

	case (hdr.Cipher == CipherAES || hdr.Cipher == CipherSerpent) && (hdr.Chaining == ChainingCBC || hdr.Chaining == ChainingECB):
		bits := len(key) * 8
		if bits != 128 && bits != 192 && bits != 256 {
			return nil, &CryptoError{Op: "context", Err: fmt.Errorf("%w: key must be 128/192/256 bits, got %d", ErrUnsupportedAlgorithm, bits)}
		}
		newBlock := aes.NewCipher
		if hdr.Cipher == CipherSerpent {
			newBlock = serpent.NewCipher
		}
		block, err := newBlock(key)
		if err != nil {
			return nil, &CryptoError{Op: "context", Err: fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)}
		}
		ctx.block = block

	default:
		return nil, &CryptoError{Op: "context", Err: fmt.Errorf("%w: %s/%s", ErrUnsupportedAlgorithm, hdr.Cipher, hdr.Chaining)}
	}

	if hdr.IVMode == IVModeESSIV {
		essivKey := deriveESSIVKey(key, hdr.ESSIVHash)
		defer bytesafe.Zero(essivKey)
		block, err := aes.NewCipher(essivKey)
		if err != nil {
			return nil, &CryptoError{Op: "essiv-context", Err: fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)}
		}
		ctx.essivBlock = block
	}

	return ctx, nil
}

// deriveESSIVKey computes H(masterKey) and fits it to the 32-byte AES-256
// key ESSIV's inner cipher always uses: SHA-1's 20-byte output is
// zero-padded on the right, SHA-256's 32-byte output is used as-is.
func deriveESSIVKey(masterKey []byte, algo HashAlgo) []byte {
	out := make([]byte, 32)
	switch algo {
	case HashSHA1:
		sum := sha1.Sum(masterKey) // #nosec G401 - on-disk ESSIV hash choice, not a security decision made here
		copy(out, sum[:])
	default: // HashSHA256, validated at header-parse time
		sum := sha256.Sum256(masterKey)
		copy(out, sum[:])
	}
	return out
}
