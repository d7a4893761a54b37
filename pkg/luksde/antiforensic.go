// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luksde

import (
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/jeremyhahn/go-luksde/internal/bytesafe"
)

// afDiffuse overwrites buf in place with the iterated-hash diffuser: each
// h.Size()-byte block b of buf becomes H(BE32(block_index) || b),
// truncated to the block's own length for any short final block.
func afDiffuse(buf []byte, h hash.Hash) {
	digestSize := h.Size()
	out := make([]byte, 0, len(buf))
	defer bytesafe.Zero(out[:cap(out)])

	var idx [4]byte
	for off, block := 0, 0; off < len(buf); off, block = off+digestSize, block+1 {
		end := off + digestSize
		if end > len(buf) {
			end = len(buf)
		}
		binary.BigEndian.PutUint32(idx[:], uint32(block)) // #nosec G115 - bounded by key_size/digest_size, always small
		h.Reset()
		h.Write(idx[:])
		h.Write(buf[off:end])
		out = append(out, h.Sum(nil)[:end-off]...)
	}
	copy(buf, out)
}

// afMerge recovers a key_size-byte master key from an AF-split buffer of
// key_size*stripes bytes, per the LUKS anti-forensic merge algorithm.
func afMerge(split []byte, keySize, stripes int, algo HashAlgo) ([]byte, error) {
	if keySize < 1 || stripes < 1 {
		return nil, &CryptoError{Op: "af-merge", Err: fmt.Errorf("%w: keySize=%d stripes=%d", ErrCorruptSlot, keySize, stripes)}
	}
	if len(split) != keySize*stripes {
		return nil, &CryptoError{Op: "af-merge", Err: fmt.Errorf("%w: split buffer is %d bytes, want %d", ErrCorruptSlot, len(split), keySize*stripes)}
	}
	hashFunc, err := pbkdf2HashFunc(algo)
	if err != nil {
		return nil, &CryptoError{Op: "af-merge", Err: err}
	}
	h := hashFunc()

	d := make([]byte, keySize)
	for i := 0; i < stripes-1; i++ {
		block := split[i*keySize : (i+1)*keySize]
		for j := range d {
			d[j] ^= block[j]
		}
		afDiffuse(d, h)
	}

	last := split[(stripes-1)*keySize:]
	for j := range d {
		d[j] ^= last[j]
	}
	return d, nil
}
