// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luksde

import (
	"fmt"

	"github.com/jeremyhahn/go-luksde/internal/bytesafe"
)

const mkValidationLen = 20

// Unlock attempts to transition the volume from Locked to Unlocked using
// the raw key set via SetKey if there is one, and otherwise the
// passphrase set via SetPassphrase. It reports
// (true, nil) on success and (false, nil) when a passphrase was tried
// against every active slot without a match ("StillLocked" — not an
// error, the caller may retry with a different passphrase). Any other
// outcome is a real error and the volume stays Locked.
func (v *Volume) Unlock() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != stateLocked {
		return false, ErrInvalidState
	}
	if v.header.FormatVersion != 1 {
		return false, ErrUnsupportedFormat
	}

	switch {
	case v.rawKey != nil:
		return v.unlockWithRawKeyLocked()
	case v.password != nil:
		return v.unlockWithPassphraseLocked()
	default:
		return false, fmt.Errorf("%w: no key or passphrase set", ErrInvalidState)
	}
}

func (v *Volume) unlockWithRawKeyLocked() (bool, error) {
	digest, err := deriveKey(v.rawKey, v.header.MKSalt[:], int(v.header.MKIterations), mkValidationLen, v.header.Hash)
	if err != nil {
		return false, err
	}
	defer bytesafe.Zero(digest)

	if !bytesafe.Equal(digest, v.header.MKValidationHash[:]) {
		return false, ErrInvalidKey
	}

	key := append([]byte(nil), v.rawKey...)
	if err := v.installMasterKeyLocked(key); err != nil {
		bytesafe.Zero(key)
		return false, err
	}
	return true, nil
}

func (v *Volume) unlockWithPassphraseLocked() (bool, error) {
	for i := range v.header.KeySlots {
		matched, candidate, err := v.tryKeySlotLocked(i)
		if err != nil {
			return false, err
		}
		if matched {
			if err := v.installMasterKeyLocked(candidate); err != nil {
				bytesafe.Zero(candidate)
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// tryKeySlotLocked derives the candidate master key for one slot and
// validates it. It returns the candidate (caller-owned, un-zeroized) only
// when it matched the header's validation hash.
func (v *Volume) tryKeySlotLocked(idx int) (matched bool, candidate []byte, err error) {
	slot := v.header.KeySlots[idx]
	if !slot.Active {
		return false, nil, nil
	}

	keySize := int(v.header.MasterKeySize)
	if slot.Stripes < 1 || uint64(keySize)*uint64(slot.Stripes) > maxAlloc {
		return false, nil, &SlotError{Slot: idx, Err: ErrCorruptSlot}
	}
	keyMaterialSize := keySize * int(slot.Stripes)
	if keyMaterialSize%sectorSize != 0 {
		return false, nil, &SlotError{Slot: idx, Err: fmt.Errorf("%w: key material size %d is not sector-aligned", ErrCorruptSlot, keyMaterialSize)}
	}

	userKey, err := deriveKey(v.password, slot.Salt[:], int(slot.Iterations), keySize, v.header.Hash)
	if err != nil {
		return false, nil, &SlotError{Slot: idx, Err: err}
	}
	defer bytesafe.Zero(userKey)

	keyMaterialOffset := int64(slot.KeyMaterialOffset) * sectorSize
	encrypted := make([]byte, keyMaterialSize)
	defer bytesafe.Zero(encrypted)
	if _, err := v.dev.ReadAt(encrypted, keyMaterialOffset); err != nil {
		return false, nil, &SlotError{Slot: idx, Err: fmt.Errorf("read key material: %w", err)}
	}

	transient, err := buildEncryptionContext(v.header, userKey)
	if err != nil {
		return false, nil, &SlotError{Slot: idx, Err: err}
	}

	split := make([]byte, keyMaterialSize)
	defer bytesafe.Zero(split)
	for s := 0; s*sectorSize < keyMaterialSize; s++ {
		chunk := encrypted[s*sectorSize : (s+1)*sectorSize]
		plain, err := decryptSector(transient, uint64(s), chunk)
		if err != nil {
			return false, nil, &SlotError{Slot: idx, Err: err}
		}
		copy(split[s*sectorSize:(s+1)*sectorSize], plain)
	}

	merged, err := afMerge(split, keySize, int(slot.Stripes), v.header.Hash)
	if err != nil {
		return false, nil, &SlotError{Slot: idx, Err: err}
	}

	digest, err := deriveKey(merged, v.header.MKSalt[:], int(v.header.MKIterations), mkValidationLen, v.header.Hash)
	if err != nil {
		bytesafe.Zero(merged)
		return false, nil, &SlotError{Slot: idx, Err: err}
	}
	ok := bytesafe.Equal(digest, v.header.MKValidationHash[:])
	bytesafe.Zero(digest)

	if !ok {
		bytesafe.Zero(merged)
		return false, nil, nil
	}
	return true, merged, nil
}

// installMasterKeyLocked takes ownership of key (no copy), builds the
// real encryption context and sector cache, and transitions to Unlocked.
// On success it zeroizes and clears the password/raw-key inputs, since
// they're no longer needed.
func (v *Volume) installMasterKeyLocked(key []byte) error {
	ctx, err := buildEncryptionContext(v.header, key)
	if err != nil {
		return err
	}

	payloadBase := v.header.PayloadOffset()
	payloadSize := v.deviceSize - payloadBase
	if payloadSize < 0 {
		payloadSize = 0
	}

	v.masterKey = key
	v.ctx = ctx
	v.cache = newSectorDataVector(v.dev, ctx, payloadBase, payloadSize)
	v.state = stateUnlocked

	if v.password != nil {
		bytesafe.Zero(v.password)
		v.password = nil
	}
	if v.rawKey != nil {
		bytesafe.Zero(v.rawKey)
		v.rawKey = nil
	}
	return nil
}
