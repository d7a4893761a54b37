// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

// Package luksde provides read-only access to a LUKS v1 encrypted block
// container: header parsing, passphrase/raw-key unlock, and a seekable
// byte-stream view over the decrypted payload.
package luksde

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jeremyhahn/go-luksde/internal/blockdev"
	"github.com/jeremyhahn/go-luksde/internal/bytesafe"
)

// BackingDevice is any byte-addressable readable blob with a known size.
// No seek assumption is made beyond what ReadAt implies.
type BackingDevice interface {
	io.ReaderAt
	Size() (int64, error)
}

type volumeState int

const (
	stateClosed volumeState = iota
	stateLocked
	stateUnlocked
)

// Volume is the seekable byte-stream facade over an encrypted payload. It
// owns everything derived from the backing device: the header, the
// master key, the encryption context, the sector cache, and (if opened
// via OpenFile) the backing device handle itself.
type Volume struct {
	mu sync.RWMutex

	dev     BackingDevice
	ownsDev bool

	header     *VolumeHeader
	deviceSize int64
	state      volumeState

	password []byte
	rawKey   []byte

	masterKey []byte
	ctx       *encryptionContext
	cache     *sectorDataVector

	offset  int64
	aborted atomic.Bool
}

// Open parses the header of an already-open backing device. The caller
// keeps ownership of dev; Close will not close it.
func Open(dev BackingDevice) (*Volume, error) {
	return openVolume(dev, false)
}

// OpenFile opens path as the backing device. The Volume owns the
// resulting handle; Close closes it.
func OpenFile(path string) (*Volume, error) {
	f, err := blockdev.Open(path)
	if err != nil {
		return nil, err
	}
	v, err := openVolume(f, true)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return v, nil
}

func openVolume(dev BackingDevice, owns bool) (*Volume, error) {
	hdr, err := ReadHeader(dev)
	if err != nil {
		return nil, err
	}
	size, err := dev.Size()
	if err != nil {
		return nil, fmt.Errorf("backing device size: %w", err)
	}
	return &Volume{
		dev:        dev,
		ownsDev:    owns,
		header:     hdr,
		deviceSize: size,
		state:      stateLocked,
	}, nil
}

// SetKey sets a raw master key to try on the next Unlock. Length must be
// 16, 32, or 64 bytes.
func (v *Volume) SetKey(key []byte) error {
	if len(key) != 16 && len(key) != 32 && len(key) != 64 {
		return ErrInvalidKeySize
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != stateLocked {
		return ErrInvalidState
	}
	if v.rawKey != nil {
		bytesafe.Zero(v.rawKey)
	}
	v.rawKey = append([]byte(nil), key...)
	return nil
}

// SetPassphrase sets a UTF-8 passphrase to try against the key slots on
// the next Unlock.
func (v *Volume) SetPassphrase(password []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.password != nil {
		bytesafe.Zero(v.password)
	}
	v.password = append([]byte(nil), password...)
}

// IsLocked reports whether the volume still needs a successful Unlock.
func (v *Volume) IsLocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state != stateUnlocked
}

// Size returns the plaintext payload size. Zero while locked.
func (v *Volume) Size() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.cache == nil {
		return 0
	}
	return v.cache.payloadSize
}

// EncryptionMethod reports the header's cipher and chaining mode.
func (v *Volume) EncryptionMethod() (Cipher, Chaining) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.header.Cipher, v.header.Chaining
}

// VolumeIdentifier returns the 16-byte UUID parsed from the header.
func (v *Volume) VolumeIdentifier() [16]byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.header.UUID
}

// CacheStats reports the sector cache's cumulative hit/miss counters.
// Zero values while locked.
func (v *Volume) CacheStats() (hits, misses uint64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.cache == nil {
		return 0, 0
	}
	return v.cache.CacheStats()
}

// Seek updates the logical read offset. Seeking past the end is
// permitted; subsequent reads return 0 bytes. A negative resulting
// offset is an error and leaves the offset unchanged.
func (v *Volume) Seek(offset int64, whence int) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seekLocked(offset, whence)
}

func (v *Volume) seekLocked(offset int64, whence int) (int64, error) {
	if v.state != stateUnlocked {
		return 0, ErrInvalidState
	}
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = v.offset
	case io.SeekEnd:
		base = v.cache.payloadSize
	default:
		return v.offset, fmt.Errorf("luksde: invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return v.offset, fmt.Errorf("luksde: negative seek result %d", next)
	}
	v.offset = next
	return v.offset, nil
}

// Read reads from the current logical offset, advancing it by the number
// of bytes returned.
func (v *Volume) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readLocked(buf)
}

// ReadAt is equivalent to Seek(offset, io.SeekStart) followed by Read(buf).
func (v *Volume) ReadAt(buf []byte, offset int64) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.seekLocked(offset, io.SeekStart); err != nil {
		return 0, err
	}
	return v.readLocked(buf)
}

func (v *Volume) readLocked(buf []byte) (int, error) {
	if v.state != stateUnlocked {
		return 0, ErrInvalidState
	}

	remaining := v.cache.payloadSize - v.offset
	if remaining <= 0 {
		return 0, nil
	}
	if int64(len(buf)) < remaining {
		remaining = int64(len(buf))
	}

	var n int64
	for n < remaining {
		if v.aborted.Load() {
			return int(n), ErrAborted
		}

		sectorOff := (v.offset / sectorSize) * sectorSize
		inSector := v.offset - sectorOff

		sector, err := v.cache.getSector(sectorOff)
		if err != nil {
			return int(n), err
		}

		chunk := int64(len(sector)) - inSector
		if left := remaining - n; chunk > left {
			chunk = left
		}
		copy(buf[n:n+chunk], sector[inSector:inSector+chunk])

		n += chunk
		v.offset += chunk
	}

	return int(n), nil
}

// SignalAbort sets the one-shot abort flag; an in-flight Read returns the
// bytes already copied, and every subsequent Read also sees it set until
// the volume is closed and reopened.
func (v *Volume) SignalAbort() {
	v.aborted.Store(true)
}

// Close zeroizes every secret-bearing buffer the volume owns and, if the
// volume was opened via OpenFile, closes the backing device.
func (v *Volume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == stateClosed {
		return nil
	}

	if v.masterKey != nil {
		bytesafe.Zero(v.masterKey)
		v.masterKey = nil
	}
	if v.password != nil {
		bytesafe.Zero(v.password)
		v.password = nil
	}
	if v.rawKey != nil {
		bytesafe.Zero(v.rawKey)
		v.rawKey = nil
	}
	v.ctx = nil
	v.cache = nil

	var err error
	if v.ownsDev {
		if closer, ok := v.dev.(io.Closer); ok {
			err = closer.Close()
		}
	}
	v.state = stateClosed
	return err
}
