// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luksde

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	signaturePrimary = [6]byte{'L', 'U', 'K', 'S', 0xBA, 0xBE}
	signatureBackup  = [6]byte{'S', 'K', 'U', 'L', 0xBA, 0xBE}
)

// rawHeaderV1 is the on-disk LUKS1 header, byte for byte. All multi-byte
// integers are big-endian; binary.Read with binary.BigEndian does the
// whole conversion in one shot.
type rawHeaderV1 struct {
	Signature          [6]byte
	Version            uint16
	CipherName         [32]byte
	CipherMode         [32]byte
	HashSpec           [32]byte
	PayloadStartSector uint32
	MasterKeySize      uint32
	MKValidationHash   [20]byte
	MKSalt             [32]byte
	MKIterations       uint32
	UUID               [40]byte
	KeySlots           [8]rawKeySlot
}

type rawKeySlot struct {
	State             uint32
	Iterations        uint32
	Salt              [32]byte
	KeyMaterialOffset uint32
	Stripes           uint32
}

// ReadHeader reads and parses the 4096-byte LUKS header at the start of
// dev. A recognized LUKS2 marker parses far enough to report
// FormatVersion and nothing else; callers must treat any such header as
// unsupported at unlock time.
func ReadHeader(dev BackingDevice) (*VolumeHeader, error) {
	buf := make([]byte, headerReadSize)
	if _, err := dev.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var sig [6]byte
	copy(sig[:], buf[:6])
	if sig != signaturePrimary && sig != signatureBackup {
		return nil, ErrUnsupportedSignature
	}

	version := binary.BigEndian.Uint16(buf[6:8])
	if version != 1 && version != 2 {
		return nil, &HeaderError{Field: "format_version", Offset: 6, Err: ErrUnsupportedFormat}
	}
	if version == 2 {
		return &VolumeHeader{FormatVersion: 2}, nil
	}

	var raw rawHeaderV1
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &raw); err != nil {
		return nil, &HeaderError{Field: "header", Offset: 0, Err: fmt.Errorf("%w: %v", ErrCorruptHeader, err)}
	}

	hdr := &VolumeHeader{
		FormatVersion:      1,
		PayloadStartSector: raw.PayloadStartSector,
		MasterKeySize:      raw.MasterKeySize,
		MKValidationHash:   raw.MKValidationHash,
		MKSalt:             raw.MKSalt,
		MKIterations:       raw.MKIterations,
	}

	if hdr.MasterKeySize == 0 || hdr.MasterKeySize > 64 {
		return nil, &HeaderError{Field: "master_key_size", Offset: 108, Err: ErrCorruptHeader}
	}

	hdr.Cipher = parseCipherName(fixedArrayToString(raw.CipherName[:]))

	chaining, ivMode, essivHash, err := parseCipherMode(fixedArrayToString(raw.CipherMode[:]))
	if err != nil {
		return nil, &HeaderError{Field: "cipher_mode", Offset: 40, Err: err}
	}
	hdr.Chaining = chaining
	hdr.IVMode = ivMode
	hdr.ESSIVHash = essivHash

	hdr.Hash = parseHashName(fixedArrayToString(raw.HashSpec[:]))

	id, err := parseUUID(fixedArrayToString(raw.UUID[:]))
	if err != nil {
		return nil, &HeaderError{Field: "uuid", Offset: 168, Err: err}
	}
	hdr.UUID = id

	for i, rs := range raw.KeySlots {
		hdr.KeySlots[i] = KeySlot{
			Active:            rs.State == luksKeyEnabled,
			Iterations:        rs.Iterations,
			Salt:              rs.Salt,
			KeyMaterialOffset: rs.KeyMaterialOffset,
			Stripes:           rs.Stripes,
		}
	}

	return hdr, nil
}

// fixedArrayToString trims the trailing NUL padding off a fixed-size
// on-disk string field.
func fixedArrayToString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func parseCipherName(name string) Cipher {
	switch strings.ToLower(name) {
	case "aes":
		return CipherAES
	case "anubis":
		return CipherAnubis
	case "blowfish":
		return CipherBlowfish
	case "cast5":
		return CipherCast5
	case "cast6":
		return CipherCast6
	case "serpent":
		return CipherSerpent
	case "twofish":
		return CipherTwofish
	case "rc4":
		return CipherRC4
	default:
		return CipherUnknown
	}
}

func parseHashName(name string) HashAlgo {
	switch strings.ToLower(name) {
	case "ripemd160":
		return HashRIPEMD160
	case "sha1":
		return HashSHA1
	case "sha224":
		return HashSHA224
	case "sha256":
		return HashSHA256
	case "sha512":
		return HashSHA512
	default:
		return HashUnknown
	}
}

// parseCipherMode splits the mode string "<chain>[-<iv-mode>[:<essiv-hash>]]"
// into its three parts, e.g. "cbc-essiv:sha256" -> (CBC, ESSIV, SHA256).
func parseCipherMode(mode string) (Chaining, IVMode, HashAlgo, error) {
	mode = strings.ToLower(mode)

	chainPart, rest, _ := strings.Cut(mode, "-")
	chaining := parseChaining(chainPart)

	if rest == "" {
		return chaining, IVModeNone, HashUnknown, nil
	}

	ivPart, essivPart, hasEssiv := strings.Cut(rest, ":")
	ivMode := parseIVMode(ivPart)

	if ivMode != IVModeESSIV {
		return chaining, ivMode, HashUnknown, nil
	}

	if !hasEssiv {
		return chaining, ivMode, HashUnknown, fmt.Errorf("%w: essiv iv-mode missing hash suffix", ErrCorruptHeader)
	}
	essivHash := parseHashName(essivPart)
	if essivHash != HashSHA1 && essivHash != HashSHA256 {
		return chaining, ivMode, HashUnknown, fmt.Errorf("%w: essiv hash must be sha1 or sha256, got %q", ErrCorruptHeader, essivPart)
	}
	return chaining, ivMode, essivHash, nil
}

func parseChaining(s string) Chaining {
	switch s {
	case "cbc":
		return ChainingCBC
	case "ecb":
		return ChainingECB
	case "xts":
		return ChainingXTS
	default:
		return ChainingUnknown
	}
}

func parseIVMode(s string) IVMode {
	switch s {
	case "", "none":
		return IVModeNone
	case "null":
		return IVModeNull
	case "plain":
		return IVModePlain32
	case "plain64":
		return IVModePlain64
	case "benbi":
		return IVModeBenbi
	case "essiv":
		return IVModeESSIV
	case "lmk":
		return IVModeLMK
	default:
		return IVModeUnknown
	}
}

// parseUUID accepts the 36-character hyphenated form and re-encodes it
// into 16 raw bytes following RFC 4122 field-group ordering.
func parseUUID(s string) ([16]byte, error) {
	var out [16]byte
	if len(s) != 36 {
		return out, fmt.Errorf("%w: uuid must be 36 characters, got %d", ErrCorruptHeader, len(s))
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrCorruptHeader, err)
	}
	copy(out[:], id[:])
	return out, nil
}
