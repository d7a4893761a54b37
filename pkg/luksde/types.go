// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luksde

// Cipher identifies the block/stream cipher named in the on-disk header.
// All eight LUKS1 cipher names parse to a distinct value; only AES,
// Serpent and RC4 can actually be instantiated by the encryption context
// (see buildEncryptionContext).
type Cipher int

const (
	CipherUnknown Cipher = iota
	CipherAES
	CipherAnubis
	CipherBlowfish
	CipherCast5
	CipherCast6
	CipherSerpent
	CipherTwofish
	CipherRC4
)

func (c Cipher) String() string {
	switch c {
	case CipherAES:
		return "aes"
	case CipherAnubis:
		return "anubis"
	case CipherBlowfish:
		return "blowfish"
	case CipherCast5:
		return "cast5"
	case CipherCast6:
		return "cast6"
	case CipherSerpent:
		return "serpent"
	case CipherTwofish:
		return "twofish"
	case CipherRC4:
		return "rc4"
	default:
		return "unknown"
	}
}

// Chaining identifies the block chaining mode.
type Chaining int

const (
	ChainingUnknown Chaining = iota
	ChainingCBC
	ChainingECB
	ChainingXTS
)

func (c Chaining) String() string {
	switch c {
	case ChainingCBC:
		return "cbc"
	case ChainingECB:
		return "ecb"
	case ChainingXTS:
		return "xts"
	default:
		return "unknown"
	}
}

// IVMode identifies how the per-sector IV is derived.
type IVMode int

const (
	IVModeUnknown IVMode = iota
	IVModeNone
	IVModeNull
	IVModePlain32
	IVModePlain64
	IVModeBenbi
	IVModeESSIV
	IVModeLMK
)

func (m IVMode) String() string {
	switch m {
	case IVModeNone:
		return "none"
	case IVModeNull:
		return "null"
	case IVModePlain32:
		return "plain"
	case IVModePlain64:
		return "plain64"
	case IVModeBenbi:
		return "benbi"
	case IVModeESSIV:
		return "essiv"
	case IVModeLMK:
		return "lmk"
	default:
		return "unknown"
	}
}

// HashAlgo identifies a hash algorithm named by the header, used both for
// PBKDF2 and for the AF diffuser. RIPEMD160 parses but is rejected at
// every site that actually hashes (PBKDF2, diffuse).
type HashAlgo int

const (
	HashUnknown HashAlgo = iota
	HashRIPEMD160
	HashSHA1
	HashSHA224
	HashSHA256
	HashSHA512
)

func (h HashAlgo) String() string {
	switch h {
	case HashRIPEMD160:
		return "ripemd160"
	case HashSHA1:
		return "sha1"
	case HashSHA224:
		return "sha224"
	case HashSHA256:
		return "sha256"
	case HashSHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

// luksKeyEnabled is the magic value a key slot's state field holds when
// the slot is active. Any other value means the slot is disabled.
const luksKeyEnabled uint32 = 0x00AC71F3

// KeySlot is one of the eight password-unlock entries in the header.
type KeySlot struct {
	Active            bool
	Iterations        uint32
	Salt              [32]byte
	KeyMaterialOffset uint32 // in 512-byte sectors, from device start
	Stripes           uint32
}

// VolumeHeader is the fully parsed, immutable LUKS1 header. For a
// recognized-but-unsupported LUKS2 header, only FormatVersion is
// meaningful; every other field is its zero value.
type VolumeHeader struct {
	FormatVersion      uint16
	Cipher             Cipher
	Chaining           Chaining
	IVMode             IVMode
	ESSIVHash          HashAlgo
	Hash               HashAlgo
	PayloadStartSector uint32
	MasterKeySize      uint32 // bytes
	MKValidationHash   [20]byte
	MKSalt             [32]byte
	MKIterations       uint32
	UUID               [16]byte
	KeySlots           [8]KeySlot
}

// PayloadOffset is the byte offset of the encrypted payload on the
// backing device.
func (h *VolumeHeader) PayloadOffset() int64 {
	return int64(h.PayloadStartSector) * sectorSize
}
