// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luksde

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"testing"
)

func TestIVForSectorNoneAndNull(t *testing.T) {
	ctx := &encryptionContext{ivMode: IVModeNone}
	iv, err := ivForSector(ctx, 12345)
	if err != nil {
		t.Fatalf("ivForSector: %v", err)
	}
	if !bytes.Equal(iv, make([]byte, 16)) {
		t.Fatalf("expected all-zero iv, got %x", iv)
	}

	ctx.ivMode = IVModeNull
	iv, err = ivForSector(ctx, 0xFFFFFFFF)
	if err != nil {
		t.Fatalf("ivForSector: %v", err)
	}
	if !bytes.Equal(iv, make([]byte, 16)) {
		t.Fatalf("expected all-zero iv for null mode, got %x", iv)
	}
}

func TestIVForSectorPlain32Truncates(t *testing.T) {
	ctx := &encryptionContext{ivMode: IVModePlain32}

	iv, err := ivForSector(ctx, 1)
	if err != nil {
		t.Fatalf("ivForSector: %v", err)
	}
	want := make([]byte, 16)
	binary.LittleEndian.PutUint32(want[:4], 1)
	if !bytes.Equal(iv, want) {
		t.Fatalf("got %x, want %x", iv, want)
	}

	// sector 2^32 truncates to 0 in the 32-bit IV field.
	iv, err = ivForSector(ctx, 1<<32)
	if err != nil {
		t.Fatalf("ivForSector: %v", err)
	}
	if !bytes.Equal(iv, make([]byte, 16)) {
		t.Fatalf("expected truncation to zero, got %x", iv)
	}
}

func TestIVForSectorPlain64(t *testing.T) {
	ctx := &encryptionContext{ivMode: IVModePlain64}
	sector := uint64(1) << 40

	iv, err := ivForSector(ctx, sector)
	if err != nil {
		t.Fatalf("ivForSector: %v", err)
	}
	want := make([]byte, 16)
	binary.LittleEndian.PutUint64(want[:8], sector)
	if !bytes.Equal(iv, want) {
		t.Fatalf("got %x, want %x", iv, want)
	}
}

func TestIVForSectorBenbi(t *testing.T) {
	ctx := &encryptionContext{ivMode: IVModeBenbi}
	sector := uint64(1) << 50

	iv, err := ivForSector(ctx, sector)
	if err != nil {
		t.Fatalf("ivForSector: %v", err)
	}
	want := make([]byte, 16)
	binary.BigEndian.PutUint64(want[8:], (sector<<5)+1)
	if !bytes.Equal(iv, want) {
		t.Fatalf("got %x, want %x", iv, want)
	}
}

func TestIVForSectorESSIV(t *testing.T) {
	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	essivKey := deriveESSIVKey(masterKey, HashSHA256)
	block, err := aes.NewCipher(essivKey)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	ctx := &encryptionContext{ivMode: IVModeESSIV, essivBlock: block}

	sector := uint64(7)
	iv, err := ivForSector(ctx, sector)
	if err != nil {
		t.Fatalf("ivForSector: %v", err)
	}

	plain := make([]byte, 16)
	binary.LittleEndian.PutUint64(plain[:8], sector)
	want := make([]byte, 16)
	block.Encrypt(want, plain)
	if !bytes.Equal(iv, want) {
		t.Fatalf("got %x, want %x", iv, want)
	}
}

func TestDecryptSectorAESCBCPlain64RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	ctx := &encryptionContext{chaining: ChainingCBC, ivMode: IVModePlain64, block: block}

	plaintext := make([]byte, sectorSize)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	sector := uint64(42)
	iv, err := ivForSector(ctx, sector)
	if err != nil {
		t.Fatalf("ivForSector: %v", err)
	}
	ciphertext := make([]byte, sectorSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	got, err := decryptSector(ctx, sector, ciphertext)
	if err != nil {
		t.Fatalf("decryptSector: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("round trip mismatch for aes-cbc-plain64")
	}
}

func TestDecryptSectorAESECBRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	ctx := &encryptionContext{chaining: ChainingECB, block: block}

	plaintext := make([]byte, sectorSize)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	ciphertext := make([]byte, sectorSize)
	bs := block.BlockSize()
	for off := 0; off < sectorSize; off += bs {
		block.Encrypt(ciphertext[off:off+bs], plaintext[off:off+bs])
	}

	got, err := decryptSector(ctx, 0, ciphertext)
	if err != nil {
		t.Fatalf("decryptSector: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("round trip mismatch for aes-ecb")
	}
}

func TestDecryptSectorRC4IgnoresChaining(t *testing.T) {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	plaintext := make([]byte, sectorSize)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	ciphertext, err := rc4Sector(key, plaintext)
	if err != nil {
		t.Fatalf("rc4Sector (encrypt): %v", err)
	}

	for _, chaining := range []Chaining{ChainingCBC, ChainingECB, ChainingUnknown} {
		t.Run(chaining.String(), func(t *testing.T) {
			ctx := &encryptionContext{chaining: chaining, rc4Key: key}
			got, err := decryptSector(ctx, 0, ciphertext)
			if err != nil {
				t.Fatalf("decryptSector: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("round trip mismatch for rc4/%s", chaining)
			}
		})
	}
}

// TestDecryptSectorRC4ECBViaBuildEncryptionContext exercises the full
// header-to-context path for an rc4/ecb volume (the combination that used
// to panic: ChainingECB dereferencing a nil ctx.block).
func TestDecryptSectorRC4ECBViaBuildEncryptionContext(t *testing.T) {
	hdr := &VolumeHeader{Cipher: CipherRC4, Chaining: ChainingECB}
	ctx, err := buildEncryptionContext(hdr, make([]byte, 16))
	if err != nil {
		t.Fatalf("buildEncryptionContext: %v", err)
	}

	plaintext := make([]byte, sectorSize)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	ciphertext, err := rc4Sector(ctx.rc4Key, plaintext)
	if err != nil {
		t.Fatalf("rc4Sector (encrypt): %v", err)
	}

	got, err := decryptSector(ctx, 0, ciphertext)
	if err != nil {
		t.Fatalf("decryptSector: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("round trip mismatch for rc4/ecb built via buildEncryptionContext")
	}
}

func TestDecryptSectorRejectsWrongLength(t *testing.T) {
	ctx := &encryptionContext{chaining: ChainingECB}
	_, err := decryptSector(ctx, 0, make([]byte, 100))
	if err == nil {
		t.Fatal("expected error for wrong-length ciphertext")
	}
}
