// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luksde

const (
	// sectorSize is the fixed unit of encryption and the unit
	// payload_start_sector/key_material_offset are expressed in.
	sectorSize = 512

	// headerReadSize is how much of the device C1 reads at offset 0
	// before parsing. The LUKS1 struct itself only occupies the first
	// 592 bytes of it; the remainder is the reserved region between the
	// header and the first key-material area.
	headerReadSize = 4096

	// maxAlloc bounds key_size*stripes and similar derived sizes against
	// a corrupt or hostile header claiming an enormous key-material area.
	maxAlloc = 1 << 20
)
