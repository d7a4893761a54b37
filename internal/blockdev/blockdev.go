// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

// Package blockdev provides BackingDevice implementations over *os.File,
// sizing regular files with Stat and block devices with the BLKGETSIZE64
// ioctl.
package blockdev

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrInvalidPath is returned by Open for a path that fails validation:
// empty, containing a ".." traversal segment, or naming something that is
// neither a regular file nor a device node.
var ErrInvalidPath = errors.New("blockdev: invalid device path")

// File adapts *os.File to the luksde.BackingDevice contract: ReadAt plus a
// Size that works for both plain disk images and real block devices.
type File struct {
	f *os.File
}

// Open validates path, opens it read-only, and wraps it as a File.
func Open(path string) (*File, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path) // #nosec G304 -- path validated above
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &File{f: f}, nil
}

// validatePath rejects empty paths and path-traversal segments, and
// requires the target already exist as a regular file or device node.
func validatePath(path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return ErrInvalidPath
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	mode := info.Mode()
	if !mode.IsRegular() && mode&os.ModeDevice == 0 {
		return ErrInvalidPath
	}
	return nil
}

// NewFile wraps an already-open file. The caller keeps ownership of f;
// Close on the returned File closes it too.
func NewFile(f *os.File) *File {
	return &File{f: f}
}

func (d *File) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

// Size returns the device's total byte length. Block devices don't report
// a useful size from Stat (it's usually 0), so BLKGETSIZE64 is tried
// first; regular files (disk images) fall back to Stat.
func (d *File) Size() (int64, error) {
	var size int64
	// #nosec G103 -- unsafe.Pointer required to hand the kernel a uint64 out-param
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno == 0 {
		return size, nil
	}

	info, err := d.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat backing device: %w", err)
	}
	return info.Size(), nil
}

// Close closes the underlying file.
func (d *File) Close() error {
	return d.f.Close()
}
