// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

// Command luksdeinfo prints a LUKS1 header's fields and, given a
// passphrase on stdin, reports whether it unlocks the volume. It never
// writes to the device.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeremyhahn/go-luksde/pkg/luksde"
)

const usage = `
luksdeinfo - read-only LUKS1 header inspector

USAGE:
    luksdeinfo <device-or-image> [--unlock]

    --unlock    prompt for a passphrase on the terminal and report
                whether it unlocks the volume (no data is modified)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	path := os.Args[1]
	tryUnlock := len(os.Args) > 2 && os.Args[2] == "--unlock"

	if err := run(path, tryUnlock); err != nil {
		fmt.Fprintf(os.Stderr, "luksdeinfo: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, tryUnlock bool) error {
	vol, err := luksde.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = vol.Close() }()

	id := vol.VolumeIdentifier()
	cipher, chaining := vol.EncryptionMethod()
	fmt.Printf("device:      %s\n", path)
	fmt.Printf("uuid:        %x\n", id)
	fmt.Printf("cipher:      %s-%s\n", cipher, chaining)
	fmt.Printf("locked:      %v\n", vol.IsLocked())

	if !tryUnlock {
		return nil
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		// Not a terminal (e.g. piped input in a test harness): fall back
		// to reading a line.
		line, readErr := bufio.NewReader(os.Stdin).ReadString('\n')
		if readErr != nil {
			return fmt.Errorf("read passphrase: %w", err)
		}
		password = []byte(strings.TrimRight(line, "\r\n"))
	}

	vol.SetPassphrase(password)
	unlocked, err := vol.Unlock()
	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	if !unlocked {
		fmt.Println("result:      wrong passphrase")
		return nil
	}

	fmt.Printf("result:      unlocked, payload size %d bytes\n", vol.Size())
	return nil
}
