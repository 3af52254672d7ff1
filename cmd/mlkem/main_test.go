// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"filippo.io/mlkem/kem"
)

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp(&out, &errOut)
	app.ExitErrHandler = func(*cli.Context, error) {}
	err = app.Run(append([]string{"mlkem"}, args...))
	return out.String(), errOut.String(), err
}

func TestKeygenEncapsDecaps(t *testing.T) {
	for _, scheme := range kem.Names() {
		t.Run(scheme, func(t *testing.T) {
			dir := t.TempDir()
			ek := filepath.Join(dir, "key.pub")
			dk := filepath.Join(dir, "key")
			ct := filepath.Join(dir, "ct")

			_, logs, err := run(t, "--scheme", scheme, "keygen", "--ek", ek, "--dk", dk)
			require.NoError(t, err)
			assert.Contains(t, logs, "Generated key pair")

			info, err := os.Stat(dk)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

			s, err := kem.Lookup(scheme)
			require.NoError(t, err)
			pub, err := readHexFile(ek)
			require.NoError(t, err)
			require.Len(t, pub, s.EncapsulationKeySize())
			secret, err := readHexFile(dk)
			require.NoError(t, err)
			require.Len(t, secret, s.DecapsulationKeySize())
			// The secret key must never reach the logs.
			assert.NotContains(t, logs, hex.EncodeToString(secret))

			sent, _, err := run(t, "--scheme", scheme, "encaps", "--ek", ek, "--ct", ct)
			require.NoError(t, err)
			received, _, err := run(t, "--scheme", scheme, "decaps", "--dk", dk, "--ct", ct)
			require.NoError(t, err)

			sent, received = strings.TrimSpace(sent), strings.TrimSpace(received)
			require.Len(t, sent, 2*s.SharedKeySize())
			require.Equal(t, sent, received)
		})
	}
}

func TestSchemeFromEnvironment(t *testing.T) {
	t.Setenv("MLKEM_SCHEME", "mlkem512")
	dir := t.TempDir()
	ek := filepath.Join(dir, "key.pub")
	_, _, err := run(t, "keygen", "--ek", ek, "--dk", filepath.Join(dir, "key"))
	require.NoError(t, err)

	pub, err := readHexFile(ek)
	require.NoError(t, err)
	require.Len(t, pub, 800)
}

func TestErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := run(t, "--scheme", "Kyber768", "keygen")
	require.ErrorContains(t, err, "unknown scheme")

	_, _, err = run(t, "--loglevel", "loud", "schemes")
	require.Error(t, err)

	_, _, err = run(t, "encaps", "--ek", filepath.Join(dir, "missing"), "--ct", filepath.Join(dir, "ct"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte("not hex\n"), 0o644))
	_, _, err = run(t, "encaps", "--ek", bad, "--ct", filepath.Join(dir, "ct"))
	require.ErrorContains(t, err, "is not a hex file")

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte("00ff\n"), 0o644))
	_, _, err = run(t, "encaps", "--ek", short, "--ct", filepath.Join(dir, "ct"))
	require.ErrorContains(t, err, "encapsulation failed")
}

func TestSchemes(t *testing.T) {
	out, _, err := run(t, "schemes")
	require.NoError(t, err)
	for _, name := range kem.Names() {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "1184")
}

func TestSelftest(t *testing.T) {
	_, logs, err := run(t, "--loglevel", "debug", "selftest", "--workers", "4", "--iterations", "3")
	require.NoError(t, err)
	assert.Contains(t, logs, "Self-test passed")

	_, _, err = run(t, "selftest", "--workers", "0")
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	assert.Len(t, fingerprint(nil), 16)
	assert.NotEqual(t, fingerprint([]byte{0}), fingerprint([]byte{1}))
}
