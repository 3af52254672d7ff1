// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"filippo.io/mlkem/keccak"
	"filippo.io/mlkem/kem"
)

const (
	encapsulationKeyFlag = "encapsulation-key"
	decapsulationKeyFlag = "decapsulation-key"
	ciphertextFlag       = "ciphertext"
	workersFlag          = "workers"
	iterationsFlag       = "iterations"
)

func encapsulationKeyPath() *cli.PathFlag {
	return &cli.PathFlag{
		Name:    encapsulationKeyFlag,
		Aliases: []string{"ek"},
		Usage:   "hex file holding the encapsulation (public) key",
		Value:   "key.pub",
	}
}

func decapsulationKeyPath() *cli.PathFlag {
	return &cli.PathFlag{
		Name:    decapsulationKeyFlag,
		Aliases: []string{"dk"},
		Usage:   "hex file holding the decapsulation (secret) key",
		Value:   "key",
	}
}

func ciphertextPath() *cli.PathFlag {
	return &cli.PathFlag{
		Name:    ciphertextFlag,
		Aliases: []string{"ct"},
		Usage:   "hex file holding the ciphertext",
		Value:   "ciphertext",
	}
}

func keygenCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a key pair",
		Flags: []cli.Flag{encapsulationKeyPath(), decapsulationKeyPath()},
		Action: func(c *cli.Context) error {
			s, err := lookupScheme(c)
			if err != nil {
				return err
			}
			ek, dk, err := s.GenerateKeyPair(nil)
			if err != nil {
				return errors.Wrap(err, "key generation failed")
			}
			defer clear(dk)

			if err := writeHexFile(c.Path(decapsulationKeyFlag), dk, 0o600); err != nil {
				return err
			}
			if err := writeHexFile(c.Path(encapsulationKeyFlag), ek, 0o644); err != nil {
				return err
			}
			st.log.Info().
				Str("scheme", s.Name()).
				Str("fingerprint", fingerprint(ek)).
				Int("encapsulationKeySize", len(ek)).
				Int("decapsulationKeySize", len(dk)).
				Msg("Generated key pair")
			return nil
		},
	}
}

func encapsCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "encaps",
		Usage: "Encapsulate a fresh shared key to an encapsulation key and print it",
		Flags: []cli.Flag{encapsulationKeyPath(), ciphertextPath()},
		Action: func(c *cli.Context) error {
			s, err := lookupScheme(c)
			if err != nil {
				return err
			}
			ek, err := readHexFile(c.Path(encapsulationKeyFlag))
			if err != nil {
				return err
			}
			K, ct, err := s.Encapsulate(ek, nil)
			if err != nil {
				return errors.Wrap(err, "encapsulation failed")
			}
			defer clear(K)

			if err := writeHexFile(c.Path(ciphertextFlag), ct, 0o644); err != nil {
				return err
			}
			st.log.Info().
				Str("scheme", s.Name()).
				Str("fingerprint", fingerprint(ek)).
				Int("ciphertextSize", len(ct)).
				Msg("Encapsulated shared key")
			_, err = fmt.Fprintln(st.stdout, hex.EncodeToString(K))
			return err
		},
	}
}

func decapsCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "decaps",
		Usage: "Decapsulate a ciphertext and print the shared key",
		Flags: []cli.Flag{decapsulationKeyPath(), ciphertextPath()},
		Action: func(c *cli.Context) error {
			s, err := lookupScheme(c)
			if err != nil {
				return err
			}
			dk, err := readHexFile(c.Path(decapsulationKeyFlag))
			if err != nil {
				return err
			}
			defer clear(dk)
			ct, err := readHexFile(c.Path(ciphertextFlag))
			if err != nil {
				return err
			}
			K, err := s.Decapsulate(dk, ct)
			if err != nil {
				return errors.Wrap(err, "decapsulation failed")
			}
			defer clear(K)

			st.log.Info().
				Str("scheme", s.Name()).
				Int("ciphertextSize", len(ct)).
				Msg("Decapsulated shared key")
			_, err = fmt.Fprintln(st.stdout, hex.EncodeToString(K))
			return err
		},
	}
}

func schemesCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "schemes",
		Usage: "List the supported schemes and their sizes",
		Action: func(c *cli.Context) error {
			w := tabwriter.NewWriter(st.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tEK\tDK\tCT\tSS")
			for _, name := range kem.Names() {
				s, err := kem.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", s.Name(),
					s.EncapsulationKeySize(), s.DecapsulationKeySize(),
					s.CiphertextSize(), s.SharedKeySize())
			}
			return w.Flush()
		},
	}
}

func selftestCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "selftest",
		Usage: "Run concurrent key generation, encapsulation and decapsulation round trips for every scheme",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  workersFlag,
				Usage: "number of concurrent round trips",
				Value: runtime.GOMAXPROCS(0),
			},
			&cli.IntFlag{
				Name:  iterationsFlag,
				Usage: "round trips per scheme",
				Value: 10,
			},
		},
		Action: func(c *cli.Context) error {
			workers, iterations := c.Int(workersFlag), c.Int(iterationsFlag)
			if workers < 1 || iterations < 1 {
				return cli.Exit("workers and iterations must be positive", 2)
			}

			g, ctx := errgroup.WithContext(c.Context)
			g.SetLimit(workers)
			for _, name := range kem.Names() {
				s, err := kem.Lookup(name)
				if err != nil {
					return err
				}
				for i := 0; i < iterations; i++ {
					g.Go(func() error {
						if err := ctx.Err(); err != nil {
							return err
						}
						return errors.Wrapf(roundTrip(s), "%s round trip %d", s.Name(), i)
					})
				}
			}
			if err := g.Wait(); err != nil {
				return err
			}
			st.log.Info().
				Int("schemes", len(kem.Names())).
				Int("iterations", iterations).
				Int("workers", workers).
				Msg("Self-test passed")
			return nil
		},
	}
}

func roundTrip(s kem.Scheme) error {
	ek, dk, err := s.GenerateKeyPair(nil)
	if err != nil {
		return err
	}
	defer clear(dk)
	K, ct, err := s.Encapsulate(ek, nil)
	if err != nil {
		return err
	}
	K1, err := s.Decapsulate(dk, ct)
	if err != nil {
		return err
	}
	if !bytes.Equal(K, K1) {
		return errors.New("shared keys differ")
	}

	// A corrupted ciphertext must still decapsulate, to a different key.
	ct[0] ^= 0x01
	K2, err := s.Decapsulate(dk, ct)
	if err != nil {
		return err
	}
	if bytes.Equal(K, K2) {
		return errors.New("corrupted ciphertext produced the same shared key")
	}
	return nil
}

func lookupScheme(c *cli.Context) (kem.Scheme, error) {
	s, err := kem.Lookup(c.String(schemeFlag))
	if err != nil {
		return nil, cli.Exit(err, 2)
	}
	return s, nil
}

// fingerprint identifies a public key in logs.
func fingerprint(ek []byte) string {
	h := keccak.Sum256(ek)
	return hex.EncodeToString(h[:8])
}

func readHexFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}
	out, err := hex.DecodeString(string(bytes.TrimSpace(b)))
	clear(b)
	if err != nil {
		return nil, errors.Wrapf(err, "%s is not a hex file", path)
	}
	return out, nil
}

func writeHexFile(path string, b []byte, perm os.FileMode) error {
	buf := make([]byte, hex.EncodedLen(len(b))+1)
	defer clear(buf)
	hex.Encode(buf, b)
	buf[len(buf)-1] = '\n'
	if err := os.WriteFile(path, buf, perm); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}
	return nil
}
