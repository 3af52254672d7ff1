// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mlkem generates keys, encapsulates and decapsulates shared secrets
// with any scheme in the kem registry. Keys and ciphertexts are stored as hex
// files; shared keys are printed as hex on standard output.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const (
	schemeFlag   = "scheme"
	logLevelFlag = "loglevel"

	defaultScheme = "ML-KEM-768"
)

var Version = "DEV"

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// state is shared by the commands of one run.
type state struct {
	stdout io.Writer
	log    zerolog.Logger
}

func newApp(stdout, stderr io.Writer) *cli.App {
	st := &state{stdout: stdout, log: zerolog.Nop()}

	return &cli.App{
		Name:      "mlkem",
		Usage:     "ML-KEM and X-Wing key encapsulation",
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    schemeFlag,
				Usage:   "key encapsulation scheme, see the schemes command",
				Value:   defaultScheme,
				EnvVars: []string{"MLKEM_SCHEME"},
			},
			&cli.StringFlag{
				Name:    logLevelFlag,
				Usage:   "application logging level {debug, info, warn, error}",
				Value:   "info",
				EnvVars: []string{"MLKEM_LOGLEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			log, err := newLogger(stderr, c.String(logLevelFlag))
			if err != nil {
				return cli.Exit(err, 2)
			}
			st.log = log
			return nil
		},
		Commands: []*cli.Command{
			keygenCommand(st),
			encapsCommand(st),
			decapsCommand(st),
			schemesCommand(st),
			selftestCommand(st),
		},
	}
}
