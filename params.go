// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlkem

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ML-KEM global constants.
	n = 256
	q = 3329

	encodingSize12 = n * 12 / 8
	encodingSize1  = n * 1 / 8

	// SharedKeySize is the size of the shared key produced by every
	// parameter set.
	SharedKeySize = 32

	// SeedSize is the size of each of the two key generation seeds, d and z.
	SeedSize = 32

	// MessageSize is the size of the encapsulation entropy m.
	MessageSize = encodingSize1
)

// encodingSize returns the size of ByteEncode_d of a polynomial.
func encodingSize(d uint8) int {
	return n * int(d) / 8
}

// A ParameterSet selects one of the ML-KEM security levels of FIPS 203,
// Section 8. ParameterSets are immutable and safe to share.
type ParameterSet struct {
	name     string
	k        int
	η1, η2   int
	du, dv   uint8
	strength int

	decryptionKeySize    int // dkPKE
	encryptionKeySize    int // ekPKE, also the ML-KEM encapsulation key
	decapsulationKeySize int
	ciphertextSize       int
}

// The parameter sets of FIPS 203, Table 2.
var (
	MLKEM512  = newParameterSet("ML-KEM-512", 2, 3, 2, 10, 4, 128)
	MLKEM768  = newParameterSet("ML-KEM-768", 3, 2, 2, 10, 4, 192)
	MLKEM1024 = newParameterSet("ML-KEM-1024", 4, 2, 2, 11, 5, 256)
)

func newParameterSet(name string, k, η1, η2 int, du, dv uint8, strength int) *ParameterSet {
	p := &ParameterSet{name: name, k: k, η1: η1, η2: η2, du: du, dv: dv, strength: strength}
	p.decryptionKeySize = k * encodingSize12
	p.encryptionKeySize = k*encodingSize12 + 32
	p.decapsulationKeySize = p.decryptionKeySize + p.encryptionKeySize + 32 + 32
	p.ciphertextSize = k*encodingSize(du) + encodingSize(dv)
	return p
}

// ErrUnknownParameterSet is returned by ParameterSetByName.
var ErrUnknownParameterSet = errors.New("mlkem: unknown parameter set")

// ParameterSets returns the supported parameter sets, from smallest to
// largest.
func ParameterSets() []*ParameterSet {
	return []*ParameterSet{MLKEM512, MLKEM768, MLKEM1024}
}

// ParameterSetByName returns the parameter set with the given name, such as
// "ML-KEM-768". The match ignores case and dashes.
func ParameterSetByName(name string) (*ParameterSet, error) {
	normalize := func(s string) string {
		return strings.ToUpper(strings.ReplaceAll(s, "-", ""))
	}
	for _, p := range ParameterSets() {
		if normalize(p.name) == normalize(name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownParameterSet, name)
}

// Name returns the FIPS 203 name of the parameter set, such as "ML-KEM-768".
func (p *ParameterSet) Name() string { return p.name }

func (p *ParameterSet) String() string { return p.name }

// K returns the module rank.
func (p *ParameterSet) K() int { return p.k }

// Eta1 returns η₁, the noise parameter of s, e and y.
func (p *ParameterSet) Eta1() int { return p.η1 }

// Eta2 returns η₂, the noise parameter of e₁ and e₂.
func (p *ParameterSet) Eta2() int { return p.η2 }

// Du returns the compression width of the ciphertext vector u.
func (p *ParameterSet) Du() int { return int(p.du) }

// Dv returns the compression width of the ciphertext polynomial v.
func (p *ParameterSet) Dv() int { return int(p.dv) }

// SecurityStrength returns the required security strength in bits of the
// random bit generator used with this parameter set.
func (p *ParameterSet) SecurityStrength() int { return p.strength }

// EncapsulationKeySize returns the size of an encapsulation key in bytes.
func (p *ParameterSet) EncapsulationKeySize() int { return p.encryptionKeySize }

// DecapsulationKeySize returns the size of an expanded decapsulation key in
// bytes.
func (p *ParameterSet) DecapsulationKeySize() int { return p.decapsulationKeySize }

// CiphertextSize returns the size of a ciphertext in bytes.
func (p *ParameterSet) CiphertextSize() int { return p.ciphertextSize }

// SharedKeySize returns the size of the shared key in bytes.
func (p *ParameterSet) SharedKeySize() int { return SharedKeySize }
