// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mlkem implements the quantum-resistant key encapsulation method
// ML-KEM (formerly known as Kyber), as specified in [NIST FIPS 203].
//
// All three parameter sets, ML-KEM-512, ML-KEM-768 and ML-KEM-1024, are
// provided. Hashing is done by the FIPS 202 implementation in the keccak
// subpackage.
//
// [NIST FIPS 203]: https://doi.org/10.6028/NIST.FIPS.203
package mlkem

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"filippo.io/mlkem/keccak"
)

var (
	// ErrInvalidSeedLength is returned when d or z is not SeedSize bytes.
	ErrInvalidSeedLength = errors.New("mlkem: invalid seed length")

	// ErrInvalidEncapsulationKey is returned for a malformed or unreduced
	// encapsulation key.
	ErrInvalidEncapsulationKey = errors.New("mlkem: invalid encapsulation key")

	// ErrInvalidDecapsulationKey is returned for a malformed expanded
	// decapsulation key.
	ErrInvalidDecapsulationKey = errors.New("mlkem: invalid decapsulation key")
	ErrInvalidCiphertextLength = errors.New("mlkem: invalid ciphertext length")
	ErrInvalidEntropyLength    = errors.New("mlkem: invalid encapsulation entropy length")

	// ErrEntropySource wraps the error of a failed or short read from the
	// random source.
	ErrEntropySource = errors.New("mlkem: entropy source failure")
)

// An EncapsulationKey is the public key used to produce ciphertexts to be
// decapsulated by the corresponding DecapsulationKey.
type EncapsulationKey struct {
	ek encryptionKey
	h  [32]byte // H(ek)
}

// Parameters returns the parameter set of the key.
func (ek *EncapsulationKey) Parameters() *ParameterSet {
	return ek.ek.p
}

// Bytes returns the encapsulation key as a byte slice of length
// Parameters().EncapsulationKeySize().
func (ek *EncapsulationKey) Bytes() []byte {
	return ek.ek.bytes(make([]byte, 0, ek.ek.p.encryptionKeySize))
}

// NewEncapsulationKey parses an encapsulation key from its encoded form. If
// the encapsulation key is not valid for p, NewEncapsulationKey returns an
// error wrapping ErrInvalidEncapsulationKey.
func NewEncapsulationKey(p *ParameterSet, encapsulationKey []byte) (*EncapsulationKey, error) {
	if len(encapsulationKey) != p.encryptionKeySize {
		return nil, fmt.Errorf("%w: %s key is %d bytes, got %d", ErrInvalidEncapsulationKey,
			p.name, p.encryptionKeySize, len(encapsulationKey))
	}
	ek, err := parseEK(p, encapsulationKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncapsulationKey, err)
	}
	return &EncapsulationKey{ek: *ek, h: keccak.Sum256(encapsulationKey)}, nil
}

// Encapsulate generates a shared key and an associated ciphertext, drawing 32
// bytes of entropy from rand, or from crypto/rand if rand is nil.
//
// The shared key must be kept secret.
func (ek *EncapsulationKey) Encapsulate(rand io.Reader) (sharedKey, ciphertext []byte, err error) {
	m := make([]byte, MessageSize)
	defer clear(m)
	if err := readEntropy(rand, m); err != nil {
		return nil, nil, err
	}
	return ek.EncapsulateDerand(m)
}

// EncapsulateDerand is the deterministic form of Encapsulate, taking the
// 32-byte encapsulation entropy m as input. It is meant for testing against
// known-answer vectors; m must be uniformly random otherwise.
//
// It implements ML-KEM.Encaps_internal according to FIPS 203, Algorithm 17.
func (ek *EncapsulationKey) EncapsulateDerand(m []byte) (sharedKey, ciphertext []byte, err error) {
	if len(m) != MessageSize {
		return nil, nil, fmt.Errorf("%w: got %d bytes", ErrInvalidEntropyLength, len(m))
	}
	g := keccak.New512()
	g.Write(m)
	g.Write(ek.h[:])
	G := g.Sum(make([]byte, 0, 64))
	defer clear(G)
	K, r := G[:SharedKeySize], G[SharedKeySize:]
	c := pkeEncrypt(&ek.ek, m, r)
	return append([]byte(nil), K...), c, nil
}

// A DecapsulationKey is the secret key used to decapsulate a shared key from a
// ciphertext. It includes various precomputed values, and the encapsulation
// key it pairs with.
type DecapsulationKey struct {
	dk decryptionKey
	ek EncapsulationKey
	z  [32]byte

	seed    [64]byte // d ‖ z, when known
	hasSeed bool
}

// Parameters returns the parameter set of the key.
func (dk *DecapsulationKey) Parameters() *ParameterSet {
	return dk.ek.ek.p
}

// Bytes returns the expanded decapsulation key,
// ByteEncode₁₂(s) ‖ ek ‖ H(ek) ‖ z, as a byte slice of length
// Parameters().DecapsulationKeySize().
func (dk *DecapsulationKey) Bytes() []byte {
	p := dk.Parameters()
	b := make([]byte, 0, p.decapsulationKeySize)
	for i := range dk.dk.s {
		b = polyByteEncode(b, dk.dk.s[i])
	}
	b = dk.ek.ek.bytes(b)
	b = append(b, dk.ek.h[:]...)
	b = append(b, dk.z[:]...)
	return b
}

// Seed returns the 64-byte d ‖ z seed the key was generated from, and false
// if the key was parsed from its expanded form instead.
func (dk *DecapsulationKey) Seed() ([]byte, bool) {
	if !dk.hasSeed {
		return nil, false
	}
	return append([]byte(nil), dk.seed[:]...), true
}

// EncapsulationKey returns the public encapsulation key necessary to produce
// ciphertexts.
func (dk *DecapsulationKey) EncapsulationKey() *EncapsulationKey {
	ek := &EncapsulationKey{ek: dk.ek.ek, h: dk.ek.h}
	ek.ek.a = append([]nttElement(nil), dk.ek.ek.a...)
	ek.ek.t = append([]nttElement(nil), dk.ek.ek.t...)
	return ek
}

// Destroy overwrites the secret parts of the key with zeroes. The key must
// not be used afterwards.
func (dk *DecapsulationKey) Destroy() {
	clear(dk.dk.s)
	clear(dk.z[:])
	clear(dk.seed[:])
	clear(dk.ek.h[:])
	dk.hasSeed = false
}

// GenerateKey generates a new decapsulation key for p, drawing random bytes
// from rand, or from crypto/rand if rand is nil. The decapsulation key must be
// kept secret.
func GenerateKey(p *ParameterSet, rand io.Reader) (*DecapsulationKey, error) {
	var seed [64]byte
	defer clear(seed[:])
	if err := readEntropy(rand, seed[:]); err != nil {
		return nil, err
	}
	return kemKeyGen(p, seed[:32], seed[32:]), nil
}

// NewDecapsulationKeyFromSeeds deterministically generates a decapsulation key
// for p from the two 32-byte seeds d and z. The seeds must be uniformly random.
func NewDecapsulationKeyFromSeeds(p *ParameterSet, d, z []byte) (*DecapsulationKey, error) {
	if len(d) != SeedSize || len(z) != SeedSize {
		return nil, fmt.Errorf("%w: got %d and %d bytes", ErrInvalidSeedLength, len(d), len(z))
	}
	return kemKeyGen(p, d, z), nil
}

// kemKeyGen generates a decapsulation key.
//
// It implements ML-KEM.KeyGen_internal according to FIPS 203, Algorithm 16.
func kemKeyGen(p *ParameterSet, d, z []byte) *DecapsulationKey {
	ek, dkPKE := pkeKeyGen(p, d)
	dk := &DecapsulationKey{dk: *dkPKE}
	dk.ek.ek = *ek
	dk.ek.h = keccak.Sum256(ek.bytes(make([]byte, 0, p.encryptionKeySize)))
	dk.z = [32]byte(z)
	copy(dk.seed[:32], d)
	copy(dk.seed[32:], z)
	dk.hasSeed = true
	return dk
}

// NewDecapsulationKey parses an expanded decapsulation key, as returned by
// DecapsulationKey.Bytes. It checks the length, that every coefficient of s
// and t is reduced, and that the embedded hash matches the encapsulation key,
// returning an error wrapping ErrInvalidDecapsulationKey otherwise.
func NewDecapsulationKey(p *ParameterSet, b []byte) (*DecapsulationKey, error) {
	if len(b) != p.decapsulationKeySize {
		return nil, fmt.Errorf("%w: %s key is %d bytes, got %d", ErrInvalidDecapsulationKey,
			p.name, p.decapsulationKeySize, len(b))
	}
	dkPKE := b[:p.decryptionKeySize]
	ekPKE := b[p.decryptionKeySize : p.decryptionKeySize+p.encryptionKeySize]
	h := b[p.decryptionKeySize+p.encryptionKeySize : p.decapsulationKeySize-32]
	z := b[p.decapsulationKeySize-32:]

	dk := &DecapsulationKey{dk: decryptionKey{s: make([]nttElement, p.k)}}
	for i := range dk.dk.s {
		f, err := polyByteDecode[nttElement](dkPKE[:encodingSize12])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDecapsulationKey, err)
		}
		dk.dk.s[i] = f
		dkPKE = dkPKE[encodingSize12:]
	}
	ek, err := parseEK(p, ekPKE)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDecapsulationKey, err)
	}
	if keccak.Sum256(ekPKE) != [32]byte(h) {
		return nil, fmt.Errorf("%w: encapsulation key hash mismatch", ErrInvalidDecapsulationKey)
	}
	dk.ek.ek = *ek
	dk.ek.h = [32]byte(h)
	dk.z = [32]byte(z)
	return dk, nil
}

// Decapsulate generates a shared key from a ciphertext and a decapsulation
// key. If the ciphertext length is not valid, Decapsulate returns an error
// wrapping ErrInvalidCiphertextLength. A well-formed ciphertext that fails to
// decrypt correctly yields a pseudorandom key derived from z and the
// ciphertext, indistinguishable by timing from a real one.
//
// The shared key must be kept secret.
//
// It implements ML-KEM.Decaps_internal according to FIPS 203, Algorithm 18.
func (dk *DecapsulationKey) Decapsulate(ciphertext []byte) (sharedKey []byte, err error) {
	p := dk.Parameters()
	if len(ciphertext) != p.ciphertextSize {
		return nil, fmt.Errorf("%w: %s ciphertext is %d bytes, got %d", ErrInvalidCiphertextLength,
			p.name, p.ciphertextSize, len(ciphertext))
	}
	c := append([]byte(nil), ciphertext...)

	m := pkeDecrypt(p, &dk.dk, c)
	defer clear(m)
	g := keccak.New512()
	g.Write(m)
	g.Write(dk.ek.h[:])
	G := g.Sum(make([]byte, 0, 64))
	defer clear(G)
	Kprime, r := G[:SharedKeySize], G[SharedKeySize:]

	Kout := make([]byte, SharedKeySize)
	J := keccak.NewShake256()
	J.Write(dk.z[:])
	J.Write(c)
	J.Read(Kout) // K̄ = J(z ‖ c)
	J.Reset()

	c1 := pkeEncrypt(&dk.ek.ek, m, r)

	subtle.ConstantTimeCopy(subtle.ConstantTimeCompare(c, c1), Kout, Kprime)
	return Kout, nil
}

// readEntropy fills b from rand, or from crypto/rand if rand is nil.
func readEntropy(r io.Reader, b []byte) error {
	if r == nil {
		r = rand.Reader
	}
	if _, err := io.ReadFull(r, b); err != nil {
		return fmt.Errorf("%w: %w", ErrEntropySource, err)
	}
	return nil
}
