// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kem maps algorithm names such as "ML-KEM-768" or "X-Wing" to key
// encapsulation schemes that operate on encoded keys and ciphertexts, for
// callers that pick the algorithm at run time.
package kem

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"filippo.io/mlkem"
	"filippo.io/mlkem/xwing"
)

// A Scheme is a key encapsulation method over encoded keys. Implementations
// must be safe for concurrent use.
type Scheme interface {
	// Name returns the canonical name of the scheme, such as "ML-KEM-768".
	Name() string

	EncapsulationKeySize() int
	DecapsulationKeySize() int
	CiphertextSize() int
	SharedKeySize() int

	// GenerateKeyPair returns a new encoded key pair, drawing randomness from
	// rand, or from crypto/rand if rand is nil.
	GenerateKeyPair(rand io.Reader) (encapsulationKey, decapsulationKey []byte, err error)

	// Encapsulate returns a shared key and its ciphertext for the encoded
	// encapsulation key.
	Encapsulate(encapsulationKey []byte, rand io.Reader) (sharedKey, ciphertext []byte, err error)

	// Decapsulate returns the shared key for ciphertext.
	Decapsulate(decapsulationKey, ciphertext []byte) (sharedKey []byte, err error)
}

var (
	ErrUnknownScheme = errors.New("kem: unknown scheme")
	ErrSchemeExists  = errors.New("kem: scheme already registered")
	ErrNilScheme     = errors.New("kem: nil scheme")
)

// A Registry is a thread-safe set of schemes indexed by name. Names are
// matched ignoring case and dashes, so "mlkem768" finds "ML-KEM-768".
type Registry struct {
	mu      sync.RWMutex
	schemes map[string]Scheme
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{schemes: make(map[string]Scheme)}
}

func normalize(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", ""))
}

// Register adds s to the registry.
func (r *Registry) Register(s Scheme) error {
	if s == nil {
		return ErrNilScheme
	}
	key := normalize(s.Name())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemes[key]; exists {
		return fmt.Errorf("%w: %s", ErrSchemeExists, s.Name())
	}
	r.schemes[key] = s
	return nil
}

// Lookup returns the scheme registered under name.
func (r *Registry) Lookup(name string) (Scheme, error) {
	r.mu.RLock()
	s, exists := r.schemes[normalize(name)]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
	return s, nil
}

// Names returns the canonical names of the registered schemes, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemes))
	for _, s := range r.schemes {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

func init() {
	for _, p := range mlkem.ParameterSets() {
		if err := defaultRegistry.Register(MLKEM(p)); err != nil {
			panic(err)
		}
	}
	if err := defaultRegistry.Register(XWing()); err != nil {
		panic(err)
	}
}

// Register adds s to the default registry, which already holds ML-KEM-512,
// ML-KEM-768, ML-KEM-1024 and X-Wing.
func Register(s Scheme) error { return defaultRegistry.Register(s) }

// Lookup returns the scheme registered under name in the default registry.
func Lookup(name string) (Scheme, error) { return defaultRegistry.Lookup(name) }

// Names returns the names of the schemes in the default registry.
func Names() []string { return defaultRegistry.Names() }

type mlkemScheme struct {
	p *mlkem.ParameterSet
}

// MLKEM returns the Scheme for the ML-KEM parameter set p. Decapsulation keys
// are in the expanded FIPS 203 form.
func MLKEM(p *mlkem.ParameterSet) Scheme { return mlkemScheme{p} }

func (s mlkemScheme) Name() string              { return s.p.Name() }
func (s mlkemScheme) EncapsulationKeySize() int { return s.p.EncapsulationKeySize() }
func (s mlkemScheme) DecapsulationKeySize() int { return s.p.DecapsulationKeySize() }
func (s mlkemScheme) CiphertextSize() int       { return s.p.CiphertextSize() }
func (s mlkemScheme) SharedKeySize() int        { return s.p.SharedKeySize() }

func (s mlkemScheme) GenerateKeyPair(rand io.Reader) ([]byte, []byte, error) {
	dk, err := mlkem.GenerateKey(s.p, rand)
	if err != nil {
		return nil, nil, err
	}
	defer dk.Destroy()
	return dk.EncapsulationKey().Bytes(), dk.Bytes(), nil
}

func (s mlkemScheme) Encapsulate(encapsulationKey []byte, rand io.Reader) ([]byte, []byte, error) {
	ek, err := mlkem.NewEncapsulationKey(s.p, encapsulationKey)
	if err != nil {
		return nil, nil, err
	}
	return ek.Encapsulate(rand)
}

func (s mlkemScheme) Decapsulate(decapsulationKey, ciphertext []byte) ([]byte, error) {
	dk, err := mlkem.NewDecapsulationKey(s.p, decapsulationKey)
	if err != nil {
		return nil, err
	}
	defer dk.Destroy()
	return dk.Decapsulate(ciphertext)
}

type xwingScheme struct{}

// XWing returns the Scheme for X-Wing. Decapsulation keys are 32-byte seeds.
func XWing() Scheme { return xwingScheme{} }

func (xwingScheme) Name() string              { return "X-Wing" }
func (xwingScheme) EncapsulationKeySize() int { return xwing.EncapsulationKeySize }
func (xwingScheme) DecapsulationKeySize() int { return xwing.SeedSize }
func (xwingScheme) CiphertextSize() int       { return xwing.CiphertextSize }
func (xwingScheme) SharedKeySize() int        { return xwing.SharedKeySize }

func (xwingScheme) GenerateKeyPair(rand io.Reader) ([]byte, []byte, error) {
	dk, err := xwing.GenerateKey(rand)
	if err != nil {
		return nil, nil, err
	}
	defer dk.Destroy()
	return dk.EncapsulationKey(), dk.Bytes(), nil
}

func (xwingScheme) Encapsulate(encapsulationKey []byte, rand io.Reader) ([]byte, []byte, error) {
	ct, ss, err := xwing.Encapsulate(encapsulationKey, rand)
	return ss, ct, err
}

func (xwingScheme) Decapsulate(decapsulationKey, ciphertext []byte) ([]byte, error) {
	dk, err := xwing.NewKeyFromSeed(decapsulationKey)
	if err != nil {
		return nil, err
	}
	defer dk.Destroy()
	return xwing.Decapsulate(dk, ciphertext)
}
