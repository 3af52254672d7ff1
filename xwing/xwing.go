// Package xwing implements the hybrid quantum-resistant key encapsulation
// method X-Wing, which combines X25519, ML-KEM-768, and SHA3-256 as specified
// in [draft-connolly-cfrg-xwing-kem].
//
// [draft-connolly-cfrg-xwing-kem]: https://www.ietf.org/archive/id/draft-connolly-cfrg-xwing-kem-04.html
package xwing

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"filippo.io/mlkem"
	"filippo.io/mlkem/keccak"
)

const (
	ciphertextSizeM       = 1088 // ML-KEM-768
	encapsulationKeySizeM = 1184 // ML-KEM-768

	CiphertextSize       = ciphertextSizeM + 32
	EncapsulationKeySize = encapsulationKeySizeM + 32
	SharedKeySize        = 32
	SeedSize             = 32

	// EncapsulationSeedSize is the size of the entropy consumed by
	// EncapsulateDerand: 32 bytes for ML-KEM-768 and 32 for X25519.
	EncapsulationSeedSize = 64
)

var (
	ErrInvalidSeedLength        = errors.New("xwing: invalid seed length")
	ErrInvalidEncapsulationKey  = errors.New("xwing: invalid encapsulation key")
	ErrInvalidCiphertextLength  = errors.New("xwing: invalid ciphertext length")
	ErrInvalidEncapsulationSeed = errors.New("xwing: invalid encapsulation seed length")
)

// A DecapsulationKey is the secret key used to decapsulate a shared key from a
// ciphertext. It includes various precomputed values.
type DecapsulationKey struct {
	sk  [SeedSize]byte
	skM *mlkem.DecapsulationKey
	skX *ecdh.PrivateKey
	pk  [EncapsulationKeySize]byte
}

// Bytes returns the decapsulation key as a 32-byte seed.
func (dk *DecapsulationKey) Bytes() []byte {
	return bytes.Clone(dk.sk[:])
}

// EncapsulationKey returns the public encapsulation key necessary to produce
// ciphertexts.
func (dk *DecapsulationKey) EncapsulationKey() []byte {
	return bytes.Clone(dk.pk[:])
}

// Destroy overwrites the seed and the ML-KEM secret with zeroes. The key must
// not be used afterwards.
func (dk *DecapsulationKey) Destroy() {
	clear(dk.sk[:])
	dk.skM.Destroy()
}

// GenerateKey generates a new decapsulation key, drawing random bytes from
// rand, or from crypto/rand if rand is nil. The decapsulation key must be kept
// secret.
func GenerateKey(rand io.Reader) (*DecapsulationKey, error) {
	sk := make([]byte, SeedSize)
	defer clear(sk)
	if err := readEntropy(rand, sk); err != nil {
		return nil, err
	}
	return NewKeyFromSeed(sk)
}

// NewKeyFromSeed deterministically generates a decapsulation key from a 32-byte
// seed. The seed must be uniformly random.
func NewKeyFromSeed(sk []byte) (*DecapsulationKey, error) {
	if len(sk) != SeedSize {
		return nil, ErrInvalidSeedLength
	}

	expanded := make([]byte, 96)
	defer clear(expanded)
	keccak.ShakeSum128(expanded, sk)

	skM, err := mlkem.NewDecapsulationKeyFromSeeds(mlkem.MLKEM768, expanded[:32], expanded[32:64])
	if err != nil {
		return nil, err
	}
	pkM := skM.EncapsulationKey().Bytes()

	x, err := ecdh.X25519().NewPrivateKey(expanded[64:])
	if err != nil {
		return nil, err
	}
	pkX := x.PublicKey().Bytes()

	dk := &DecapsulationKey{}
	copy(dk.sk[:], sk)
	dk.skM = skM
	dk.skX = x
	copy(dk.pk[:], append(pkM, pkX...))
	return dk, nil
}

const xwingLabel = (`` +
	`\./` +
	`/^\`)

func combiner(ssM, ssX, ctX, pkX []byte) []byte {
	h := keccak.New256()
	h.Write([]byte(xwingLabel))
	h.Write(ssM)
	h.Write(ssX)
	h.Write(ctX)
	h.Write(pkX)
	return h.Sum(nil)
}

// Encapsulate generates a shared key and an associated ciphertext from an
// encapsulation key, drawing random bytes from rand, or from crypto/rand if
// rand is nil. If the encapsulation key is not valid, Encapsulate returns an
// error.
//
// The shared key must be kept secret.
func Encapsulate(encapsulationKey []byte, rand io.Reader) (ciphertext, sharedKey []byte, err error) {
	eseed := make([]byte, EncapsulationSeedSize)
	defer clear(eseed)
	if err := readEntropy(rand, eseed); err != nil {
		return nil, nil, err
	}
	return EncapsulateDerand(encapsulationKey, eseed)
}

// EncapsulateDerand is the deterministic form of Encapsulate, taking 64 bytes
// of uniformly random entropy.
func EncapsulateDerand(encapsulationKey, eseed []byte) (ciphertext, sharedKey []byte, err error) {
	if len(encapsulationKey) != EncapsulationKeySize {
		return nil, nil, fmt.Errorf("%w: got %d bytes", ErrInvalidEncapsulationKey, len(encapsulationKey))
	}
	if len(eseed) != EncapsulationSeedSize {
		return nil, nil, ErrInvalidEncapsulationSeed
	}

	pkM := encapsulationKey[:encapsulationKeySizeM]
	pkX := encapsulationKey[encapsulationKeySizeM:]

	ephemeralKey, err := ecdh.X25519().NewPrivateKey(eseed[32:])
	if err != nil {
		return nil, nil, err
	}
	peerKey, err := ecdh.X25519().NewPublicKey(pkX)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEncapsulationKey, err)
	}
	ctX := ephemeralKey.PublicKey().Bytes()
	ssX, err := ephemeralKey.ECDH(peerKey)
	if err != nil {
		return nil, nil, err
	}
	defer clear(ssX)

	ek, err := mlkem.NewEncapsulationKey(mlkem.MLKEM768, pkM)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEncapsulationKey, err)
	}
	ssM, ctM, err := ek.EncapsulateDerand(eseed[:32])
	if err != nil {
		return nil, nil, err
	}
	defer clear(ssM)

	ss := combiner(ssM, ssX, ctX, pkX)
	ct := append(ctM, ctX...)
	return ct, ss, nil
}

// Decapsulate generates a shared key from a ciphertext and a decapsulation key.
// If the ciphertext is not valid, Decapsulate returns an error.
//
// The shared key must be kept secret.
func Decapsulate(dk *DecapsulationKey, ciphertext []byte) (sharedKey []byte, err error) {
	if len(ciphertext) != CiphertextSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidCiphertextLength, len(ciphertext))
	}

	ctM := ciphertext[:ciphertextSizeM]
	ctX := ciphertext[ciphertextSizeM:]
	pkX := dk.pk[encapsulationKeySizeM:]

	ssM, err := dk.skM.Decapsulate(ctM)
	if err != nil {
		return nil, err
	}
	defer clear(ssM)

	peerKey, err := ecdh.X25519().NewPublicKey(ctX)
	if err != nil {
		return nil, err
	}
	ssX, err := dk.skX.ECDH(peerKey)
	if err != nil {
		return nil, err
	}
	defer clear(ssX)

	ss := combiner(ssM, ssX, ctX, pkX)
	return ss, nil
}

func readEntropy(r io.Reader, b []byte) error {
	if r == nil {
		r = rand.Reader
	}
	if _, err := io.ReadFull(r, b); err != nil {
		return fmt.Errorf("xwing: entropy source failure: %w", err)
	}
	return nil
}
