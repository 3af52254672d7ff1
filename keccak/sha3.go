// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keccak

import "hash"

// Rates in bytes of the FIPS 202 instances, 200 - 2·(security strength).
const (
	rateSHAKE128 = 168
	rate256      = 136 // SHA3-256 and SHAKE256
	rate512      = 72  // SHA3-512
)

// New256 returns a new SHA3-256 hash.
func New256() hash.Hash { return newSponge(rate256, dsbyteSHA3, 32) }

// New512 returns a new SHA3-512 hash.
func New512() hash.Hash { return newSponge(rate512, dsbyteSHA3, 64) }

// NewShake128 returns a new SHAKE128 extendable-output function.
func NewShake128() *Sponge { return newSponge(rateSHAKE128, dsbyteSHAKE, 32) }

// NewShake256 returns a new SHAKE256 extendable-output function.
func NewShake256() *Sponge { return newSponge(rate256, dsbyteSHAKE, 64) }

// NewLegacyKeccak256 returns the original Keccak-256 hash, which differs from
// SHA3-256 only in the padding suffix.
func NewLegacyKeccak256() hash.Hash { return newSponge(rate256, dsbyteKeccak, 32) }

// Sum256 returns the SHA3-256 digest of data.
func Sum256(data []byte) (digest [32]byte) {
	s := newSponge(rate256, dsbyteSHA3, 32)
	s.Write(data)
	s.Read(digest[:])
	return
}

// Sum512 returns the SHA3-512 digest of data.
func Sum512(data []byte) (digest [64]byte) {
	s := newSponge(rate512, dsbyteSHA3, 64)
	s.Write(data)
	s.Read(digest[:])
	return
}

// ShakeSum128 writes len(out) bytes of SHAKE128 output for data into out.
func ShakeSum128(out, data []byte) {
	s := NewShake128()
	s.Write(data)
	s.Read(out)
}

// ShakeSum256 writes len(out) bytes of SHAKE256 output for data into out.
func ShakeSum256(out, data []byte) {
	s := NewShake256()
	s.Write(data)
	s.Read(out)
}
