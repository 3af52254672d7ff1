// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlkem

import (
	"errors"

	"filippo.io/mlkem/keccak"
)

// encryptionKey is the parsed and expanded form of a PKE encryption key.
type encryptionKey struct {
	p *ParameterSet
	ρ [32]byte     // sampleNTT seed for A
	a []nttElement // ML-KEM's A, k×k, stored row-major as a[i*k+j]
	t []nttElement // ML-KEM's t, k entries
}

// decryptionKey is the parsed and expanded form of a PKE decryption key.
type decryptionKey struct {
	s []nttElement // ML-KEM's s, k entries
}

// expandMatrix regenerates Â from ρ, according to FIPS 203, Algorithm 13,
// lines 3-7.
func expandMatrix(k int, ρ []byte) []nttElement {
	a := make([]nttElement, k*k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			a[i*k+j] = sampleNTT(ρ, byte(j), byte(i))
		}
	}
	return a
}

// sampleNoise computes SamplePolyCBD_η(PRF_η(seed, N)) and wipes the PRF
// output.
func sampleNoise(η int, seed []byte, N byte) ringElement {
	B := prf(η, seed, N)
	defer clear(B)
	return samplePolyCBD(B, η)
}

// pkeKeyGen generates a key pair for the underlying PKE from a 32-byte random
// seed.
//
// It implements K-PKE.KeyGen, according to FIPS 203, Algorithm 13.
func pkeKeyGen(p *ParameterSet, d []byte) (*encryptionKey, *decryptionKey) {
	g := keccak.New512()
	g.Write(d)
	g.Write([]byte{byte(p.k)})
	G := g.Sum(make([]byte, 0, 64))
	defer clear(G)
	ρ, σ := G[:32], G[32:]

	ek := &encryptionKey{p: p, ρ: [32]byte(ρ)}
	ek.a = expandMatrix(p.k, ρ)

	var N byte
	dk := &decryptionKey{s: make([]nttElement, p.k)}
	for i := range dk.s {
		dk.s[i] = ntt(sampleNoise(p.η1, σ, N))
		N++
	}
	e := make([]nttElement, p.k)
	for i := range e {
		e[i] = ntt(sampleNoise(p.η1, σ, N))
		N++
	}
	defer clear(e)

	ek.t = make([]nttElement, p.k)
	for i := range ek.t {
		ek.t[i] = e[i]
		for j := range dk.s {
			ek.t[i] = polyAdd(ek.t[i], nttMul(ek.a[i*p.k+j], dk.s[j]))
		}
	}
	return ek, dk
}

// bytes appends the encoding of ek, ByteEncode₁₂(t) ‖ ρ, to b.
func (ek *encryptionKey) bytes(b []byte) []byte {
	for i := range ek.t {
		b = polyByteEncode(b, ek.t[i])
	}
	return append(b, ek.ρ[:]...)
}

// parseEK parses an encryption key from its encoded form.
//
// It implements the initial stages of K-PKE.Encrypt, according to FIPS 203,
// Algorithm 14, including the modulus check of Section 7.2.
func parseEK(p *ParameterSet, ekPKE []byte) (*encryptionKey, error) {
	if len(ekPKE) != p.encryptionKeySize {
		return nil, errors.New("mlkem: invalid encryption key length")
	}
	ek := &encryptionKey{p: p, t: make([]nttElement, p.k)}
	for i := range ek.t {
		var err error
		ek.t[i], err = polyByteDecode[nttElement](ekPKE[:encodingSize12])
		if err != nil {
			return nil, err
		}
		ekPKE = ekPKE[encodingSize12:]
	}
	ek.ρ = [32]byte(ekPKE)
	ek.a = expandMatrix(p.k, ek.ρ[:])
	return ek, nil
}

// pkeEncrypt encrypt a plaintext message.
//
// It implements K-PKE.Encrypt according to FIPS 203, Algorithm 14, although the
// computation of t and AT is done in parseEK.
func pkeEncrypt(ek *encryptionKey, m, rnd []byte) []byte {
	p := ek.p

	var N byte
	y := make([]nttElement, p.k)
	for i := range y {
		y[i] = ntt(sampleNoise(p.η1, rnd, N))
		N++
	}
	defer clear(y)
	e1 := make([]ringElement, p.k)
	for i := range e1 {
		e1[i] = sampleNoise(p.η2, rnd, N)
		N++
	}
	defer clear(e1)
	e2 := sampleNoise(p.η2, rnd, N)

	u := make([]ringElement, p.k) // NTT⁻¹(AT ◦ y) + e1
	for i := range u {
		var uHat nttElement
		for j := range y {
			// Note that i and j are inverted, as we need the transposed of A.
			uHat = polyAdd(uHat, nttMul(ek.a[j*p.k+i], y[j]))
		}
		u[i] = polyAdd(e1[i], inverseNTT(uHat))
	}

	μ := ringDecodeAndDecompress(m, 1)

	var vNTT nttElement // t⊺ ◦ y
	for i := range ek.t {
		vNTT = polyAdd(vNTT, nttMul(ek.t[i], y[i]))
	}
	v := polyAdd(polyAdd(inverseNTT(vNTT), e2), μ)

	c := make([]byte, 0, p.ciphertextSize)
	for _, f := range u {
		c = ringCompressAndEncode(c, f, p.du)
	}
	c = ringCompressAndEncode(c, v, p.dv)
	return c
}

// pkeDecrypt decrypts a ciphertext.
//
// It implements K-PKE.Decrypt according to FIPS 203, Algorithm 15,
// although the computation of s is done in NewDecapsulationKey.
func pkeDecrypt(p *ParameterSet, dk *decryptionKey, c []byte) []byte {
	uSize := encodingSize(p.du)
	u := make([]ringElement, p.k)
	for i := range u {
		u[i] = ringDecodeAndDecompress(c[i*uSize:(i+1)*uSize], p.du)
	}
	v := ringDecodeAndDecompress(c[p.k*uSize:], p.dv)

	var mask nttElement // s⊺ ◦ NTT(u)
	for i := range dk.s {
		mask = polyAdd(mask, nttMul(dk.s[i], ntt(u[i])))
	}
	w := polySub(v, inverseNTT(mask))

	return ringCompressAndEncode(make([]byte, 0, MessageSize), w, 1)
}
