// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keccak implements the Keccak-f permutations and the sponge
// construction built on Keccak-f[1600], as specified in [NIST FIPS 202].
//
// The package provides SHA3-256, SHA3-512, SHAKE128 and SHAKE256, which are
// the hash and extendable-output functions needed by ML-KEM.
//
// [NIST FIPS 202]: https://doi.org/10.6028/NIST.FIPS.202
package keccak

import "math/bits"

// State is the 5×5 array of lanes of a Keccak-f permutation, indexed as
// State[x][y]. Only the low w bits of each lane are used.
type State [5][5]uint64

// A Permutation is one of the seven Keccak-f[b] permutations, b = 25·2ˡ.
type Permutation struct {
	l      int
	w      int // lane size in bits, 2ˡ
	b      int // state size in bits, 25w
	rounds int // 12 + 2l
	mask   uint64
}

// The seven members of the Keccak-f family.
var (
	KeccakF25   = newPermutation(0)
	KeccakF50   = newPermutation(1)
	KeccakF100  = newPermutation(2)
	KeccakF200  = newPermutation(3)
	KeccakF400  = newPermutation(4)
	KeccakF800  = newPermutation(5)
	KeccakF1600 = newPermutation(6)
)

func newPermutation(l int) *Permutation {
	w := 1 << l
	mask := ^uint64(0)
	if w < 64 {
		mask = 1<<w - 1
	}
	return &Permutation{l: l, w: w, b: 25 * w, rounds: 12 + 2*l, mask: mask}
}

// Width returns the size of the permutation state in bits.
func (p *Permutation) Width() int { return p.b }

// LaneSize returns the size of a lane in bits.
func (p *Permutation) LaneSize() int { return p.w }

// Rounds returns the number of rounds applied by Permute.
func (p *Permutation) Rounds() int { return p.rounds }

// roundConstants are the ι constants RC[i] for Keccak-f[1600]. The constants
// of smaller widths are their low w bits.
var roundConstants = [24]uint64{
	0x0000000000000001, 0x0000000000008082, 0x800000000000808A, 0x8000000080008000,
	0x000000000000808B, 0x0000000080000001, 0x8000000080008081, 0x8000000000008009,
	0x000000000000008A, 0x0000000000000088, 0x0000000080008009, 0x000000008000000A,
	0x000000008000808B, 0x800000000000008B, 0x8000000000008089, 0x8000000000008003,
	0x8000000000008002, 0x8000000000000080, 0x000000000000800A, 0x800000008000000A,
	0x8000000080008081, 0x8000000000008080, 0x0000000080000001, 0x8000000080008008,
}

// rotationOffsets are the ρ offsets r[x][y] for Keccak-f[1600]. Smaller
// widths use them modulo w.
var rotationOffsets = [5][5]int{
	{0, 36, 3, 41, 18},
	{1, 44, 10, 45, 2},
	{62, 6, 43, 15, 61},
	{28, 55, 25, 21, 56},
	{27, 20, 39, 8, 14},
}

// mod5 returns v mod 5 in [0, 5), also for negative v.
func mod5(v int) int {
	m := v % 5
	if m < 0 {
		m += 5
	}
	return m
}

func (p *Permutation) rotl(v uint64, r int) uint64 {
	if p.w == 64 {
		return bits.RotateLeft64(v, r)
	}
	r %= p.w
	if r == 0 {
		return v
	}
	return (v<<r | v>>(p.w-r)) & p.mask
}

// Permute applies the permutation to a in place.
func (p *Permutation) Permute(a *State) {
	for i := 0; i < p.rounds; i++ {
		p.round(a, roundConstants[i]&p.mask)
	}
}

func (p *Permutation) round(a *State, rc uint64) {
	// θ
	var c, d [5]uint64
	for x := 0; x < 5; x++ {
		c[x] = a[x][0] ^ a[x][1] ^ a[x][2] ^ a[x][3] ^ a[x][4]
	}
	for x := 0; x < 5; x++ {
		d[x] = c[mod5(x-1)] ^ p.rotl(c[mod5(x+1)], 1)
	}
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			a[x][y] ^= d[x]
		}
	}

	// ρ and π, into a separate buffer since π moves every lane.
	var b State
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			b[y][mod5(2*x+3*y)] = p.rotl(a[x][y], rotationOffsets[x][y])
		}
	}

	// χ
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			a[x][y] = (b[x][y] ^ (^b[mod5(x+1)][y] & b[mod5(x+2)][y])) & p.mask
		}
	}

	// ι
	a[0][0] ^= rc
}
