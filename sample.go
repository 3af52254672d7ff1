// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlkem

import (
	"encoding/binary"

	"filippo.io/mlkem/keccak"
)

// sampleNTT draws a uniformly random nttElement from a stream of uniformly
// random bytes generated by the XOF function, according to FIPS 203,
// Algorithm 7. The XOF input is rho ‖ ii ‖ jj; matrix entry Â[i][j] is
// sampled with ii = j and jj = i.
func sampleNTT(rho []byte, ii, jj byte) nttElement {
	B := keccak.NewShake128()
	B.Write(rho)
	B.Write([]byte{ii, jj})

	// SampleNTT essentially draws 12 bits at a time from r, interprets them in
	// little-endian, and rejects values higher than q, until it drew 256
	// values. (The rejection rate is approximately 19%.)
	//
	// To do this from a bytes stream, it draws three bytes at a time, and
	// splits them into two uint16 appropriately masked.
	//
	//               r₀              r₁              r₂
	//       |- - - - - - - -|- - - - - - - -|- - - - - - - -|
	//
	//               Uint16(r₀ || r₁)
	//       |- - - - - - - - - - - - - - - -|
	//       |- - - - - - - - - - - -|
	//                   d₁
	//
	//                                Uint16(r₁ || r₂)
	//                       |- - - - - - - - - - - - - - - -|
	//                               |- - - - - - - - - - - -|
	//                                           d₂
	//
	// Note that in little-endian, the rightmost bits are the most significant
	// bits (dropped with a mask) and the leftmost bits are the least
	// significant bits (dropped with a right shift).

	var a nttElement
	var j int         // index into a
	var buf [168]byte // buffered reads from B, one SHAKE128 block at a time
	off := len(buf)   // index into buf, starts in a "buffer fully consumed" state
	for {
		if off >= len(buf) {
			B.Read(buf[:])
			off = 0
		}
		d1 := binary.LittleEndian.Uint16(buf[off:]) & 0b1111_1111_1111
		d2 := binary.LittleEndian.Uint16(buf[off+1:]) >> 4
		off += 3
		if d1 < q {
			a[j] = fieldElement(d1)
			j++
		}
		if j >= len(a) {
			break
		}
		if d2 < q {
			a[j] = fieldElement(d2)
			j++
		}
		if j >= len(a) {
			break
		}
	}
	return a
}

// samplePolyCBD draws a ringElement from the special Dη distribution given a
// stream of random bytes B of length 64η, according to FIPS 203, Algorithm 8.
func samplePolyCBD(B []byte, η int) ringElement {
	if η < 1 || len(B) != 64*η {
		panic("mlkem: invalid CBD input length")
	}

	// Each coefficient consumes 2η consecutive bits of B, least significant
	// bit first: η for x, then η for y.
	var f ringElement
	bit := func(i int) fieldElement {
		return fieldElement(B[i/8] >> (i % 8) & 1)
	}
	for i := range f {
		var x, y fieldElement
		for j := 0; j < η; j++ {
			x += bit(2*i*η + j)
			y += bit(2*i*η + η + j)
		}
		f[i] = fieldSub(x, y)
	}
	return f
}

// prf implements the pseudorandom function PRF_η(s, b) of FIPS 203, Section
// 4.1, as SHAKE256(s ‖ b) truncated to 64η bytes.
func prf(η int, s []byte, b byte) []byte {
	out := make([]byte, 64*η)
	h := keccak.NewShake256()
	h.Write(s)
	h.Write([]byte{b})
	h.Read(out)
	return out
}
