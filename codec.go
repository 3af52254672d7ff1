// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlkem

import "errors"

// compress maps a field element uniformly to the range 0 to 2ᵈ-1, according to
// FIPS 203, Definition 4.7.
func compress(x fieldElement, d uint8) uint16 {
	// We want to compute (x * 2ᵈ) / q, rounded to nearest integer, with 1/2
	// rounding up (see FIPS 203, Section 2.3).

	// Barrett reduction produces a quotient and a remainder in the range [0, 2q),
	// such that dividend = quotient * q + remainder.
	dividend := uint32(x) << d // x * 2ᵈ
	quotient := uint32(uint64(dividend) * barrettMultiplier >> barrettShift)
	remainder := dividend - quotient*q

	// Since the remainder is in the range [0, 2q), not [0, q), we need to
	// portion it into three spans for rounding.
	//
	//     [ 0,       q/2     ) -> round to 0
	//     [ q/2,     q + q/2 ) -> round to 1
	//     [ q + q/2, 2q      ) -> round to 2
	//
	// We can convert that to the following logic: add 1 if remainder > q/2,
	// then add 1 again if remainder > q + q/2.
	//
	// Note that if remainder > x, then ⌊x⌋ - remainder underflows, and the top
	// bit of the difference will be set.
	quotient += (q/2 - remainder) >> 31 & 1
	quotient += (q + q/2 - remainder) >> 31 & 1

	// quotient might have overflowed at this point, so reduce it by masking.
	var mask uint32 = (1 << d) - 1
	return uint16(quotient & mask)
}

// decompress maps a number x between 0 and 2ᵈ-1 uniformly to the full range of
// field elements, according to FIPS 203, Definition 4.8.
func decompress(y uint16, d uint8) fieldElement {
	// We want to compute (y * q) / 2ᵈ, rounded to nearest integer, with 1/2
	// rounding up (see FIPS 203, Section 2.3).

	dividend := uint32(y) * q
	quotient := dividend >> d // (y * q) / 2ᵈ

	// The d'th least-significant bit of the dividend (the most significant bit
	// of the remainder) is 1 for the top half of the values that divide to the
	// same quotient, which are the ones that round up.
	quotient += dividend >> (d - 1) & 1

	// quotient is at most (2¹¹-1) * q / 2¹¹ + 1 = 3328, so it didn't overflow.
	return fieldElement(quotient)
}

// sliceForAppend takes a slice and a requested number of bytes. It returns a
// slice with the contents of the given slice followed by that many bytes and a
// second slice that aliases into it and contains only the extra bytes. If the
// original slice has sufficient capacity then no allocation is performed.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}

func checkWidth(d uint8) {
	if d < 1 || d > 12 {
		panic("mlkem: invalid encoding width")
	}
}

// byteEncode appends the d-bit little-endian packing of f to b, masking each
// value to its low d bits. It implements ByteEncode_d, according to FIPS 203,
// Algorithm 5, and always appends 32·d bytes.
func byteEncode[E ~uint16](b []byte, f *[n]E, d uint8) []byte {
	checkWidth(d)
	out, b := sliceForAppend(b, encodingSize(d))
	mask := uint32(1)<<d - 1
	var acc uint32
	var bits uint8
	for _, x := range f {
		acc |= (uint32(x) & mask) << bits
		bits += d
		for bits >= 8 {
			b[0] = byte(acc)
			b = b[1:]
			acc >>= 8
			bits -= 8
		}
	}
	return out
}

// unpack reads 256 d-bit little-endian values from b, which must be exactly
// 32·d bytes long.
func unpack(b []byte, d uint8) [n]uint16 {
	checkWidth(d)
	if len(b) != encodingSize(d) {
		panic("mlkem: invalid encoding length")
	}
	var f [n]uint16
	mask := uint32(1)<<d - 1
	var acc uint32
	var bits uint8
	i := 0
	for _, x := range b {
		acc |= uint32(x) << bits
		bits += 8
		for bits >= d {
			f[i] = uint16(acc & mask)
			i++
			acc >>= d
			bits -= d
		}
	}
	return f
}

// byteDecode implements ByteDecode_d, according to FIPS 203, Algorithm 6.
// Values are reduced modulo q for d = 12 and are below 2ᵈ otherwise.
func byteDecode(b []byte, d uint8) [n]uint16 {
	f := unpack(b, d)
	if d == 12 {
		for i := range f {
			// 12-bit values are below 2q.
			f[i] = uint16(fieldReduceOnce(f[i]))
		}
	}
	return f
}

// polyByteEncode appends the 384-byte encoding of f to b.
//
// It implements ByteEncode₁₂, according to FIPS 203, Algorithm 5.
func polyByteEncode[T ~[n]fieldElement](b []byte, f T) []byte {
	a := [n]fieldElement(f)
	return byteEncode(b, &a, 12)
}

// polyByteDecode decodes the 384-byte encoding of a polynomial, checking that
// all the coefficients are properly reduced. This fulfills the "Modulus check"
// step of ML-KEM Encapsulation.
//
// It implements ByteDecode₁₂, according to FIPS 203, Algorithm 6.
func polyByteDecode[T ~[n]fieldElement](b []byte) (T, error) {
	if len(b) != encodingSize12 {
		return T{}, errors.New("mlkem: invalid encoding length")
	}
	raw := unpack(b, 12)
	var f T
	for i, x := range raw {
		e, err := fieldCheckReduced(x)
		if err != nil {
			return T{}, err
		}
		f[i] = e
	}
	return f, nil
}

// ringCompressAndEncode appends a encoding of a ring element to s,
// compressing each coefficient to d bits.
//
// It implements Compress_d, according to FIPS 203, Definition 4.7,
// followed by ByteEncode_d, according to FIPS 203, Algorithm 5.
func ringCompressAndEncode(s []byte, f ringElement, d uint8) []byte {
	var c [n]uint16
	for i := range f {
		c[i] = compress(f[i], d)
	}
	return byteEncode(s, &c, d)
}

// ringDecodeAndDecompress decodes a 32·d-byte encoding of a ring element where
// each d bits are mapped to an equidistant distribution.
//
// It implements ByteDecode_d, according to FIPS 203, Algorithm 6, followed by
// Decompress_d, according to FIPS 203, Definition 4.8.
func ringDecodeAndDecompress(b []byte, d uint8) ringElement {
	c := byteDecode(b, d)
	var f ringElement
	for i := range f {
		f[i] = decompress(c[i], d)
	}
	return f
}
