// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlkem

import "errors"

// fieldElement is an integer modulo q, an element of ℤ_q. It is always reduced.
type fieldElement uint16

// fieldCheckReduced checks that a value a is < q.
func fieldCheckReduced(a uint16) (fieldElement, error) {
	if a >= q {
		return 0, errors.New("unreduced field element")
	}
	return fieldElement(a), nil
}

// fieldReduceOnce reduces a value a < 2q.
func fieldReduceOnce(a uint16) fieldElement {
	x := a - q
	// If x underflowed, then x >= 2¹⁶ - q > 2¹⁵, so the top bit is set.
	x += (x >> 15) * q
	return fieldElement(x)
}

func fieldAdd(a, b fieldElement) fieldElement {
	x := uint16(a + b)
	return fieldReduceOnce(x)
}

func fieldSub(a, b fieldElement) fieldElement {
	x := uint16(a - b + q)
	return fieldReduceOnce(x)
}

// A barrettReducer reduces 32-bit integers modulo m without division, with a
// fixed instruction sequence for every input.
type barrettReducer struct {
	m          uint32
	multiplier uint64 // ⌊2³² / m⌋
}

const barrettShift = 32

func newBarrettReducer(m uint32) barrettReducer {
	if m < 2 || m >= 1<<31 {
		panic("mlkem: Barrett modulus out of range")
	}
	return barrettReducer{m: m, multiplier: (1 << barrettShift) / uint64(m)}
}

// reduce returns a mod m, for any a < 2³².
func (r barrettReducer) reduce(a uint32) uint32 {
	// The estimate is ⌊a / m⌋ or one less, because a < 2³², so the remainder
	// is in [0, 2m) and needs at most one subtraction.
	quotient := uint32((uint64(a) * r.multiplier) >> barrettShift)
	remainder := a - quotient*r.m
	x := remainder - r.m
	// If x underflowed, then x >= 2³² - m > 2³¹, so the top bit is set.
	x += (x >> 31) * r.m
	return x
}

const barrettMultiplier = (1 << barrettShift) / q // 1290167

var fieldReducer = newBarrettReducer(q)

// fieldReduce reduces a value a < 2³² using Barrett reduction, to avoid
// potentially variable-time division.
func fieldReduce(a uint32) fieldElement {
	return fieldElement(fieldReducer.reduce(a))
}

func fieldMul(a, b fieldElement) fieldElement {
	x := uint32(a) * uint32(b)
	return fieldReduce(x)
}

// fieldMulSub returns a * (b - c). This operation is fused to save a
// fieldReduceOnce after the subtraction.
func fieldMulSub(a, b, c fieldElement) fieldElement {
	x := uint32(a) * uint32(b-c+q)
	return fieldReduce(x)
}

// fieldAddMul returns a * b + c * d. This operation is fused to save a
// fieldReduceOnce and a fieldReduce.
func fieldAddMul(a, b, c, d fieldElement) fieldElement {
	x := uint32(a) * uint32(b)
	x += uint32(c) * uint32(d)
	return fieldReduce(x)
}
