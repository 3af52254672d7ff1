// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keccak

import (
	"encoding/binary"
	"errors"
)

// Domain separation suffixes, including the first bit of the pad10*1
// padding, in the LSB-first byte convention of FIPS 202, Appendix B.2.
const (
	dsbyteKeccak = 0x01
	dsbyteSHA3   = 0x06
	dsbyteSHAKE  = 0x1f
)

const (
	stateSize = 200 // Keccak-f[1600] state in bytes
	laneSize  = 8
)

var (
	// ErrWriteAfterRead is returned by Write once squeezing has started.
	ErrWriteAfterRead = errors.New("keccak: write after read")

	// ErrInvalidRate is returned by NewSponge for a rate that is not a
	// positive multiple of 8 bytes below the state size.
	ErrInvalidRate = errors.New("keccak: invalid rate")
)

// A Sponge is the sponge construction over Keccak-f[1600]. It absorbs input
// with Write and squeezes output with Read. Once Read has been called the
// sponge only squeezes, until Reset.
//
// A Sponge also implements hash.Hash, with Sum returning the first Size bytes
// of output without changing the state.
type Sponge struct {
	a State

	rate      int  // in bytes
	dsbyte    byte // domain separation suffix
	outputLen int  // for Sum and Size

	buf       [stateSize]byte
	off       int // bytes absorbed into, or squeezed from, the current block
	squeezing bool
}

// NewSponge returns a sponge over Keccak-f[1600] with the given rate in
// bytes and domain separation suffix. The capacity is 200 - rate bytes.
// outputLen is only used by Sum and Size.
func NewSponge(rate int, dsbyte byte, outputLen int) (*Sponge, error) {
	if rate <= 0 || rate >= stateSize || rate%laneSize != 0 {
		return nil, ErrInvalidRate
	}
	return &Sponge{rate: rate, dsbyte: dsbyte, outputLen: outputLen}, nil
}

func newSponge(rate int, dsbyte byte, outputLen int) *Sponge {
	s, err := NewSponge(rate, dsbyte, outputLen)
	if err != nil {
		panic(err)
	}
	return s
}

// Rate returns the rate of the sponge in bytes.
func (s *Sponge) Rate() int { return s.rate }

// Capacity returns the capacity of the sponge in bytes.
func (s *Sponge) Capacity() int { return stateSize - s.rate }

// BlockSize returns the rate of the sponge in bytes.
func (s *Sponge) BlockSize() int { return s.rate }

// Size returns the number of bytes Sum appends.
func (s *Sponge) Size() int { return s.outputLen }

// Pad returns the padding that follows a message of messageLength bytes: the
// domain separation suffix and the pad10*1 rule, up to the next multiple of
// the rate. The padding is between 1 and Rate bytes long, so a message that
// fills its last block exactly is followed by a full block of padding.
func (s *Sponge) Pad(messageLength int) []byte {
	return s.appendPad(nil, messageLength)
}

func (s *Sponge) appendPad(b []byte, messageLength int) []byte {
	padLen := s.rate - messageLength%s.rate
	if padLen == 1 {
		return append(b, s.dsbyte|0x80)
	}
	b = append(b, s.dsbyte)
	for i := 0; i < padLen-2; i++ {
		b = append(b, 0x00)
	}
	return append(b, 0x80)
}

// Write absorbs p into the sponge. It returns ErrWriteAfterRead if Read has
// already been called.
func (s *Sponge) Write(p []byte) (int, error) {
	if s.squeezing {
		return 0, ErrWriteAfterRead
	}
	n := len(p)
	for len(p) > 0 {
		c := copy(s.buf[s.off:s.rate], p)
		s.off += c
		p = p[c:]
		if s.off == s.rate {
			s.absorbBlock()
			s.off = 0
		}
	}
	return n, nil
}

// absorbBlock XORs the buffered rate-sized block into the state and permutes.
func (s *Sponge) absorbBlock() {
	for i := 0; i < s.rate/laneSize; i++ {
		s.a[i%5][i/5] ^= binary.LittleEndian.Uint64(s.buf[i*laneSize:])
	}
	KeccakF1600.Permute(&s.a)
}

// extractBlock copies the first rate bytes of the state into the buffer.
func (s *Sponge) extractBlock() {
	for i := 0; i < s.rate/laneSize; i++ {
		binary.LittleEndian.PutUint64(s.buf[i*laneSize:], s.a[i%5][i/5])
	}
}

// padAndSwitch absorbs the padding and moves the sponge to squeezing.
func (s *Sponge) padAndSwitch() {
	// The padding exactly fills the current block, and buf has room for it.
	s.appendPad(s.buf[:s.off], s.off)
	s.absorbBlock()
	s.extractBlock()
	s.off = 0
	s.squeezing = true
}

// Read squeezes len(out) bytes from the sponge. Subsequent calls continue
// the output stream. It never returns an error.
func (s *Sponge) Read(out []byte) (int, error) {
	if !s.squeezing {
		s.padAndSwitch()
	}
	n := len(out)
	for len(out) > 0 {
		if s.off == s.rate {
			KeccakF1600.Permute(&s.a)
			s.extractBlock()
			s.off = 0
		}
		c := copy(out, s.buf[s.off:s.rate])
		s.off += c
		out = out[c:]
	}
	return n, nil
}

// Sum appends Size bytes of output to b without changing the sponge.
func (s *Sponge) Sum(b []byte) []byte {
	dup := s.Clone()
	defer dup.Reset()
	out := make([]byte, s.outputLen)
	dup.Read(out)
	return append(b, out...)
}

// Clone returns a copy of the sponge in its current state.
func (s *Sponge) Clone() *Sponge {
	dup := *s
	return &dup
}

// Reset zeroes the state and returns the sponge to absorbing.
func (s *Sponge) Reset() {
	s.a = State{}
	clear(s.buf[:])
	s.off = 0
	s.squeezing = false
}
