// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlkem

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"io"
	"testing"
	"testing/iotest"

	"filippo.io/mlkem/keccak"
	"golang.org/x/crypto/sha3"
)

func TestParameterSets(t *testing.T) {
	for _, tt := range []struct {
		p                     *ParameterSet
		k, η1, η2, du, dv     int
		ekSize, dkSize, cSize int
	}{
		{MLKEM512, 2, 3, 2, 10, 4, 800, 1632, 768},
		{MLKEM768, 3, 2, 2, 10, 4, 1184, 2400, 1088},
		{MLKEM1024, 4, 2, 2, 11, 5, 1568, 3168, 1568},
	} {
		p := tt.p
		if p.K() != tt.k || p.Eta1() != tt.η1 || p.Eta2() != tt.η2 || p.Du() != tt.du || p.Dv() != tt.dv {
			t.Errorf("%s: unexpected parameters", p)
		}
		if p.EncapsulationKeySize() != tt.ekSize || p.DecapsulationKeySize() != tt.dkSize ||
			p.CiphertextSize() != tt.cSize || p.SharedKeySize() != 32 {
			t.Errorf("%s: sizes %d %d %d", p, p.EncapsulationKeySize(), p.DecapsulationKeySize(), p.CiphertextSize())
		}
	}
}

func TestParameterSetByName(t *testing.T) {
	for name, exp := range map[string]*ParameterSet{
		"ML-KEM-512":  MLKEM512,
		"ml-kem-768":  MLKEM768,
		"MLKEM1024":   MLKEM1024,
		"mlkem-1024":  MLKEM1024,
		"ML-KEM-768 ": nil,
		"Kyber768":    nil,
	} {
		p, err := ParameterSetByName(name)
		if p != exp {
			t.Errorf("ParameterSetByName(%q) = %v", name, p)
		}
		if exp == nil && !errors.Is(err, ErrUnknownParameterSet) {
			t.Errorf("ParameterSetByName(%q) error = %v", name, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, p := range ParameterSets() {
		t.Run(p.Name(), func(t *testing.T) {
			dk, err := GenerateKey(p, nil)
			if err != nil {
				t.Fatal(err)
			}
			ek := dk.EncapsulationKey()
			Ke, c, err := ek.Encapsulate(nil)
			if err != nil {
				t.Fatal(err)
			}
			Kd, err := dk.Decapsulate(c)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(Ke, Kd) {
				t.Fail()
			}

			dk1, err := GenerateKey(p, rand.Reader)
			if err != nil {
				t.Fatal(err)
			}
			if bytes.Equal(ek.Bytes(), dk1.EncapsulationKey().Bytes()) {
				t.Fail()
			}
			if bytes.Equal(dk.Bytes(), dk1.Bytes()) {
				t.Fail()
			}
			if bytes.Equal(dk.Bytes()[p.DecapsulationKeySize()-32:], dk1.Bytes()[p.DecapsulationKeySize()-32:]) {
				t.Fail()
			}

			Ke1, c1, err := ek.Encapsulate(nil)
			if err != nil {
				t.Fatal(err)
			}
			if bytes.Equal(c, c1) {
				t.Fail()
			}
			if bytes.Equal(Ke, Ke1) {
				t.Fail()
			}
		})
	}
}

func TestBadLengths(t *testing.T) {
	for _, p := range ParameterSets() {
		t.Run(p.Name(), func(t *testing.T) {
			dk, err := GenerateKey(p, nil)
			if err != nil {
				t.Fatal(err)
			}
			ek := dk.EncapsulationKey().Bytes()
			dkBytes := dk.Bytes()

			for i := 0; i < len(ek)-1; i++ {
				if _, err := NewEncapsulationKey(p, ek[:i]); !errors.Is(err, ErrInvalidEncapsulationKey) {
					t.Errorf("expected error for ek length %d", i)
				}
			}
			ekLong := ek
			for i := 0; i < 100; i++ {
				ekLong = append(ekLong, 0)
				if _, err := NewEncapsulationKey(p, ekLong); !errors.Is(err, ErrInvalidEncapsulationKey) {
					t.Errorf("expected error for ek length %d", len(ekLong))
				}
			}

			_, c, err := dk.EncapsulationKey().Encapsulate(nil)
			if err != nil {
				t.Fatal(err)
			}

			for i := 0; i < len(dkBytes)-1; i += 7 {
				if _, err := NewDecapsulationKey(p, dkBytes[:i]); !errors.Is(err, ErrInvalidDecapsulationKey) {
					t.Errorf("expected error for dk length %d", i)
				}
			}
			dkLong := dkBytes
			for i := 0; i < 100; i++ {
				dkLong = append(dkLong, 0)
				if _, err := NewDecapsulationKey(p, dkLong); !errors.Is(err, ErrInvalidDecapsulationKey) {
					t.Errorf("expected error for dk length %d", len(dkLong))
				}
			}

			for i := 0; i < len(c)-1; i++ {
				if _, err := dk.Decapsulate(c[:i]); !errors.Is(err, ErrInvalidCiphertextLength) {
					t.Errorf("expected error for c length %d", i)
				}
			}
			cLong := c
			for i := 0; i < 100; i++ {
				cLong = append(cLong, 0)
				if _, err := dk.Decapsulate(cLong); !errors.Is(err, ErrInvalidCiphertextLength) {
					t.Errorf("expected error for c length %d", len(cLong))
				}
			}

			for _, l := range []int{0, 31, 33, 64} {
				if _, _, err := dk.EncapsulationKey().EncapsulateDerand(make([]byte, l)); !errors.Is(err, ErrInvalidEntropyLength) {
					t.Errorf("expected error for m length %d", l)
				}
				if _, err := NewDecapsulationKeyFromSeeds(p, make([]byte, l), make([]byte, 32)); !errors.Is(err, ErrInvalidSeedLength) {
					t.Errorf("expected error for d length %d", l)
				}
				if _, err := NewDecapsulationKeyFromSeeds(p, make([]byte, 32), make([]byte, l)); !errors.Is(err, ErrInvalidSeedLength) {
					t.Errorf("expected error for z length %d", l)
				}
			}

			// Another parameter set's keys and ciphertexts are rejected by length.
			for _, other := range ParameterSets() {
				if other == p {
					continue
				}
				if _, err := NewEncapsulationKey(other, ek); err == nil {
					t.Errorf("%s accepted a %s encapsulation key", other, p)
				}
				if _, err := NewDecapsulationKey(other, dkBytes); err == nil {
					t.Errorf("%s accepted a %s decapsulation key", other, p)
				}
			}
		})
	}
}

func TestEncapsulationKeyModulusCheck(t *testing.T) {
	dk, err := GenerateKey(MLKEM768, nil)
	if err != nil {
		t.Fatal(err)
	}
	ek := dk.EncapsulationKey().Bytes()
	// Set the first coefficient of t to 0xfff.
	ek[0] = 0xff
	ek[1] |= 0x0f
	if _, err := NewEncapsulationKey(MLKEM768, ek); !errors.Is(err, ErrInvalidEncapsulationKey) {
		t.Errorf("expected error for unreduced coefficient, got %v", err)
	}
}

func TestDecapsulationKeyChecks(t *testing.T) {
	dk, err := GenerateKey(MLKEM512, nil)
	if err != nil {
		t.Fatal(err)
	}
	b := dk.Bytes()
	p := MLKEM512

	// H(ek) mismatch.
	bad := bytes.Clone(b)
	bad[p.DecapsulationKeySize()-33] ^= 1
	if _, err := NewDecapsulationKey(p, bad); !errors.Is(err, ErrInvalidDecapsulationKey) {
		t.Errorf("expected error for hash mismatch, got %v", err)
	}

	// Unreduced coefficient of s.
	bad = bytes.Clone(b)
	bad[0], bad[1] = 0xff, 0xff
	if _, err := NewDecapsulationKey(p, bad); !errors.Is(err, ErrInvalidDecapsulationKey) {
		t.Errorf("expected error for unreduced s, got %v", err)
	}

	// Round trip through the expanded form.
	dk1, err := NewDecapsulationKey(p, b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dk1.Bytes(), b) {
		t.Errorf("expanded key did not round trip")
	}
	if _, ok := dk1.Seed(); ok {
		t.Errorf("parsed key reports a seed")
	}
	K, c, err := dk.EncapsulationKey().Encapsulate(nil)
	if err != nil {
		t.Fatal(err)
	}
	K1, err := dk1.Decapsulate(c)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(K, K1) {
		t.Errorf("parsed key decapsulated a different shared key")
	}
}

func TestImplicitRejection(t *testing.T) {
	for _, p := range ParameterSets() {
		t.Run(p.Name(), func(t *testing.T) {
			dk, err := GenerateKey(p, nil)
			if err != nil {
				t.Fatal(err)
			}
			K, c, err := dk.EncapsulationKey().Encapsulate(nil)
			if err != nil {
				t.Fatal(err)
			}
			for _, i := range []int{0, len(c) / 2, len(c) - 1} {
				tampered := bytes.Clone(c)
				tampered[i] ^= 0x01
				K1, err := dk.Decapsulate(tampered)
				if err != nil {
					t.Fatal(err)
				}
				K2, err := dk.Decapsulate(tampered)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(K1, K2) {
					t.Errorf("rejection key is not deterministic")
				}
				if bytes.Equal(K1, K) {
					t.Errorf("tampered ciphertext decapsulated to the real key")
				}

				z := dk.Bytes()[p.DecapsulationKeySize()-32:]
				exp := make([]byte, 32)
				sha3.ShakeSum256(exp, append(bytes.Clone(z), tampered...))
				if !bytes.Equal(K1, exp) {
					t.Errorf("rejection key is not J(z ‖ c)")
				}
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestEntropyFailure(t *testing.T) {
	if _, err := GenerateKey(MLKEM768, failingReader{}); !errors.Is(err, ErrEntropySource) {
		t.Errorf("GenerateKey error = %v", err)
	}
	// A short read is a failure too, not a zero-padded seed.
	short := io.LimitReader(rand.Reader, 40)
	if _, err := GenerateKey(MLKEM768, short); !errors.Is(err, ErrEntropySource) {
		t.Errorf("GenerateKey with short entropy error = %v", err)
	}

	dk, err := GenerateKey(MLKEM768, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = dk.EncapsulationKey().Encapsulate(iotest.ErrReader(io.ErrUnexpectedEOF))
	if !errors.Is(err, ErrEntropySource) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Encapsulate error = %v", err)
	}
}

func TestSeedDeterminism(t *testing.T) {
	d := bytes.Repeat([]byte{1}, 32)
	z := bytes.Repeat([]byte{2}, 32)
	dk1, err := NewDecapsulationKeyFromSeeds(MLKEM1024, d, z)
	if err != nil {
		t.Fatal(err)
	}
	dk2, err := GenerateKey(MLKEM1024, bytes.NewReader(append(bytes.Clone(d), z...)))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dk1.Bytes(), dk2.Bytes()) {
		t.Errorf("GenerateKey and NewDecapsulationKeyFromSeeds disagree")
	}
	seed, ok := dk1.Seed()
	if !ok || !bytes.Equal(seed, append(bytes.Clone(d), z...)) {
		t.Errorf("Seed() = %x, %v", seed, ok)
	}

	// The seeds are copied, not aliased.
	d[0], z[0] = 0xff, 0xff
	if !bytes.Equal(dk1.Bytes(), dk2.Bytes()) {
		t.Errorf("key changed when the caller's seed buffer changed")
	}
}

func TestDestroy(t *testing.T) {
	dk, err := GenerateKey(MLKEM512, nil)
	if err != nil {
		t.Fatal(err)
	}
	ek := dk.EncapsulationKey()
	dk.Destroy()
	for _, s := range dk.dk.s {
		if s != (nttElement{}) {
			t.Fatalf("s survived Destroy")
		}
	}
	if dk.z != [32]byte{} || dk.seed != [64]byte{} || dk.ek.h != [32]byte{} {
		t.Errorf("z, seed or h survived Destroy")
	}
	if _, ok := dk.Seed(); ok {
		t.Errorf("destroyed key reports a seed")
	}
	// The encapsulation key handed out earlier is independent.
	if _, _, err := ek.Encapsulate(nil); err != nil {
		t.Error(err)
	}
}

func TestOutputsAreFresh(t *testing.T) {
	dk, err := GenerateKey(MLKEM768, nil)
	if err != nil {
		t.Fatal(err)
	}
	ek := dk.EncapsulationKey()
	b := ek.Bytes()
	b[0] ^= 0xff
	if bytes.Equal(b, ek.Bytes()) {
		t.Errorf("Bytes returned an aliased slice")
	}

	K, c, err := ek.Encapsulate(nil)
	if err != nil {
		t.Fatal(err)
	}
	K1, err := dk.Decapsulate(c)
	if err != nil {
		t.Fatal(err)
	}
	K1[0] ^= 0xff
	K2, err := dk.Decapsulate(c)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(K, K2) {
		t.Errorf("shared key changed after the caller modified a previous one")
	}
}

// Known-answer values for d = 00 01 … 1f, z = 20 … 3f and m = 40 … 5f.
// Keys and ciphertexts are checked through their SHA3-256 digests.
var fixedVectors = []struct {
	p                      *ParameterSet
	ekPrefix               string
	ekHash, dkHash, cHash  string
	sharedKey, rejectedKey string
}{
	{
		p:           MLKEM512,
		ekPrefix:    "3995815e597d1043",
		ekHash:      "82f101ff648063b376e2bb6c5b7455f655a50c2feadade150efa0e0e6f365aea",
		dkHash:      "0bd3f5df01098ac9c29d687c7f1bd0588a5573feeef8f1e3b4573fa7f6ab57c8",
		cHash:       "e3fdddb90255869185c07cdf1c1880b2efe08b6f04da4997b693c0dea61503bd",
		sharedKey:   "14cace3e48771b316676afad2cfcfe8488daaa4fad954e57236caa3f24a42cf7",
		rejectedKey: "32ee1fb3f7bd2915218e9c1b2d0d2da88f0edce6804278bab3a6123c5bb64fc4",
	},
	{
		p:           MLKEM768,
		ekPrefix:    "298aa10d423c8dda",
		ekHash:      "a24e16d8f8f9383a95b77050f4d9fd2f5733eec1d63ef3c23ebf9918173669a7",
		dkHash:      "1149f17c3c4ac6ab1e3e2d9d8bd0171355ac0fa31bb8855c48ceade874c0864b",
		cHash:       "b4cfbd24cef67afd3764276c6980e0f88f8e9ca57f59b7f12fe1a9c1e72f4710",
		sharedKey:   "9cddd089ffe70e3996e76f7c8d06746df34d07e8657bc0fcf2bb0e1c3084aea1",
		rejectedKey: "dcfc80c6db46ff7028e3a4398651c063ae7a42c107a6dc8cb07141861698ab92",
	},
	{
		p:           MLKEM1024,
		ekPrefix:    "4b94c29450111191",
		ekHash:      "61349e5c131a7e116a0463861d7d18663c5627c38c7147ddaadfd48acd7a4535",
		dkHash:      "f0db5d938027fcd9bad87847d52c14cf0c4abcf0703b749793f212111ffb303b",
		cHash:       "c1579fa02c614f3762b2a799b51e41cebb8f820f34fa736af02c56de2460ce3c",
		sharedKey:   "0ad8d1ea1b8dd788979b4379581218df9321bdce5567eca42ae6be7d395f1a54",
		rejectedKey: "8f2c880890996c587aa500cf8b6da03372de706a9f96075744bb0956ea6fbaac",
	},
}

func TestFixedVectors(t *testing.T) {
	seq := make([]byte, 96)
	for i := range seq {
		seq[i] = byte(i)
	}
	d, z, m := seq[:32], seq[32:64], seq[64:]
	digest := func(b []byte) string {
		h := keccak.Sum256(b)
		return hex.EncodeToString(h[:])
	}

	for _, tt := range fixedVectors {
		t.Run(tt.p.Name(), func(t *testing.T) {
			dk, err := NewDecapsulationKeyFromSeeds(tt.p, d, z)
			if err != nil {
				t.Fatal(err)
			}
			ek := dk.EncapsulationKey().Bytes()
			if got := hex.EncodeToString(ek[:8]); got != tt.ekPrefix {
				t.Errorf("ek starts with %s, expected %s", got, tt.ekPrefix)
			}
			if got := digest(ek); got != tt.ekHash {
				t.Errorf("H(ek) = %s, expected %s", got, tt.ekHash)
			}
			if got := digest(dk.Bytes()); got != tt.dkHash {
				t.Errorf("H(dk) = %s, expected %s", got, tt.dkHash)
			}

			K, c, err := dk.EncapsulationKey().EncapsulateDerand(m)
			if err != nil {
				t.Fatal(err)
			}
			if got := digest(c); got != tt.cHash {
				t.Errorf("H(c) = %s, expected %s", got, tt.cHash)
			}
			if got := hex.EncodeToString(K); got != tt.sharedKey {
				t.Errorf("K = %s, expected %s", got, tt.sharedKey)
			}
			Kd, err := dk.Decapsulate(c)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(K, Kd) {
				t.Errorf("decapsulated K = %x", Kd)
			}

			c[0] ^= 1
			Kr, err := dk.Decapsulate(c)
			if err != nil {
				t.Fatal(err)
			}
			if got := hex.EncodeToString(Kr); got != tt.rejectedKey {
				t.Errorf("rejected K = %s, expected %s", got, tt.rejectedKey)
			}
		})
	}
}

var longFlag = flag.Bool("long", false, "run the 1000 iteration accumulated vectors")

// TestAccumulated runs key generation, encapsulation and decapsulation on
// inputs drawn from SHAKE128(""), including random ciphertexts that exercise
// implicit rejection, and checks the SHAKE128 hash of all the outputs.
func TestAccumulated(t *testing.T) {
	for _, tt := range []struct {
		p           *ParameterSet
		short, long string
	}{
		{MLKEM512,
			"449120c6e320ef3e9fbfa2316e5f2d2e1e6dd37d8ff5d086d5d2db7d42aff0a1",
			"9144b1054d29546b0f7fdd2e48dbb6d68c573dd468845c5e97eb2dba77a8f1e9"},
		{MLKEM768,
			"8d65b902f28edc683cebee2872962fd165a4d197c9e24ec74caa4470270df0b7",
			"5706194c22e3e0977b570e636de7364abce0609b341433cc4eb48062080b7c76"},
		{MLKEM1024,
			"c3ffe9ebecfa479c142656cbfbc6417efa05b77e994fe538eef4daed166363df",
			"df23d235ef494a38b2de2deda2704bb1312dd88ef6987ec4fc6f08fe5963ed7f"},
	} {
		t.Run(tt.p.Name(), func(t *testing.T) {
			n, expected := 100, tt.short
			if *longFlag {
				n, expected = 1000, tt.long
			}

			s := sha3.NewShake128()
			o := sha3.NewShake128()
			d := make([]byte, 32)
			z := make([]byte, 32)
			msg := make([]byte, 32)
			ct1 := make([]byte, tt.p.CiphertextSize())

			for i := 0; i < n; i++ {
				s.Read(d)
				s.Read(z)
				dk, err := NewDecapsulationKeyFromSeeds(tt.p, d, z)
				if err != nil {
					t.Fatal(err)
				}
				ek := dk.EncapsulationKey()
				o.Write(ek.Bytes())
				o.Write(dk.Bytes())

				s.Read(msg)
				k, ct, err := ek.EncapsulateDerand(msg)
				if err != nil {
					t.Fatal(err)
				}
				o.Write(ct)
				o.Write(k)

				kk, err := dk.Decapsulate(ct)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(kk, k) {
					t.Errorf("k: got %x, expected %x", kk, k)
				}

				s.Read(ct1)
				k1, err := dk.Decapsulate(ct1)
				if err != nil {
					t.Fatal(err)
				}
				o.Write(k1)
			}

			got := hex.EncodeToString(o.Sum(nil))
			if got != expected {
				t.Errorf("got %s, expected %s", got, expected)
			}
		})
	}
}

var sink byte

func BenchmarkKeyGen(b *testing.B) {
	d := make([]byte, 32)
	rand.Read(d)
	z := make([]byte, 32)
	rand.Read(z)
	for _, p := range ParameterSets() {
		b.Run(p.Name(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				dk, err := NewDecapsulationKeyFromSeeds(p, d, z)
				if err != nil {
					b.Fatal(err)
				}
				sink ^= dk.ek.h[0]
			}
		})
	}
}

func BenchmarkEncaps(b *testing.B) {
	m := make([]byte, 32)
	rand.Read(m)
	for _, p := range ParameterSets() {
		b.Run(p.Name(), func(b *testing.B) {
			dk, err := GenerateKey(p, nil)
			if err != nil {
				b.Fatal(err)
			}
			ek, err := NewEncapsulationKey(p, dk.EncapsulationKey().Bytes())
			if err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				K, c, err := ek.EncapsulateDerand(m)
				if err != nil {
					b.Fatal(err)
				}
				sink ^= c[0] ^ K[0]
			}
		})
	}
}

func BenchmarkDecaps(b *testing.B) {
	for _, p := range ParameterSets() {
		b.Run(p.Name(), func(b *testing.B) {
			dk, err := GenerateKey(p, nil)
			if err != nil {
				b.Fatal(err)
			}
			_, c, err := dk.EncapsulationKey().Encapsulate(nil)
			if err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				K, err := dk.Decapsulate(c)
				if err != nil {
					b.Fatal(err)
				}
				sink ^= K[0]
			}
		})
	}
}

func BenchmarkRoundTrip(b *testing.B) {
	for i := 0; i < b.N; i++ {
		dk, err := GenerateKey(MLKEM768, nil)
		if err != nil {
			b.Fatal(err)
		}
		Ke, c, err := dk.EncapsulationKey().Encapsulate(nil)
		if err != nil {
			b.Fatal(err)
		}
		Kd, err := dk.Decapsulate(c)
		if err != nil {
			b.Fatal(err)
		}
		if !bytes.Equal(Ke, Kd) {
			b.Fail()
		}
	}
}
