// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package shortint

import (
	"github.com/luxfi/lattice/v7/core/rlwe"
)

// LookupTable is a univariate function on the block value space
// [0, message*carry). Outputs are reduced into the same space.
type LookupTable struct {
	f     func(uint64) uint64
	space uint64
}

// NewLookupTable builds a table for params.
func NewLookupTable(params Parameters, f func(uint64) uint64) *LookupTable {
	return &LookupTable{f: f, space: uint64(params.msg) * uint64(params.carry)}
}

// Eval applies the table to x.
func (lut *LookupTable) Eval(x uint64) uint64 {
	return lut.f(x%lut.space) % lut.space
}

// OutputDegree bounds the output for any input of degree at most in.
func (lut *LookupTable) OutputDegree(in Degree) Degree {
	hi := uint64(in)
	if hi >= lut.space {
		hi = lut.space - 1
	}
	var max uint64
	for x := uint64(0); x <= hi; x++ {
		if v := lut.Eval(x); v > max {
			max = v
		}
	}
	return Degree(max)
}

// Bootstrapper evaluates a lookup table on an encrypted block and returns
// a fresh encryption of the result at nominal noise.
// Implementations must be safe for concurrent use.
type Bootstrapper interface {
	Bootstrap(ct *rlwe.Ciphertext, lut *LookupTable) (*rlwe.Ciphertext, error)
}

// KeyedBootstrapper is a reference Bootstrapper that holds the secret key.
// It decrypts the phase, applies the table and re-encrypts, which yields
// the same output distribution as a blind rotation followed by a key switch.
// It is meant for tests and trusted single-party deployments.
type KeyedBootstrapper struct {
	ck *ClientKey
}

// NewKeyedBootstrapper returns a bootstrapper bound to ck.
func NewKeyedBootstrapper(ck *ClientKey) *KeyedBootstrapper {
	return &KeyedBootstrapper{ck: ck}
}

func (b *KeyedBootstrapper) Bootstrap(ct *rlwe.Ciphertext, lut *LookupTable) (*rlwe.Ciphertext, error) {
	x := b.ck.decryptPhase(ct)
	return b.ck.encryptPhase(lut.Eval(x))
}
