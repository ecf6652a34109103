// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package shortint implements single-block TFHE ciphertexts: the encrypted
// digits a radix integer is made of, their metadata bookkeeping and the
// block-level primitives (linear operations and programmable bootstrapping).
package shortint

import (
	"fmt"

	"github.com/luxfi/lattice/v7/core/rlwe"
)

// ParametersLiteral is a user-facing description of a block parameter set.
type ParametersLiteral struct {
	LogN           int    // log2 of the ring dimension holding one block
	Q              uint64 // ciphertext modulus
	MessageModulus MessageModulus
	CarryModulus   CarryModulus
	MaxNoiseLevel  MaxNoiseLevel
	PBSOrder       PBSOrder
}

// ParamsMessage2Carry2 holds 2 bits of message and 2 bits of carry per block.
var ParamsMessage2Carry2 = ParametersLiteral{
	LogN:           10,
	Q:              0x7fff801,
	MessageModulus: 4,
	CarryModulus:   4,
	MaxNoiseLevel:  5,
	PBSOrder:       KeyswitchBootstrap,
}

// Parameters is a validated parameter set.
type Parameters struct {
	rlwe     rlwe.Parameters
	msg      MessageModulus
	carry    CarryModulus
	maxNoise MaxNoiseLevel
	order    PBSOrder
	delta    uint64
}

// NewParametersFromLiteral validates lit and instantiates the ring parameters.
func NewParametersFromLiteral(lit ParametersLiteral) (Parameters, error) {
	if !isPowerOfTwo(uint64(lit.MessageModulus)) || lit.MessageModulus < 2 {
		return Parameters{}, fmt.Errorf("message modulus %d must be a power of two >= 2", lit.MessageModulus)
	}
	if !isPowerOfTwo(uint64(lit.CarryModulus)) || lit.CarryModulus < 2 {
		return Parameters{}, fmt.Errorf("carry modulus %d must be a power of two >= 2", lit.CarryModulus)
	}
	if lit.MaxNoiseLevel < MaxNoiseLevel(NoiseNominal) {
		return Parameters{}, fmt.Errorf("max noise level %d below nominal", lit.MaxNoiseLevel)
	}

	// one padding bit above message and carry
	space := 2 * uint64(lit.MessageModulus) * uint64(lit.CarryModulus)
	delta := lit.Q / space
	if delta < 1<<10 {
		return Parameters{}, fmt.Errorf("modulus %#x leaves no noise margin for a %d-value space", lit.Q, space)
	}

	p, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    lit.LogN,
		Q:       []uint64{lit.Q},
		NTTFlag: true,
	})
	if err != nil {
		return Parameters{}, fmt.Errorf("ring parameters: %w", err)
	}

	return Parameters{
		rlwe:     p,
		msg:      lit.MessageModulus,
		carry:    lit.CarryModulus,
		maxNoise: lit.MaxNoiseLevel,
		order:    lit.PBSOrder,
		delta:    delta,
	}, nil
}

// MustParameters is NewParametersFromLiteral for package-level literals.
func MustParameters(lit ParametersLiteral) Parameters {
	p, err := NewParametersFromLiteral(lit)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Parameters) MessageModulus() MessageModulus { return p.msg }
func (p Parameters) CarryModulus() CarryModulus     { return p.carry }
func (p Parameters) MaxNoiseLevel() MaxNoiseLevel   { return p.maxNoise }
func (p Parameters) PBSOrder() PBSOrder             { return p.order }

// MaxDegree is the largest value a block may hold before it overflows into
// the padding bit.
func (p Parameters) MaxDegree() Degree {
	return Degree(uint64(p.msg)*uint64(p.carry) - 1)
}

// N returns the ring dimension of a block payload.
func (p Parameters) N() int { return p.rlwe.N() }

// Q returns the ciphertext modulus.
func (p Parameters) Q() uint64 { return p.rlwe.Q()[0] }

// Delta returns the scaling factor between a block value and its encoding.
func (p Parameters) Delta() uint64 { return p.delta }

// RLWE exposes the underlying ring parameters.
func (p Parameters) RLWE() rlwe.Parameters { return p.rlwe }

// Check reports whether ct was produced under p: same moduli and PBS
// order, a degree within MaxDegree, and a level-0 degree-1 payload over
// this ring in the NTT domain.
func (p Parameters) Check(ct *Ciphertext) error {
	b := ct.BlockInfo
	switch {
	case b.MessageModulus != p.msg || b.CarryModulus != p.carry:
		return fmt.Errorf("moduli %d/%d, want %d/%d", b.MessageModulus, b.CarryModulus, p.msg, p.carry)
	case b.PBSOrder != p.order:
		return fmt.Errorf("pbs order %s, want %s", b.PBSOrder, p.order)
	case b.Degree > p.MaxDegree():
		return fmt.Errorf("degree %d above %d", b.Degree, p.MaxDegree())
	}
	pl := ct.ct
	if pl.Degree() != 1 || pl.Level() != 0 || !pl.IsNTT || len(pl.Value) != 2 {
		return fmt.Errorf("payload is not a level-0 degree-1 NTT ciphertext")
	}
	for _, v := range pl.Value {
		if v.N() != p.N() || len(v.Coeffs) != 1 {
			return fmt.Errorf("payload ring dimension %d, want %d", v.N(), p.N())
		}
	}
	return nil
}

// emptyInfo is the metadata of a block holding nothing.
func (p Parameters) emptyInfo() BlockInfo {
	return BlockInfo{
		Degree:         0,
		NoiseLevel:     NoiseZero,
		MessageModulus: p.msg,
		CarryModulus:   p.carry,
		PBSOrder:       p.order,
	}
}

func isPowerOfTwo(x uint64) bool {
	return x != 0 && x&(x-1) == 0
}
