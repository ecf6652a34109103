// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package shortint

import (
	"fmt"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"
)

// ServerKey evaluates block primitives. It is immutable after construction
// and safe for concurrent use as long as callers do not share a mutable
// block between goroutines.
type ServerKey struct {
	params Parameters
	ringQ  *ring.Ring
	bs     Bootstrapper

	msgLUT   *LookupTable
	carryLUT *LookupTable
}

// NewServerKey derives a server key evaluating bootstraps with the keyed
// reference bootstrapper.
func NewServerKey(ck *ClientKey) *ServerKey {
	return NewServerKeyWithBootstrapper(ck.params, NewKeyedBootstrapper(ck))
}

// NewServerKeyWithBootstrapper binds a custom bootstrapper.
func NewServerKeyWithBootstrapper(params Parameters, bs Bootstrapper) *ServerKey {
	msg := uint64(params.msg)
	return &ServerKey{
		params:   params,
		ringQ:    params.rlwe.RingQ(),
		bs:       bs,
		msgLUT:   NewLookupTable(params, func(x uint64) uint64 { return x % msg }),
		carryLUT: NewLookupTable(params, func(x uint64) uint64 { return x / msg }),
	}
}

// Parameters returns the key's parameter set.
func (sk *ServerKey) Parameters() Parameters { return sk.params }

// CreateTrivial returns a noiseless encryption of v.
func (sk *ServerKey) CreateTrivial(v uint64) *Ciphertext {
	p := sk.params.rlwe
	v %= uint64(sk.params.msg) * uint64(sk.params.carry)
	ct := rlwe.NewCiphertext(p, 1, p.MaxLevel())
	ct.Value[0].Coeffs[0][0] = (v * sk.params.delta) % sk.params.Q()
	sk.ringQ.NTT(ct.Value[0], ct.Value[0])
	ct.IsNTT = true

	info := sk.params.emptyInfo()
	info.Degree = Degree(v)
	return NewCiphertext(ct, info)
}

// IsAddPossible reports whether lhs+rhs stays within degree and noise bounds.
func (sk *ServerKey) IsAddPossible(lhs, rhs *Ciphertext) bool {
	return AddPossible(lhs.BlockInfo, rhs.BlockInfo, sk.params.maxNoise)
}

// IsScalarMulPossible reports whether ct*k stays within bounds.
func (sk *ServerKey) IsScalarMulPossible(ct *Ciphertext, k uint64) bool {
	return ScalarMulPossible(ct.BlockInfo, k, sk.params.maxNoise)
}

// UncheckedAddAssign computes lhs += rhs without checking bounds.
func (sk *ServerKey) UncheckedAddAssign(lhs, rhs *Ciphertext) {
	lhs.AssertCompatible(rhs.BlockInfo)
	sk.ringQ.Add(lhs.ct.Value[0], rhs.ct.Value[0], lhs.ct.Value[0])
	sk.ringQ.Add(lhs.ct.Value[1], rhs.ct.Value[1], lhs.ct.Value[1])
	lhs.Degree += rhs.Degree
	lhs.NoiseLevel = lhs.NoiseLevel.Add(rhs.NoiseLevel)
}

// UncheckedAdd returns lhs + rhs.
func (sk *ServerKey) UncheckedAdd(lhs, rhs *Ciphertext) *Ciphertext {
	out := lhs.Clone()
	sk.UncheckedAddAssign(out, rhs)
	return out
}

// UncheckedScalarAddAssign adds the clear value s to ct.
func (sk *ServerKey) UncheckedScalarAddAssign(ct *Ciphertext, s uint64) {
	if s == 0 {
		return
	}
	sk.addConstant(ct.ct, s)
	ct.Degree += Degree(s)
}

// UncheckedScalarMulAssign multiplies ct by the clear value k.
func (sk *ServerKey) UncheckedScalarMulAssign(ct *Ciphertext, k uint64) {
	sk.ringQ.MulScalar(ct.ct.Value[0], k, ct.ct.Value[0])
	sk.ringQ.MulScalar(ct.ct.Value[1], k, ct.ct.Value[1])
	ct.Degree *= Degree(k)
	ct.NoiseLevel = ct.NoiseLevel.Mul(k)
}

// UncheckedNegAssignWithCorrection replaces ct by z - ct, where z is the
// smallest multiple of the message modulus not below the degree, and
// returns z/message: the amount the next block must give up so the radix
// value is unchanged modulo the full radix modulus.
func (sk *ServerKey) UncheckedNegAssignWithCorrection(ct *Ciphertext) uint64 {
	z := NegCorrection(ct.Degree, ct.MessageModulus)
	sk.ringQ.Neg(ct.ct.Value[0], ct.ct.Value[0])
	sk.ringQ.Neg(ct.ct.Value[1], ct.ct.Value[1])
	if z != 0 {
		sk.addConstant(ct.ct, z)
	}
	ct.Degree = Degree(z)
	return z / uint64(ct.MessageModulus)
}

// ApplyLookupTable bootstraps ct through lut.
func (sk *ServerKey) ApplyLookupTable(ct *Ciphertext, lut *LookupTable) (*Ciphertext, error) {
	out, err := sk.bs.Bootstrap(ct.ct, lut)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	info := ct.BlockInfo
	info.Degree = lut.OutputDegree(ct.Degree)
	info.NoiseLevel = NoiseNominal
	return NewCiphertext(out, info), nil
}

// MessageExtract returns a clean block holding ct mod message.
func (sk *ServerKey) MessageExtract(ct *Ciphertext) (*Ciphertext, error) {
	return sk.ApplyLookupTable(ct, sk.msgLUT)
}

// CarryExtract returns a clean block holding ct / message.
func (sk *ServerKey) CarryExtract(ct *Ciphertext) (*Ciphertext, error) {
	return sk.ApplyLookupTable(ct, sk.carryLUT)
}

// IsBivariatePossible reports whether lhs and rhs can be packed as
// lhs*message + rhs into a single block.
func (sk *ServerKey) IsBivariatePossible(lhs, rhs *Ciphertext) bool {
	lhs.AssertCompatible(rhs.BlockInfo)
	msg := uint64(sk.params.msg)
	if !rhs.CarryIsEmpty() {
		return false
	}
	if uint64(lhs.Degree)*msg+uint64(rhs.Degree) > uint64(sk.params.MaxDegree()) {
		return false
	}
	return sk.params.maxNoise.Allows(lhs.NoiseLevel.Mul(msg).Add(rhs.NoiseLevel))
}

// ApplyBivariateLookupTable evaluates f(lhs, rhs) with a single bootstrap.
// It panics if the operands cannot be packed.
func (sk *ServerKey) ApplyBivariateLookupTable(lhs, rhs *Ciphertext, f func(x, y uint64) uint64) (*Ciphertext, error) {
	if !sk.IsBivariatePossible(lhs, rhs) {
		panic(fmt.Sprintf("shortint: bivariate packing not possible for %s and %s", lhs, rhs))
	}
	msg := uint64(sk.params.msg)
	packed := lhs.Clone()
	sk.UncheckedScalarMulAssign(packed, msg)
	sk.UncheckedAddAssign(packed, rhs)
	lut := NewLookupTable(sk.params, func(x uint64) uint64 { return f(x/msg, x%msg) })
	return sk.ApplyLookupTable(packed, lut)
}

// addConstant adds s*delta to the constant coefficient of ct.
func (sk *ServerKey) addConstant(ct *rlwe.Ciphertext, s uint64) {
	c := sk.ringQ.NewPoly()
	c.Coeffs[0][0] = (s % (2 * uint64(sk.params.msg) * uint64(sk.params.carry)) * sk.params.delta) % sk.params.Q()
	if ct.IsNTT {
		sk.ringQ.NTT(c, c)
	}
	sk.ringQ.Add(ct.Value[0], c, ct.Value[0])
}
