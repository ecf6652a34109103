// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package integer

import (
	"fmt"

	"github.com/luxfi/fhe-integer/shortint"
)

// IsAddPossible reports whether lhs+rhs can be computed without
// renormalization. Mismatched shapes panic.
func (sk *ServerKey) IsAddPossible(lhs, rhs *RadixCiphertext) bool {
	assertSameShape(lhs, rhs)
	for i := range lhs.blocks {
		if !sk.key.IsAddPossible(lhs.blocks[i], rhs.blocks[i]) {
			return false
		}
	}
	return true
}

// UncheckedAddAssign computes lhs += rhs blockwise without any check.
func (sk *ServerKey) UncheckedAddAssign(lhs, rhs *RadixCiphertext) {
	assertSameShape(lhs, rhs)
	for i := range lhs.blocks {
		sk.key.UncheckedAddAssign(lhs.blocks[i], rhs.blocks[i])
	}
}

// UncheckedAdd returns lhs + rhs without any check.
func (sk *ServerKey) UncheckedAdd(lhs, rhs *RadixCiphertext) *RadixCiphertext {
	out := lhs.Clone()
	sk.UncheckedAddAssign(out, rhs)
	return out
}

// SmartAdd returns lhs + rhs, renormalizing both operands in place first
// when the addition would overflow a block bound.
func (sk *ServerKey) SmartAdd(lhs, rhs *RadixCiphertext) (*RadixCiphertext, error) {
	if err := sk.prepareAdd(lhs, rhs); err != nil {
		return nil, err
	}
	return sk.UncheckedAdd(lhs, rhs), nil
}

// SmartAddAssign computes lhs += rhs, renormalizing both operands first when
// needed.
func (sk *ServerKey) SmartAddAssign(lhs, rhs *RadixCiphertext) error {
	if err := sk.prepareAdd(lhs, rhs); err != nil {
		return err
	}
	sk.UncheckedAddAssign(lhs, rhs)
	return nil
}

func (sk *ServerKey) prepareAdd(lhs, rhs *RadixCiphertext) error {
	if sk.IsAddPossible(lhs, rhs) {
		return nil
	}
	if err := sk.propagateBoth("add", lhs, rhs); err != nil {
		return err
	}
	if !sk.IsAddPossible(lhs, rhs) {
		panic("integer: addition of clean operands exceeds the block bounds")
	}
	return nil
}

// negInfos simulates a negation on the metadata of ct.
func negInfos(ct *RadixCiphertext) ([]shortint.BlockInfo, bool) {
	out := make([]shortint.BlockInfo, len(ct.blocks))
	var borrow uint64
	for i, b := range ct.blocks {
		info := b.Info()
		if !shortint.NegPossible(info, borrow) {
			return nil, false
		}
		z := shortint.NegCorrection(info.Degree+shortint.Degree(borrow), info.MessageModulus)
		info.Degree = shortint.Degree(z)
		out[i] = info
		borrow = z / uint64(info.MessageModulus)
	}
	return out, true
}

// IsNegPossible reports whether -ct can be computed without renormalization.
func (sk *ServerKey) IsNegPossible(ct *RadixCiphertext) bool {
	_, ok := negInfos(ct)
	return ok
}

// UncheckedNegAssign replaces ct by its two's complement modulo
// message^numBlocks.
func (sk *ServerKey) UncheckedNegAssign(ct *RadixCiphertext) {
	var borrow uint64
	for _, b := range ct.blocks {
		if borrow != 0 {
			sk.key.UncheckedScalarAddAssign(b, borrow)
		}
		borrow = sk.key.UncheckedNegAssignWithCorrection(b)
	}
}

// UncheckedNeg returns -ct.
func (sk *ServerKey) UncheckedNeg(ct *RadixCiphertext) *RadixCiphertext {
	out := ct.Clone()
	sk.UncheckedNegAssign(out)
	return out
}

// SmartNeg returns -ct, renormalizing ct first when needed.
func (sk *ServerKey) SmartNeg(ct *RadixCiphertext) (*RadixCiphertext, error) {
	if err := sk.prepareNeg(ct); err != nil {
		return nil, err
	}
	return sk.UncheckedNeg(ct), nil
}

// SmartNegAssign replaces ct by -ct.
func (sk *ServerKey) SmartNegAssign(ct *RadixCiphertext) error {
	if err := sk.prepareNeg(ct); err != nil {
		return err
	}
	sk.UncheckedNegAssign(ct)
	return nil
}

func (sk *ServerKey) prepareNeg(ct *RadixCiphertext) error {
	if sk.IsNegPossible(ct) {
		return nil
	}
	sk.log.Debug().Str("op", "neg").Int("blocks", ct.NumBlocks()).Msg("renormalizing operands")
	if err := sk.FullPropagate(ct); err != nil {
		return err
	}
	if !sk.IsNegPossible(ct) {
		panic("integer: negation of a clean operand exceeds the block bounds")
	}
	return nil
}

// IsSubPossible reports whether lhs-rhs can be computed without
// renormalization.
func (sk *ServerKey) IsSubPossible(lhs, rhs *RadixCiphertext) bool {
	assertSameShape(lhs, rhs)
	neg, ok := negInfos(rhs)
	if !ok {
		return false
	}
	max := sk.Parameters().MaxNoiseLevel()
	for i, b := range lhs.blocks {
		if !shortint.AddPossible(b.Info(), neg[i], max) {
			return false
		}
	}
	return true
}

// UncheckedSubAssign computes lhs -= rhs as lhs + (-rhs).
func (sk *ServerKey) UncheckedSubAssign(lhs, rhs *RadixCiphertext) {
	sk.UncheckedAddAssign(lhs, sk.UncheckedNeg(rhs))
}

// UncheckedSub returns lhs - rhs.
func (sk *ServerKey) UncheckedSub(lhs, rhs *RadixCiphertext) *RadixCiphertext {
	out := lhs.Clone()
	sk.UncheckedSubAssign(out, rhs)
	return out
}

// SmartSub returns lhs - rhs modulo message^numBlocks.
func (sk *ServerKey) SmartSub(lhs, rhs *RadixCiphertext) (*RadixCiphertext, error) {
	if err := sk.prepareSub(lhs, rhs); err != nil {
		return nil, err
	}
	return sk.UncheckedSub(lhs, rhs), nil
}

// SmartSubAssign computes lhs -= rhs.
func (sk *ServerKey) SmartSubAssign(lhs, rhs *RadixCiphertext) error {
	if err := sk.prepareSub(lhs, rhs); err != nil {
		return err
	}
	sk.UncheckedSubAssign(lhs, rhs)
	return nil
}

func (sk *ServerKey) prepareSub(lhs, rhs *RadixCiphertext) error {
	if sk.IsSubPossible(lhs, rhs) {
		return nil
	}
	if err := sk.propagateBoth("sub", lhs, rhs); err != nil {
		return err
	}
	if !sk.IsSubPossible(lhs, rhs) {
		panic("integer: subtraction of clean operands exceeds the block bounds")
	}
	return nil
}

// scalarDigits decomposes s into n base-message digits.
func (sk *ServerKey) scalarDigits(s uint64, n int) []uint64 {
	msg := uint64(sk.Parameters().MessageModulus())
	digits := make([]uint64, n)
	for i := range digits {
		digits[i] = s % msg
		s /= msg
	}
	return digits
}

// IsScalarAddPossible reports whether ct+s can be computed without
// renormalization.
func (sk *ServerKey) IsScalarAddPossible(ct *RadixCiphertext, s uint64) bool {
	for i, d := range sk.scalarDigits(s, len(ct.blocks)) {
		if !shortint.ScalarAddPossible(ct.blocks[i].Info(), d) {
			return false
		}
	}
	return true
}

// UncheckedScalarAddAssign adds the clear value s to ct.
func (sk *ServerKey) UncheckedScalarAddAssign(ct *RadixCiphertext, s uint64) {
	for i, d := range sk.scalarDigits(s, len(ct.blocks)) {
		sk.key.UncheckedScalarAddAssign(ct.blocks[i], d)
	}
}

// UncheckedScalarAdd returns ct + s.
func (sk *ServerKey) UncheckedScalarAdd(ct *RadixCiphertext, s uint64) *RadixCiphertext {
	out := ct.Clone()
	sk.UncheckedScalarAddAssign(out, s)
	return out
}

// SmartScalarAdd returns ct + s, renormalizing ct first when needed.
func (sk *ServerKey) SmartScalarAdd(ct *RadixCiphertext, s uint64) (*RadixCiphertext, error) {
	if err := sk.prepareScalarAdd(ct, s); err != nil {
		return nil, err
	}
	return sk.UncheckedScalarAdd(ct, s), nil
}

// SmartScalarAddAssign computes ct += s.
func (sk *ServerKey) SmartScalarAddAssign(ct *RadixCiphertext, s uint64) error {
	if err := sk.prepareScalarAdd(ct, s); err != nil {
		return err
	}
	sk.UncheckedScalarAddAssign(ct, s)
	return nil
}

func (sk *ServerKey) prepareScalarAdd(ct *RadixCiphertext, s uint64) error {
	if sk.IsScalarAddPossible(ct, s) {
		return nil
	}
	if err := sk.FullPropagate(ct); err != nil {
		return err
	}
	if !sk.IsScalarAddPossible(ct, s) {
		panic(fmt.Sprintf("integer: adding %d to a clean operand exceeds the block bounds", s))
	}
	return nil
}

// IsSmallScalarMulPossible reports whether every block can be multiplied by
// k without renormalization.
func (sk *ServerKey) IsSmallScalarMulPossible(ct *RadixCiphertext, k uint64) bool {
	for _, b := range ct.blocks {
		if !sk.key.IsScalarMulPossible(b, k) {
			return false
		}
	}
	return true
}

// UncheckedSmallScalarMulAssign multiplies every block by k.
func (sk *ServerKey) UncheckedSmallScalarMulAssign(ct *RadixCiphertext, k uint64) {
	for _, b := range ct.blocks {
		sk.key.UncheckedScalarMulAssign(b, k)
	}
}

// UncheckedSmallScalarMul returns ct * k.
func (sk *ServerKey) UncheckedSmallScalarMul(ct *RadixCiphertext, k uint64) *RadixCiphertext {
	out := ct.Clone()
	sk.UncheckedSmallScalarMulAssign(out, k)
	return out
}

// SmartSmallScalarMul returns ct * k. It panics if k is too large for a
// clean block to absorb.
func (sk *ServerKey) SmartSmallScalarMul(ct *RadixCiphertext, k uint64) (*RadixCiphertext, error) {
	if err := sk.prepareSmallScalarMul(ct, k); err != nil {
		return nil, err
	}
	return sk.UncheckedSmallScalarMul(ct, k), nil
}

// SmartSmallScalarMulAssign computes ct *= k.
func (sk *ServerKey) SmartSmallScalarMulAssign(ct *RadixCiphertext, k uint64) error {
	if err := sk.prepareSmallScalarMul(ct, k); err != nil {
		return err
	}
	sk.UncheckedSmallScalarMulAssign(ct, k)
	return nil
}

func (sk *ServerKey) prepareSmallScalarMul(ct *RadixCiphertext, k uint64) error {
	if sk.IsSmallScalarMulPossible(ct, k) {
		return nil
	}
	if err := sk.FullPropagate(ct); err != nil {
		return err
	}
	if !sk.IsSmallScalarMulPossible(ct, k) {
		panic(fmt.Sprintf("integer: scalar %d too large for a clean block", k))
	}
	return nil
}
