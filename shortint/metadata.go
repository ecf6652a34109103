// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package shortint

import (
	"fmt"
	"math"
)

// MessageModulus is the number of distinct message values a block holds.
type MessageModulus uint64

// CarryModulus is the headroom factor above the message space.
type CarryModulus uint64

// Degree is an upper bound on the plaintext value currently held by a block.
type Degree uint64

// NoiseLevel is a unitless noise proxy. Additions sum levels and a bootstrap
// resets the level to NoiseNominal.
type NoiseLevel uint64

const (
	NoiseZero    NoiseLevel = 0
	NoiseNominal NoiseLevel = 1
	NoiseUnknown NoiseLevel = math.MaxUint64
)

// Add returns n+o, saturating at NoiseUnknown.
func (n NoiseLevel) Add(o NoiseLevel) NoiseLevel {
	s := n + o
	if s < n {
		return NoiseUnknown
	}
	return s
}

// Mul returns n*k, saturating at NoiseUnknown.
func (n NoiseLevel) Mul(k uint64) NoiseLevel {
	if k != 0 && uint64(n) > math.MaxUint64/k {
		return NoiseUnknown
	}
	return n * NoiseLevel(k)
}

func (n NoiseLevel) String() string {
	switch n {
	case NoiseZero:
		return "zero"
	case NoiseNominal:
		return "nominal"
	case NoiseUnknown:
		return "unknown"
	}
	return fmt.Sprintf("%d", uint64(n))
}

// MaxNoiseLevel bounds the noise level a block may reach before a bootstrap
// is required.
type MaxNoiseLevel uint64

// Allows reports whether level stays within the bound.
func (m MaxNoiseLevel) Allows(level NoiseLevel) bool {
	return uint64(level) <= uint64(m)
}

// PBSOrder is the key-switch / bootstrap ordering a block expects.
type PBSOrder uint8

const (
	KeyswitchBootstrap PBSOrder = iota
	BootstrapKeyswitch
)

func (o PBSOrder) String() string {
	switch o {
	case KeyswitchBootstrap:
		return "keyswitch-bootstrap"
	case BootstrapKeyswitch:
		return "bootstrap-keyswitch"
	}
	return fmt.Sprintf("PBSOrder(%d)", uint8(o))
}

// BlockInfo is the metadata every block carries next to its payload.
type BlockInfo struct {
	Degree         Degree
	NoiseLevel     NoiseLevel
	MessageModulus MessageModulus
	CarryModulus   CarryModulus
	PBSOrder       PBSOrder
}

// MaxDegree is message*carry - 1.
func (b BlockInfo) MaxDegree() Degree {
	return Degree(uint64(b.MessageModulus)*uint64(b.CarryModulus) - 1)
}

// CarryIsEmpty reports whether the block provably holds nothing above the
// message space.
func (b BlockInfo) CarryIsEmpty() bool {
	return uint64(b.Degree) < uint64(b.MessageModulus)
}

// IsClean reports whether the block has an empty carry and no noise above
// a fresh encryption.
func (b BlockInfo) IsClean() bool {
	return b.CarryIsEmpty() && b.NoiseLevel <= NoiseNominal
}

// AssertCompatible panics unless both blocks share moduli and PBS order.
func (b BlockInfo) AssertCompatible(o BlockInfo) {
	if b.MessageModulus != o.MessageModulus {
		panic(fmt.Sprintf("shortint: message modulus mismatch: %d vs %d", b.MessageModulus, o.MessageModulus))
	}
	if b.CarryModulus != o.CarryModulus {
		panic(fmt.Sprintf("shortint: carry modulus mismatch: %d vs %d", b.CarryModulus, o.CarryModulus))
	}
	if b.PBSOrder != o.PBSOrder {
		panic(fmt.Sprintf("shortint: pbs order mismatch: %s vs %s", b.PBSOrder, o.PBSOrder))
	}
}

// AddPossible reports whether lhs+rhs respects both the degree and the
// noise bound. Incompatible metadata panics.
func AddPossible(lhs, rhs BlockInfo, max MaxNoiseLevel) bool {
	lhs.AssertCompatible(rhs)
	if !fits(uint64(lhs.Degree), uint64(rhs.Degree), uint64(lhs.MaxDegree())) {
		return false
	}
	return max.Allows(lhs.NoiseLevel.Add(rhs.NoiseLevel))
}

// ScalarAddPossible reports whether adding the clear value s stays within
// the degree bound.
func ScalarAddPossible(b BlockInfo, s uint64) bool {
	return fits(uint64(b.Degree), s, uint64(b.MaxDegree()))
}

// fits reports whether a+b <= max without wrapping.
func fits(a, b, max uint64) bool {
	return a <= max && b <= max-a
}

// ScalarMulPossible reports whether multiplying by k stays within both
// bounds.
func ScalarMulPossible(b BlockInfo, k uint64, max MaxNoiseLevel) bool {
	if k != 0 && uint64(b.Degree) > uint64(b.MaxDegree())/k {
		return false
	}
	return max.Allows(b.NoiseLevel.Mul(k))
}

// NegCorrection returns the smallest multiple of the message modulus that
// is at least degree. Negating a block as z - x keeps it non-negative.
func NegCorrection(degree Degree, msg MessageModulus) uint64 {
	m := uint64(msg)
	return (uint64(degree) + m - 1) / m * m
}

// NegPossible reports whether a negation with correction of a block whose
// degree already includes borrow stays within the degree bound.
func NegPossible(b BlockInfo, borrow uint64) bool {
	if !fits(uint64(b.Degree), borrow, uint64(b.MaxDegree())) {
		return false
	}
	d := uint64(b.Degree) + borrow
	return NegCorrection(Degree(d), b.MessageModulus) <= uint64(b.MaxDegree())
}
