// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package integer implements encrypted radix integers built from shortint
// blocks, least significant block first, together with the arithmetic
// engine that keeps block carries and noise within bounds.
package integer

import (
	"fmt"

	"github.com/luxfi/fhe-integer/shortint"
)

// RadixCiphertext is an encrypted integer in base message-modulus.
// Block 0 is the least significant digit.
type RadixCiphertext struct {
	blocks []*shortint.Ciphertext
}

// NewRadixCiphertext assembles blocks. All blocks must share moduli and PBS
// order.
func NewRadixCiphertext(blocks []*shortint.Ciphertext) *RadixCiphertext {
	if len(blocks) == 0 {
		panic("integer: radix ciphertext needs at least one block")
	}
	for _, b := range blocks[1:] {
		blocks[0].AssertCompatible(b.BlockInfo)
	}
	return &RadixCiphertext{blocks: blocks}
}

// Blocks returns the blocks, least significant first. The slice is shared.
func (ct *RadixCiphertext) Blocks() []*shortint.Ciphertext { return ct.blocks }

// NumBlocks returns the number of blocks.
func (ct *RadixCiphertext) NumBlocks() int { return len(ct.blocks) }

// Clone returns a deep copy.
func (ct *RadixCiphertext) Clone() *RadixCiphertext {
	blocks := make([]*shortint.Ciphertext, len(ct.blocks))
	for i, b := range ct.blocks {
		blocks[i] = b.Clone()
	}
	return &RadixCiphertext{blocks: blocks}
}

// BlockCarriesAreEmpty reports whether every block has an empty carry.
func (ct *RadixCiphertext) BlockCarriesAreEmpty() bool {
	for _, b := range ct.blocks {
		if !b.CarryIsEmpty() {
			return false
		}
	}
	return true
}

// IsClean reports whether every block has an empty carry and nominal noise.
func (ct *RadixCiphertext) IsClean() bool {
	for _, b := range ct.blocks {
		if !b.IsClean() {
			return false
		}
	}
	return true
}

func (ct *RadixCiphertext) String() string {
	return fmt.Sprintf("radix{blocks=%d clean=%t}", len(ct.blocks), ct.IsClean())
}

// assertSameShape panics unless lhs and rhs can be combined blockwise.
func assertSameShape(lhs, rhs *RadixCiphertext) {
	if len(lhs.blocks) != len(rhs.blocks) {
		panic(fmt.Sprintf("integer: block count mismatch: %d vs %d", len(lhs.blocks), len(rhs.blocks)))
	}
	lhs.blocks[0].AssertCompatible(rhs.blocks[0].BlockInfo)
}
