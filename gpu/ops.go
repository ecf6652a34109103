// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/luxfi/fhe-integer/shortint"
)

// IsAddPossible reports whether lhs+rhs stays within degree and noise
// bounds on every block.
func IsAddPossible(lhs, rhs *RadixCiphertext) bool {
	assertSameShape(lhs, rhs)
	max := lhs.params.MaxNoiseLevel()
	for i := range lhs.Info.Blocks {
		if !shortint.AddPossible(lhs.Info.Blocks[i], rhs.Info.Blocks[i], max) {
			return false
		}
	}
	return true
}

// UncheckedAddAssign computes lhs += rhs on the device and waits for the
// kernel to finish.
func UncheckedAddAssign(lhs, rhs *RadixCiphertext, stream Stream) error {
	assertSameShape(lhs, rhs)
	if err := stream.AddModAsync(lhs.buf, rhs.buf, lhs.params.Q()); err != nil {
		return err
	}
	if err := stream.Synchronize(); err != nil {
		return err
	}
	for i := range lhs.Info.Blocks {
		l, r := &lhs.Info.Blocks[i], rhs.Info.Blocks[i]
		l.Degree += r.Degree
		l.NoiseLevel = l.NoiseLevel.Add(r.NoiseLevel)
	}
	return nil
}

func assertSameShape(lhs, rhs *RadixCiphertext) {
	if lhs.NumBlocks() != rhs.NumBlocks() || lhs.stride != rhs.stride {
		panic(fmt.Sprintf("gpu: shape mismatch: %d blocks of %d words vs %d blocks of %d words",
			lhs.NumBlocks(), lhs.stride, rhs.NumBlocks(), rhs.stride))
	}
	lhs.Info.Blocks[0].AssertCompatible(rhs.Info.Blocks[0])
}
