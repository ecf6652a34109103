// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package integer

import (
	"fmt"

	"github.com/luxfi/fhe-integer/shortint"
)

// FullPropagate renormalizes ct in place: afterwards every block holds a
// single message digit at nominal noise and the radix value is unchanged
// modulo message^numBlocks. The carry out of the last block is discarded.
//
// Message and carry of every block are first extracted in parallel; each
// carry is then folded into the next block, and a final LSB to MSB pass
// resolves the carries this folding can create.
func (sk *ServerKey) FullPropagate(ct *RadixCiphertext) error {
	n := len(ct.blocks)
	msgs := make([]*shortint.Ciphertext, n)
	carries := make([]*shortint.Ciphertext, n)

	g := sk.group()
	for i, b := range ct.blocks {
		g.Go(func() error {
			m, err := sk.key.MessageExtract(b)
			if err != nil {
				return fmt.Errorf("block %d message: %w", i, err)
			}
			msgs[i] = m
			if i == n-1 {
				return nil
			}
			c, err := sk.key.CarryExtract(b)
			if err != nil {
				return fmt.Errorf("block %d carry: %w", i, err)
			}
			carries[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := 1; i < n; i++ {
		sk.key.UncheckedAddAssign(msgs[i], carries[i-1])
	}

	// msg+carry-2 <= msg*carry-1, so every block is still in range here
	var carry *shortint.Ciphertext
	for i := 1; i < n; i++ {
		b := msgs[i]
		if carry != nil {
			sk.key.UncheckedAddAssign(b, carry)
			carry = nil
		}
		if b.IsClean() {
			continue
		}
		if i < n-1 && !b.CarryIsEmpty() {
			c, err := sk.key.CarryExtract(b)
			if err != nil {
				return fmt.Errorf("block %d carry: %w", i, err)
			}
			carry = c
		}
		m, err := sk.key.MessageExtract(b)
		if err != nil {
			return fmt.Errorf("block %d message: %w", i, err)
		}
		msgs[i] = m
	}

	ct.blocks = msgs
	return nil
}

// FullPropagateParallelized is FullPropagate; the extraction phase always
// runs in parallel.
func (sk *ServerKey) FullPropagateParallelized(ct *RadixCiphertext) error {
	return sk.FullPropagate(ct)
}

// propagateIfNeeded renormalizes ct unless it is already clean.
func (sk *ServerKey) propagateIfNeeded(ct *RadixCiphertext) error {
	if ct.IsClean() {
		return nil
	}
	return sk.FullPropagate(ct)
}
