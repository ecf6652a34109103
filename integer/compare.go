// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package integer

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/fhe-integer/shortint"
)

// Block signs, packed two per bootstrap during the reduction.
const (
	signLess    uint64 = 0
	signEqual   uint64 = 1
	signGreater uint64 = 2
)

// cleanAll renormalizes every distinct ciphertext that is not clean,
// concurrently.
func (sk *ServerKey) cleanAll(cts ...*RadixCiphertext) error {
	var g errgroup.Group
	seen := make(map[*RadixCiphertext]bool, len(cts))
	for _, ct := range cts {
		if seen[ct] {
			continue
		}
		seen[ct] = true
		g.Go(func() error { return sk.propagateIfNeeded(ct) })
	}
	return g.Wait()
}

func (sk *ServerKey) assertComparable() {
	p := sk.Parameters()
	msg, carry := uint64(p.MessageModulus()), uint64(p.CarryModulus())
	if carry < msg || 2*msg+signGreater > msg*carry-1 {
		panic(fmt.Sprintf("integer: comparisons need carry >= message and room for block signs (message %d, carry %d)", msg, carry))
	}
}

// blockSigns compares lhs and rhs digit by digit.
func (sk *ServerKey) blockSigns(lhs, rhs *RadixCiphertext) ([]*shortint.Ciphertext, error) {
	signs := make([]*shortint.Ciphertext, len(lhs.blocks))
	g := sk.group()
	for i := range lhs.blocks {
		g.Go(func() error {
			s, err := sk.key.ApplyBivariateLookupTable(lhs.blocks[i], rhs.blocks[i], func(x, y uint64) uint64 {
				switch {
				case x < y:
					return signLess
				case x == y:
					return signEqual
				}
				return signGreater
			})
			if err != nil {
				return fmt.Errorf("block %d sign: %w", i, err)
			}
			signs[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return signs, nil
}

// reduceSigns merges block signs pairwise until one remains. A more
// significant sign wins unless it is equal.
func (sk *ServerKey) reduceSigns(signs []*shortint.Ciphertext) (*shortint.Ciphertext, error) {
	merge := func(hi, lo uint64) uint64 {
		if hi == signEqual {
			return lo
		}
		return hi
	}
	for len(signs) > 1 {
		prefix := len(signs) % 2
		next := make([]*shortint.Ciphertext, prefix+(len(signs)-prefix)/2)
		if prefix == 1 {
			next[0] = signs[0]
		}
		g := sk.group()
		for j := 0; prefix+2*j+1 < len(signs); j++ {
			lo, hi := signs[prefix+2*j], signs[prefix+2*j+1]
			g.Go(func() error {
				s, err := sk.key.ApplyBivariateLookupTable(hi, lo, merge)
				if err != nil {
					return fmt.Errorf("merging signs: %w", err)
				}
				next[prefix+j] = s
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		signs = next
	}
	return signs[0], nil
}

// compare evaluates pred on the sign of lhs - rhs and returns an encrypted
// boolean in block 0 of a radix with the operands' shape.
func (sk *ServerKey) compare(lhs, rhs *RadixCiphertext, pred func(sign uint64) bool) (*RadixCiphertext, error) {
	assertSameShape(lhs, rhs)
	sk.assertComparable()
	if err := sk.cleanAll(lhs, rhs); err != nil {
		return nil, err
	}
	signs, err := sk.blockSigns(lhs, rhs)
	if err != nil {
		return nil, err
	}
	sign, err := sk.reduceSigns(signs)
	if err != nil {
		return nil, err
	}
	lut := shortint.NewLookupTable(sk.Parameters(), func(s uint64) uint64 {
		if pred(s) {
			return 1
		}
		return 0
	})
	bit, err := sk.key.ApplyLookupTable(sign, lut)
	if err != nil {
		return nil, err
	}
	return sk.boolRadix(bit, len(lhs.blocks)), nil
}

// boolRadix places bit in block 0 and trivial zeros above it.
func (sk *ServerKey) boolRadix(bit *shortint.Ciphertext, numBlocks int) *RadixCiphertext {
	blocks := make([]*shortint.Ciphertext, numBlocks)
	blocks[0] = bit
	for i := 1; i < numBlocks; i++ {
		blocks[i] = sk.key.CreateTrivial(0)
	}
	return NewRadixCiphertext(blocks)
}

// SmartEq returns an encryption of lhs == rhs.
func (sk *ServerKey) SmartEq(lhs, rhs *RadixCiphertext) (*RadixCiphertext, error) {
	return sk.compare(lhs, rhs, func(s uint64) bool { return s == signEqual })
}

// SmartGt returns an encryption of lhs > rhs.
func (sk *ServerKey) SmartGt(lhs, rhs *RadixCiphertext) (*RadixCiphertext, error) {
	return sk.compare(lhs, rhs, func(s uint64) bool { return s == signGreater })
}

// SmartGe returns an encryption of lhs >= rhs.
func (sk *ServerKey) SmartGe(lhs, rhs *RadixCiphertext) (*RadixCiphertext, error) {
	return sk.compare(lhs, rhs, func(s uint64) bool { return s != signLess })
}

// SmartLt returns an encryption of lhs < rhs.
func (sk *ServerKey) SmartLt(lhs, rhs *RadixCiphertext) (*RadixCiphertext, error) {
	return sk.compare(lhs, rhs, func(s uint64) bool { return s == signLess })
}

// SmartLe returns an encryption of lhs <= rhs.
func (sk *ServerKey) SmartLe(lhs, rhs *RadixCiphertext) (*RadixCiphertext, error) {
	return sk.compare(lhs, rhs, func(s uint64) bool { return s != signGreater })
}

// SmartSelect returns ifTrue when cond decrypts to 1 and ifFalse when it
// decrypts to 0. cond holds its boolean in block 0 as produced by the
// comparison operators.
func (sk *ServerKey) SmartSelect(cond, ifTrue, ifFalse *RadixCiphertext) (*RadixCiphertext, error) {
	assertSameShape(ifTrue, ifFalse)
	if err := sk.cleanAll(cond, ifTrue, ifFalse); err != nil {
		return nil, err
	}
	c := cond.blocks[0]
	if c.Degree > 1 {
		panic(fmt.Sprintf("integer: select condition is not boolean (degree %d)", c.Degree))
	}

	keep := func(want uint64) func(c, x uint64) uint64 {
		return func(c, x uint64) uint64 {
			if c == want {
				return x
			}
			return 0
		}
	}

	blocks := make([]*shortint.Ciphertext, len(ifTrue.blocks))
	g := sk.group()
	for i := range blocks {
		g.Go(func() error {
			t, err := sk.key.ApplyBivariateLookupTable(c, ifTrue.blocks[i], keep(1))
			if err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
			f, err := sk.key.ApplyBivariateLookupTable(c, ifFalse.blocks[i], keep(0))
			if err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
			sk.key.UncheckedAddAssign(t, f)
			blocks[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewRadixCiphertext(blocks), nil
}

// SmartOverflowingSub returns lhs - rhs together with an encrypted borrow
// flag set when rhs > lhs.
func (sk *ServerKey) SmartOverflowingSub(lhs, rhs *RadixCiphertext) (*RadixCiphertext, *RadixCiphertext, error) {
	borrow, err := sk.SmartLt(lhs, rhs)
	if err != nil {
		return nil, nil, err
	}
	diff, err := sk.SmartSub(lhs, rhs)
	if err != nil {
		return nil, nil, err
	}
	return diff, borrow, nil
}
