// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package integer

import (
	"fmt"
	"sync"
)

// BinaryOp combines two radix ciphertexts into a new one. It may
// renormalize its operands in place and must return a non-nil result when
// the error is nil. Method expressions such as (*ServerKey).SmartAdd
// satisfy it.
type BinaryOp func(sk *ServerKey, lhs, rhs *RadixCiphertext) (*RadixCiphertext, error)

// slot is an element of the working set. Borrowed slots point at caller
// ciphertexts and must be copied before being handed back.
type slot struct {
	ct    *RadixCiphertext
	owned bool
}

// SmartBinaryOpSeq folds cts with op as a tournament: each round combines
// disjoint pairs concurrently and halves the working set. When a round
// starts with an odd count, the first element is carried over unchanged.
// op must be associative and commutative; the pairing order inside a round
// is not deterministic.
//
// An empty input yields a nil result. The caller's ciphertexts may be
// renormalized but are never returned: a single input, or a caller
// ciphertext that op hands back as its result, is returned as a copy.
// Input elements must be distinct ciphertexts.
func (sk *ServerKey) SmartBinaryOpSeq(cts []*RadixCiphertext, op BinaryOp) (*RadixCiphertext, error) {
	if len(cts) == 0 {
		return nil, nil
	}

	slots := make([]slot, len(cts))
	for i, ct := range cts {
		slots[i] = slot{ct: ct}
	}

	for round := 0; len(slots) > 1; round++ {
		prefix := len(slots) % 2
		sk.log.Debug().
			Int("round", round).
			Int("slots", len(slots)).
			Int("carried", prefix).
			Msg("reduction round")

		var mu sync.Mutex
		results := make([]slot, 0, len(slots)/2)

		g := sk.group()
		for i := prefix; i < len(slots); i += 2 {
			lhs, rhs := slots[i], slots[i+1]
			g.Go(func() error {
				res, err := op(sk, lhs.ct, rhs.ct)
				if err != nil {
					return err
				}
				if (res == lhs.ct && !lhs.owned) || (res == rhs.ct && !rhs.owned) {
					res = res.Clone()
				}
				mu.Lock()
				results = append(results, slot{ct: res, owned: true})
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("reduction round %d: %w", round, err)
		}

		slots = append(slots[:prefix], results...)
	}

	if last := slots[0]; !last.owned {
		return last.ct.Clone(), nil
	}
	return slots[0].ct, nil
}

// SmartSumSeq adds all elements of cts. It panics on an empty input.
func (sk *ServerKey) SmartSumSeq(cts []*RadixCiphertext) (*RadixCiphertext, error) {
	if len(cts) == 0 {
		panic("integer: sum of an empty sequence")
	}
	return sk.SmartBinaryOpSeq(cts, (*ServerKey).SmartAdd)
}
