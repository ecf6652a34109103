// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package integer

import (
	"fmt"
	"math/big"
	"math/bits"

	"github.com/luxfi/fhe-integer/shortint"
)

// ClientKey encrypts and decrypts radix integers.
type ClientKey struct {
	key *shortint.ClientKey
}

// NewClientKey wraps a block client key.
func NewClientKey(key *shortint.ClientKey) *ClientKey {
	return &ClientKey{key: key}
}

// ShortintKey returns the block-level key.
func (ck *ClientKey) ShortintKey() *shortint.ClientKey { return ck.key }

// Parameters returns the block parameter set.
func (ck *ClientKey) Parameters() shortint.Parameters { return ck.key.Parameters() }

// EncryptRadix encrypts value modulo message^numBlocks.
func (ck *ClientKey) EncryptRadix(value uint64, numBlocks int) (*RadixCiphertext, error) {
	if numBlocks <= 0 {
		return nil, fmt.Errorf("invalid block count %d", numBlocks)
	}
	msg := uint64(ck.key.Parameters().MessageModulus())
	blocks := make([]*shortint.Ciphertext, numBlocks)
	for i := range blocks {
		b, err := ck.key.Encrypt(value % msg)
		if err != nil {
			return nil, fmt.Errorf("encrypting block %d: %w", i, err)
		}
		blocks[i] = b
		value /= msg
	}
	return NewRadixCiphertext(blocks), nil
}

// EncryptRadixBig encrypts a non-negative big integer modulo
// message^numBlocks.
func (ck *ClientKey) EncryptRadixBig(value *big.Int, numBlocks int) (*RadixCiphertext, error) {
	if value.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s", value)
	}
	if numBlocks <= 0 {
		return nil, fmt.Errorf("invalid block count %d", numBlocks)
	}
	msg := new(big.Int).SetUint64(uint64(ck.key.Parameters().MessageModulus()))
	rest := new(big.Int).Set(value)
	digit := new(big.Int)
	blocks := make([]*shortint.Ciphertext, numBlocks)
	for i := range blocks {
		rest.DivMod(rest, msg, digit)
		b, err := ck.key.Encrypt(digit.Uint64())
		if err != nil {
			return nil, fmt.Errorf("encrypting block %d: %w", i, err)
		}
		blocks[i] = b
	}
	return NewRadixCiphertext(blocks), nil
}

// DecryptRadix decrypts ct modulo message^numBlocks, truncated to 64 bits.
// Carries still held in blocks are folded into the result.
func (ck *ClientKey) DecryptRadix(ct *RadixCiphertext) uint64 {
	msg := uint64(ct.blocks[0].MessageModulus)
	var acc uint64
	shift := uint(0)
	for _, b := range ct.blocks {
		if shift >= 64 {
			break
		}
		acc += ck.key.Decrypt(b) << shift
		shift += uint(bits.TrailingZeros64(msg))
	}
	if total := uint(bits.TrailingZeros64(msg)) * uint(len(ct.blocks)); total < 64 {
		acc &= 1<<total - 1
	}
	return acc
}

// DecryptRadixBig decrypts ct modulo message^numBlocks.
func (ck *ClientKey) DecryptRadixBig(ct *RadixCiphertext) *big.Int {
	msg := new(big.Int).SetUint64(uint64(ct.blocks[0].MessageModulus))
	acc := new(big.Int)
	weight := big.NewInt(1)
	for _, b := range ct.blocks {
		v := new(big.Int).SetUint64(ck.key.Decrypt(b))
		acc.Add(acc, v.Mul(v, weight))
		weight.Mul(weight, msg)
	}
	return acc.Mod(acc, weight)
}
