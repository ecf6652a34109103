// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package integer

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/fhe-integer/shortint"
)

// ServerKey is the arithmetic engine. It holds no mutable state and may be
// shared by any number of goroutines. Operands passed to a smart operator
// may be renormalized in place, so a ciphertext must not be handed to two
// concurrent operations.
type ServerKey struct {
	key         *shortint.ServerKey
	parallelism int
	log         zerolog.Logger
}

// Option configures a ServerKey.
type Option func(*ServerKey)

// WithLogger sets the logger used for renormalization and reduction events.
func WithLogger(l zerolog.Logger) Option {
	return func(sk *ServerKey) { sk.log = l }
}

// WithParallelism bounds the number of goroutines a single fan-out may use.
// Values below 1 mean GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(sk *ServerKey) { sk.parallelism = n }
}

// NewServerKey builds an engine over a block server key.
func NewServerKey(key *shortint.ServerKey, opts ...Option) *ServerKey {
	sk := &ServerKey{
		key: key,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(sk)
	}
	if sk.parallelism < 1 {
		sk.parallelism = runtime.GOMAXPROCS(0)
	}
	return sk
}

// NewKeys generates a matching client/server key pair using the keyed
// reference bootstrapper.
func NewKeys(params shortint.Parameters, opts ...Option) (*ClientKey, *ServerKey) {
	ck := shortint.NewClientKey(params)
	return NewClientKey(ck), NewServerKey(shortint.NewServerKey(ck), opts...)
}

// ShortintKey returns the block-level server key.
func (sk *ServerKey) ShortintKey() *shortint.ServerKey { return sk.key }

// Parameters returns the block parameter set.
func (sk *ServerKey) Parameters() shortint.Parameters { return sk.key.Parameters() }

// CreateTrivialRadix returns a noiseless encryption of value.
func (sk *ServerKey) CreateTrivialRadix(value uint64, numBlocks int) *RadixCiphertext {
	msg := uint64(sk.Parameters().MessageModulus())
	blocks := make([]*shortint.Ciphertext, numBlocks)
	for i := range blocks {
		blocks[i] = sk.key.CreateTrivial(value % msg)
		value /= msg
	}
	return NewRadixCiphertext(blocks)
}

// group returns an errgroup bounded by the configured parallelism.
func (sk *ServerKey) group() *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(sk.parallelism)
	return g
}

// propagateBoth renormalizes whichever of lhs and rhs is selected, running
// both at once when both need it.
func (sk *ServerKey) propagateBoth(op string, lhs, rhs *RadixCiphertext) error {
	sk.log.Debug().Str("op", op).Int("blocks", lhs.NumBlocks()).Msg("renormalizing operands")
	if lhs == rhs {
		return sk.FullPropagate(lhs)
	}
	// two goroutines regardless of the configured limit
	var g errgroup.Group
	g.Go(func() error { return sk.FullPropagate(lhs) })
	g.Go(func() error { return sk.FullPropagate(rhs) })
	return g.Wait()
}

// Validate reports an error unless every block of ct was produced under
// this key's parameters. Ciphertexts from untrusted sources must pass it
// before reaching an operator, which panics on malformed metadata.
func (sk *ServerKey) Validate(ct *RadixCiphertext) error {
	p := sk.Parameters()
	for i, b := range ct.blocks {
		if err := p.Check(b); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}
