// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhe-integer/integer"
	"github.com/luxfi/fhe-integer/shortint"
)

type fixture struct {
	params shortint.Parameters
	ck     *integer.ClientKey
	sk     *integer.ServerKey
	dev    *HostDevice
	stream Stream
}

func setupTest(t *testing.T, cfg Config) *fixture {
	t.Helper()
	params, err := shortint.NewParametersFromLiteral(shortint.ParamsMessage2Carry2)
	require.NoError(t, err)
	ck, sk := integer.NewKeys(params)

	dev := NewHostDevice(cfg)
	t.Cleanup(func() { _ = dev.Close() })
	stream, err := dev.NewStream()
	require.NoError(t, err)
	return &fixture{params: params, ck: ck, sk: sk, dev: dev, stream: stream}
}

func (f *fixture) encrypt(t *testing.T, v uint64, blocks int) *integer.RadixCiphertext {
	t.Helper()
	ct, err := f.ck.EncryptRadix(v, blocks)
	require.NoError(t, err)
	return ct
}

func (f *fixture) upload(t *testing.T, ct *integer.RadixCiphertext) *RadixCiphertext {
	t.Helper()
	d, err := FromRadixCiphertext(f.params, ct, f.stream)
	require.NoError(t, err)
	return d
}

func mask(blocks int) uint64 {
	if 2*blocks >= 64 {
		return ^uint64(0)
	}
	return 1<<(2*blocks) - 1
}

func TestRoundTrip(t *testing.T) {
	f := setupTest(t, DefaultConfig())
	rng := rand.New(rand.NewSource(7))
	for blocks := 1; blocks <= 32; blocks++ {
		v := rng.Uint64()
		ct := f.encrypt(t, v, blocks)
		d := f.upload(t, ct)
		require.Equal(t, blocks, d.NumBlocks())

		back, err := d.ToRadixCiphertext(f.stream)
		require.NoError(t, err)
		require.Equal(t, v&mask(blocks), f.ck.DecryptRadix(back), "blocks=%d", blocks)
		for i, b := range back.Blocks() {
			orig := ct.Blocks()[i]
			require.Equal(t, orig.Info(), b.Info())
			require.Equal(t, orig.Payload().Value[0].Coeffs[0], b.Payload().Value[0].Coeffs[0])
			require.Equal(t, orig.Payload().Value[1].Coeffs[0], b.Payload().Value[1].Coeffs[0])
		}
		d.Free()
	}
	require.Zero(t, f.dev.MemoryUsed())
}

func TestRoundTripKeepsCarries(t *testing.T) {
	f := setupTest(t, DefaultConfig())
	a := f.encrypt(t, 200, 4)
	f.sk.UncheckedAddAssign(a, f.encrypt(t, 100, 4))
	require.False(t, a.BlockCarriesAreEmpty())

	d := f.upload(t, a)
	defer d.Free()
	require.False(t, d.BlockCarriesAreEmpty())

	back, err := d.ToRadixCiphertext(f.stream)
	require.NoError(t, err)
	require.Equal(t, uint64(44), f.ck.DecryptRadix(back))
	require.NoError(t, f.sk.FullPropagate(back))
	require.Equal(t, uint64(44), f.ck.DecryptRadix(back))
}

func TestDuplicateIsIndependent(t *testing.T) {
	f := setupTest(t, DefaultConfig())
	d := f.upload(t, f.encrypt(t, 123, 4))
	defer d.Free()

	dup, err := d.Duplicate(f.stream)
	require.NoError(t, err)
	defer dup.Free()

	eq, err := d.IsEqual(dup, f.stream)
	require.NoError(t, err)
	require.True(t, eq)

	require.NoError(t, d.CopyFromRadixCiphertext(f.encrypt(t, 7, 4), f.stream))

	eq, err = d.IsEqual(dup, f.stream)
	require.NoError(t, err)
	require.False(t, eq)

	got, err := dup.ToRadixCiphertext(f.stream)
	require.NoError(t, err)
	require.Equal(t, uint64(123), f.ck.DecryptRadix(got))

	got, err = d.ToRadixCiphertext(f.stream)
	require.NoError(t, err)
	require.Equal(t, uint64(7), f.ck.DecryptRadix(got))
}

func TestDuplicateAsync(t *testing.T) {
	f := setupTest(t, DefaultConfig())
	d := f.upload(t, f.encrypt(t, 99, 3))
	defer d.Free()

	dup, err := d.DuplicateAsync(f.stream)
	require.NoError(t, err)
	defer dup.Free()
	require.NoError(t, f.stream.Synchronize())

	got, err := dup.ToRadixCiphertext(f.stream)
	require.NoError(t, err)
	require.Equal(t, uint64(99), f.ck.DecryptRadix(got))
}

func TestCopyFromRadixCiphertext(t *testing.T) {
	f := setupTest(t, DefaultConfig())
	d := f.upload(t, f.encrypt(t, 1, 4))
	defer d.Free()
	used := f.dev.MemoryUsed()
	allocs := f.dev.Stats().Allocations

	dirty := f.encrypt(t, 250, 4)
	f.sk.UncheckedScalarAddAssign(dirty, 255)
	require.NoError(t, d.CopyFromRadixCiphertext(dirty, f.stream))
	require.Equal(t, used, f.dev.MemoryUsed())
	require.Equal(t, allocs, f.dev.Stats().Allocations)
	require.False(t, d.BlockCarriesAreEmpty())

	got, err := d.ToRadixCiphertext(f.stream)
	require.NoError(t, err)
	require.Equal(t, uint64(249), f.ck.DecryptRadix(got))

	require.Panics(t, func() {
		_ = d.CopyFromRadixCiphertext(f.encrypt(t, 1, 5), f.stream)
	})
}

func TestOutOfMemory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemoryBudget = 3 * 2 * 1024 * 8 // three blocks
	f := setupTest(t, cfg)

	d := f.upload(t, f.encrypt(t, 5, 2))
	_, err := FromRadixCiphertext(f.params, f.encrypt(t, 5, 2), f.stream)
	require.ErrorIs(t, err, ErrOutOfMemory)

	_, err = d.Duplicate(f.stream)
	require.ErrorIs(t, err, ErrOutOfMemory)

	d.Free()
	d2 := f.upload(t, f.encrypt(t, 5, 3))
	d2.Free()
	require.Zero(t, f.dev.MemoryUsed())
}

func TestDeviceAdd(t *testing.T) {
	f := setupTest(t, DefaultConfig())
	lhs := f.upload(t, f.encrypt(t, 14, 4))
	defer lhs.Free()
	rhs := f.upload(t, f.encrypt(t, 97, 4))
	defer rhs.Free()

	want := uint64(14)
	steps := 0
	for IsAddPossible(lhs, rhs) {
		require.NoError(t, UncheckedAddAssign(lhs, rhs, f.stream))
		want = (want + 97) % 256
		steps++
	}
	require.Equal(t, 4, steps)

	got, err := lhs.ToRadixCiphertext(f.stream)
	require.NoError(t, err)
	require.Equal(t, want, f.ck.DecryptRadix(got))
	require.Equal(t, shortint.Degree(15), got.Blocks()[0].Degree)
	require.Equal(t, shortint.NoiseLevel(5), got.Blocks()[0].NoiseLevel)
	require.Equal(t, uint64(4), f.dev.Stats().Kernels)
}

func TestStreamErrorsAreSticky(t *testing.T) {
	f := setupTest(t, DefaultConfig())
	buf, err := f.dev.Malloc(8)
	require.NoError(t, err)
	buf.Free()
	buf.Free()

	require.NoError(t, f.stream.CopyToHostAsync(make([]uint64, 8), buf))
	err = f.stream.Synchronize()
	require.ErrorIs(t, err, ErrStream)
	require.ErrorIs(t, err, ErrBufferFreed)

	other, err := f.dev.Malloc(8)
	require.NoError(t, err)
	defer other.Free()
	require.ErrorIs(t, f.stream.CopyToDeviceAsync(other, make([]uint64, 8)), ErrBufferFreed)

	fresh, err := f.dev.NewStream()
	require.NoError(t, err)
	require.NoError(t, fresh.CopyToDeviceAsync(other, make([]uint64, 8)))
	require.NoError(t, fresh.Synchronize())
}

func TestClosedStreamAndDevice(t *testing.T) {
	f := setupTest(t, DefaultConfig())
	require.NoError(t, f.stream.Close())
	require.NoError(t, f.stream.Close())
	require.ErrorIs(t, f.stream.Synchronize(), ErrStreamClosed)

	require.NoError(t, f.dev.Close())
	_, err := f.dev.Malloc(1)
	require.ErrorIs(t, err, ErrDeviceClosed)
	_, err = f.dev.NewStream()
	require.ErrorIs(t, err, ErrDeviceClosed)
}

func TestOpen(t *testing.T) {
	dev, err := Open(DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "host:0", dev.Name())
	require.NoError(t, dev.Close())

	_, err = Open(Config{Backend: BackendCUDA})
	require.ErrorIs(t, err, ErrNoDevice)
	_, err = Open(Config{Backend: "opencl"})
	require.ErrorIs(t, err, ErrNoDevice)
}
