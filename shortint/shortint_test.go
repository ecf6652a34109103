// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package shortint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) (*ClientKey, *ServerKey) {
	t.Helper()
	params, err := NewParametersFromLiteral(ParamsMessage2Carry2)
	require.NoError(t, err)
	ck := NewClientKey(params)
	return ck, NewServerKey(ck)
}

func info(degree Degree, noise NoiseLevel) BlockInfo {
	return BlockInfo{
		Degree:         degree,
		NoiseLevel:     noise,
		MessageModulus: 4,
		CarryModulus:   4,
		PBSOrder:       KeyswitchBootstrap,
	}
}

func TestNoiseLevelSaturates(t *testing.T) {
	require.Equal(t, NoiseLevel(3), NoiseNominal.Add(2))
	require.Equal(t, NoiseUnknown, NoiseUnknown.Add(NoiseNominal))
	require.Equal(t, NoiseUnknown, NoiseLevel(1<<63).Mul(4))
	require.Equal(t, NoiseZero, NoiseUnknown.Mul(0))
	require.False(t, MaxNoiseLevel(5).Allows(NoiseUnknown))
}

func TestBlockPredicates(t *testing.T) {
	clean := info(3, NoiseNominal)
	require.True(t, clean.CarryIsEmpty())
	require.True(t, clean.IsClean())
	require.Equal(t, Degree(15), clean.MaxDegree())

	carried := info(4, NoiseNominal)
	require.False(t, carried.CarryIsEmpty())
	require.False(t, carried.IsClean())

	noisy := info(3, 2)
	require.True(t, noisy.CarryIsEmpty())
	require.False(t, noisy.IsClean())
}

func TestAddPossible(t *testing.T) {
	tests := []struct {
		name     string
		lhs, rhs BlockInfo
		want     bool
	}{
		{"fresh", info(3, 1), info(3, 1), true},
		{"degree at bound", info(12, 1), info(3, 1), true},
		{"degree over bound", info(13, 1), info(3, 1), false},
		{"noise at bound", info(1, 4), info(1, 1), true},
		{"noise over bound", info(1, 4), info(1, 2), false},
		{"unknown noise", info(0, NoiseUnknown), info(0, NoiseZero), false},
		{"trivial operands", info(15, 0), info(0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, AddPossible(tt.lhs, tt.rhs, 5))
		})
	}
}

func TestAddPossiblePanicsOnMismatch(t *testing.T) {
	other := info(0, 1)
	other.CarryModulus = 2
	require.Panics(t, func() { AddPossible(info(0, 1), other, 5) })

	order := info(0, 1)
	order.PBSOrder = BootstrapKeyswitch
	require.Panics(t, func() { AddPossible(info(0, 1), order, 5) })
}

func TestNegCorrection(t *testing.T) {
	require.Equal(t, uint64(0), NegCorrection(0, 4))
	require.Equal(t, uint64(4), NegCorrection(3, 4))
	require.Equal(t, uint64(4), NegCorrection(4, 4))
	require.Equal(t, uint64(8), NegCorrection(5, 4))

	require.True(t, NegPossible(info(3, 1), 1))
	require.False(t, NegPossible(info(13, 1), 0))
	require.False(t, NegPossible(info(15, 1), 1))
}

func TestParametersValidation(t *testing.T) {
	lit := ParamsMessage2Carry2
	lit.MessageModulus = 3
	_, err := NewParametersFromLiteral(lit)
	require.Error(t, err)

	lit = ParamsMessage2Carry2
	lit.Q = 1 << 12
	_, err = NewParametersFromLiteral(lit)
	require.Error(t, err)

	lit = ParamsMessage2Carry2
	lit.CarryModulus = 1
	_, err = NewParametersFromLiteral(lit)
	require.Error(t, err)

	p := MustParameters(ParamsMessage2Carry2)
	require.Equal(t, Degree(15), p.MaxDegree())
	require.Equal(t, 1024, p.N())
	require.Equal(t, p.Q()/32, p.Delta())
}

func TestEncryptDecrypt(t *testing.T) {
	ck, _ := setupTest(t)
	for m := uint64(0); m < 8; m++ {
		ct, err := ck.Encrypt(m)
		require.NoError(t, err)
		require.Equal(t, m%4, ck.Decrypt(ct))
		require.Equal(t, Degree(3), ct.Degree)
		require.Equal(t, NoiseNominal, ct.NoiseLevel)
	}
}

func TestUncheckedLinearOps(t *testing.T) {
	ck, sk := setupTest(t)

	a, err := ck.Encrypt(3)
	require.NoError(t, err)
	b, err := ck.Encrypt(2)
	require.NoError(t, err)

	sum := sk.UncheckedAdd(a, b)
	require.Equal(t, uint64(5), ck.Decrypt(sum))
	require.Equal(t, uint64(1), ck.DecryptMessage(sum))
	require.Equal(t, Degree(6), sum.Degree)
	require.Equal(t, NoiseLevel(2), sum.NoiseLevel)
	require.Equal(t, uint64(3), ck.Decrypt(a), "operands are untouched")

	sk.UncheckedScalarAddAssign(sum, 4)
	require.Equal(t, uint64(9), ck.Decrypt(sum))
	require.Equal(t, Degree(10), sum.Degree)

	c, err := ck.Encrypt(3)
	require.NoError(t, err)
	sk.UncheckedScalarMulAssign(c, 4)
	require.Equal(t, uint64(12), ck.Decrypt(c))
	require.Equal(t, NoiseLevel(4), c.NoiseLevel)

	triv := sk.CreateTrivial(7)
	require.Equal(t, NoiseZero, triv.NoiseLevel)
	require.Equal(t, uint64(7), ck.Decrypt(triv))
}

func TestNegWithCorrection(t *testing.T) {
	ck, sk := setupTest(t)
	for m := uint64(0); m < 4; m++ {
		ct, err := ck.Encrypt(m)
		require.NoError(t, err)
		borrow := sk.UncheckedNegAssignWithCorrection(ct)
		require.Equal(t, uint64(1), borrow)
		require.Equal(t, Degree(4), ct.Degree)
		require.Equal(t, 4-m, ck.Decrypt(ct))
	}
}

func TestLookupTables(t *testing.T) {
	ck, sk := setupTest(t)

	a, err := ck.Encrypt(3)
	require.NoError(t, err)
	b, err := ck.Encrypt(3)
	require.NoError(t, err)
	sum := sk.UncheckedAdd(a, b)

	msg, err := sk.MessageExtract(sum)
	require.NoError(t, err)
	require.Equal(t, uint64(2), ck.Decrypt(msg))
	require.Equal(t, Degree(3), msg.Degree)
	require.True(t, msg.IsClean())

	carry, err := sk.CarryExtract(sum)
	require.NoError(t, err)
	require.Equal(t, uint64(1), ck.Decrypt(carry))
	require.Equal(t, Degree(1), carry.Degree)
}

func TestBivariateLookupTable(t *testing.T) {
	ck, sk := setupTest(t)
	for x := uint64(0); x < 4; x++ {
		for y := uint64(0); y < 4; y++ {
			a, err := ck.Encrypt(x)
			require.NoError(t, err)
			b, err := ck.Encrypt(y)
			require.NoError(t, err)
			out, err := sk.ApplyBivariateLookupTable(a, b, func(x, y uint64) uint64 {
				if x > y {
					return 1
				}
				return 0
			})
			require.NoError(t, err)
			want := uint64(0)
			if x > y {
				want = 1
			}
			require.Equal(t, want, ck.Decrypt(out), "%d > %d", x, y)
		}
	}

	a, err := ck.Encrypt(1)
	require.NoError(t, err)
	b, err := ck.Encrypt(1)
	require.NoError(t, err)
	sk.UncheckedScalarAddAssign(b, 4)
	require.False(t, sk.IsBivariatePossible(a, b))
	require.Panics(t, func() {
		_, _ = sk.ApplyBivariateLookupTable(a, b, func(x, y uint64) uint64 { return x })
	})
}

func TestClientKeyMarshal(t *testing.T) {
	ck, _ := setupTest(t)
	ct, err := ck.Encrypt(2)
	require.NoError(t, err)

	data, err := ck.MarshalBinary()
	require.NoError(t, err)
	restored, err := UnmarshalClientKey(ck.Parameters(), data)
	require.NoError(t, err)
	require.Equal(t, uint64(2), restored.Decrypt(ct))
}

func TestPredicatesDoNotWrap(t *testing.T) {
	saturated := info(math.MaxUint64, NoiseNominal)
	require.False(t, AddPossible(saturated, info(1, NoiseNominal), 5))
	require.False(t, AddPossible(info(1, NoiseNominal), saturated, 5))
	require.False(t, AddPossible(info(3, NoiseNominal), info(math.MaxUint64-2, NoiseNominal), 5))
	require.False(t, ScalarAddPossible(saturated, 1))
	require.False(t, ScalarAddPossible(info(3, NoiseNominal), math.MaxUint64))
	require.False(t, NegPossible(saturated, 1))
	require.False(t, NegPossible(info(3, NoiseNominal), math.MaxUint64))
	require.False(t, ScalarMulPossible(saturated, 2, 5))
}

func TestParametersCheck(t *testing.T) {
	ck, _ := setupTest(t)
	p := ck.Parameters()
	ct, err := ck.Encrypt(3)
	require.NoError(t, err)
	require.NoError(t, p.Check(ct))

	edits := map[string]func(*BlockInfo){
		"message modulus": func(b *BlockInfo) { b.MessageModulus = 0 },
		"carry modulus":   func(b *BlockInfo) { b.CarryModulus = 8 },
		"pbs order":       func(b *BlockInfo) { b.PBSOrder = BootstrapKeyswitch },
		"degree":          func(b *BlockInfo) { b.Degree = 16 },
	}
	for name, edit := range edits {
		t.Run(name, func(t *testing.T) {
			info := ct.Info()
			edit(&info)
			require.Error(t, p.Check(NewCiphertext(ct.Payload(), info)))
		})
	}

	flat := ct.Clone()
	flat.Payload().IsNTT = false
	require.Error(t, p.Check(flat))
}
