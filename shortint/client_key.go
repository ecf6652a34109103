// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package shortint

import (
	"fmt"
	"sync"

	"github.com/luxfi/lattice/v7/core/rlwe"
)

// ClientKey holds the secret key and encrypts/decrypts blocks.
// It is safe for concurrent use.
type ClientKey struct {
	params Parameters
	sk     *rlwe.SecretKey

	encPool sync.Pool
	decPool sync.Pool
}

// NewClientKey generates a fresh secret key.
func NewClientKey(params Parameters) *ClientKey {
	kgen := rlwe.NewKeyGenerator(params.rlwe)
	return newClientKey(params, kgen.GenSecretKeyNew())
}

func newClientKey(params Parameters, sk *rlwe.SecretKey) *ClientKey {
	ck := &ClientKey{params: params, sk: sk}
	ck.encPool.New = func() any { return rlwe.NewEncryptor(params.rlwe, sk) }
	ck.decPool.New = func() any { return rlwe.NewDecryptor(params.rlwe, sk) }
	return ck
}

// UnmarshalClientKey restores a key produced by MarshalBinary.
func UnmarshalClientKey(params Parameters, data []byte) (*ClientKey, error) {
	sk := rlwe.NewSecretKey(params.rlwe)
	if err := sk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("secret key: %w", err)
	}
	return newClientKey(params, sk), nil
}

// MarshalBinary serializes the secret key.
func (ck *ClientKey) MarshalBinary() ([]byte, error) {
	return ck.sk.MarshalBinary()
}

// Parameters returns the key's parameter set.
func (ck *ClientKey) Parameters() Parameters { return ck.params }

// Encrypt encrypts m mod the message modulus. The resulting degree is
// message-1 and the noise level nominal.
func (ck *ClientKey) Encrypt(m uint64) (*Ciphertext, error) {
	ct, err := ck.encryptPhase(m % uint64(ck.params.msg))
	if err != nil {
		return nil, err
	}
	info := ck.params.emptyInfo()
	info.Degree = Degree(uint64(ck.params.msg) - 1)
	info.NoiseLevel = NoiseNominal
	return NewCiphertext(ct, info), nil
}

// Decrypt returns the full block value, carries included.
func (ck *ClientKey) Decrypt(ct *Ciphertext) uint64 {
	return ck.decryptPhase(ct.ct) % (uint64(ct.MessageModulus) * uint64(ct.CarryModulus))
}

// DecryptMessage returns the block value modulo the message modulus.
func (ck *ClientKey) DecryptMessage(ct *Ciphertext) uint64 {
	return ck.decryptPhase(ct.ct) % uint64(ct.MessageModulus)
}

// encryptPhase encrypts v*delta on the constant coefficient.
func (ck *ClientKey) encryptPhase(v uint64) (*rlwe.Ciphertext, error) {
	p := ck.params.rlwe
	pt := rlwe.NewPlaintext(p, p.MaxLevel())
	pt.Value.Coeffs[0][0] = (v * ck.params.delta) % ck.params.Q()
	p.RingQ().NTT(pt.Value, pt.Value)

	ct := rlwe.NewCiphertext(p, 1, p.MaxLevel())
	enc := ck.encPool.Get().(*rlwe.Encryptor)
	defer ck.encPool.Put(enc)
	if err := enc.Encrypt(pt, ct); err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return ct, nil
}

// decryptPhase rounds the constant coefficient back to the padded value
// space [0, 2*message*carry).
func (ck *ClientKey) decryptPhase(ct *rlwe.Ciphertext) uint64 {
	p := ck.params.rlwe
	pt := rlwe.NewPlaintext(p, ct.Level())
	dec := ck.decPool.Get().(*rlwe.Decryptor)
	dec.Decrypt(ct, pt)
	ck.decPool.Put(dec)
	if pt.IsNTT {
		p.RingQ().INTT(pt.Value, pt.Value)
	}

	delta := ck.params.delta
	space := 2 * uint64(ck.params.msg) * uint64(ck.params.carry)
	c := pt.Value.Coeffs[0][0]
	return ((c + delta/2) / delta) % space
}
