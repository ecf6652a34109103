// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"
	"slices"

	"github.com/luxfi/lattice/v7/core/rlwe"

	"github.com/luxfi/fhe-integer/integer"
	"github.com/luxfi/fhe-integer/shortint"
)

// RadixCiphertextInfo is the host-side mirror of the metadata of a
// device-resident radix ciphertext.
type RadixCiphertextInfo struct {
	Blocks []shortint.BlockInfo
}

// BlockCarriesAreEmpty reports whether every block has an empty carry.
func (info RadixCiphertextInfo) BlockCarriesAreEmpty() bool {
	for _, b := range info.Blocks {
		if !b.CarryIsEmpty() {
			return false
		}
	}
	return true
}

func (info RadixCiphertextInfo) clone() RadixCiphertextInfo {
	return RadixCiphertextInfo{Blocks: slices.Clone(info.Blocks)}
}

func infoOf(ct *integer.RadixCiphertext) RadixCiphertextInfo {
	blocks := make([]shortint.BlockInfo, ct.NumBlocks())
	for i, b := range ct.Blocks() {
		blocks[i] = b.Info()
	}
	return RadixCiphertextInfo{Blocks: blocks}
}

// RadixCiphertext is a radix ciphertext whose block payloads live in one
// contiguous device buffer. Block i occupies words [i*stride, (i+1)*stride):
// the N coefficients of the body polynomial followed by the N coefficients
// of the mask polynomial, both in the NTT domain.
//
// The handle exclusively owns its buffer. It is not safe for concurrent use.
type RadixCiphertext struct {
	params shortint.Parameters
	buf    Buffer
	stride int

	Info RadixCiphertextInfo
}

// blockStride is the number of words one block payload occupies.
func blockStride(params shortint.Parameters) int {
	return 2 * params.N()
}

// flatten packs the payloads of ct into host memory in device layout.
func flatten(params shortint.Parameters, ct *integer.RadixCiphertext) ([]uint64, error) {
	n := params.N()
	out := make([]uint64, 0, ct.NumBlocks()*blockStride(params))
	for i, b := range ct.Blocks() {
		p := b.Payload()
		if p.Degree() != 1 || p.Level() != 0 || p.Value[0].N() != n || !p.IsNTT {
			return nil, fmt.Errorf("block %d: payload does not match the device layout", i)
		}
		out = append(out, p.Value[0].Coeffs[0]...)
		out = append(out, p.Value[1].Coeffs[0]...)
	}
	return out, nil
}

// FromRadixCiphertext uploads ct to the stream's device and waits for the
// transfer to complete.
func FromRadixCiphertext(params shortint.Parameters, ct *integer.RadixCiphertext, stream Stream) (*RadixCiphertext, error) {
	host, err := flatten(params, ct)
	if err != nil {
		return nil, err
	}
	buf, err := stream.Device().Malloc(len(host))
	if err != nil {
		return nil, err
	}
	if err := stream.CopyToDeviceAsync(buf, host); err != nil {
		buf.Free()
		return nil, err
	}
	if err := stream.Synchronize(); err != nil {
		buf.Free()
		return nil, err
	}
	return &RadixCiphertext{
		params: params,
		buf:    buf,
		stride: blockStride(params),
		Info:   infoOf(ct),
	}, nil
}

// NumBlocks returns the number of blocks.
func (d *RadixCiphertext) NumBlocks() int { return len(d.Info.Blocks) }

// BlockCarriesAreEmpty reports whether every block has an empty carry,
// from metadata only.
func (d *RadixCiphertext) BlockCarriesAreEmpty() bool {
	return d.Info.BlockCarriesAreEmpty()
}

// CopyFromRadixCiphertext overwrites the device contents with ct without
// reallocating. ct must have the same number of blocks.
func (d *RadixCiphertext) CopyFromRadixCiphertext(ct *integer.RadixCiphertext, stream Stream) error {
	if ct.NumBlocks() != d.NumBlocks() {
		panic(fmt.Sprintf("gpu: refresh with %d blocks into a %d-block ciphertext", ct.NumBlocks(), d.NumBlocks()))
	}
	host, err := flatten(d.params, ct)
	if err != nil {
		return err
	}
	if len(host) != d.buf.Len() {
		panic(fmt.Sprintf("gpu: refresh layout of %d words into a %d-word buffer", len(host), d.buf.Len()))
	}
	if err := stream.CopyToDeviceAsync(d.buf, host); err != nil {
		return err
	}
	if err := stream.Synchronize(); err != nil {
		return err
	}
	d.Info = infoOf(ct)
	return nil
}

// ToRadixCiphertext downloads the ciphertext and waits for the transfer.
func (d *RadixCiphertext) ToRadixCiphertext(stream Stream) (*integer.RadixCiphertext, error) {
	host := make([]uint64, d.buf.Len())
	if err := stream.CopyToHostAsync(host, d.buf); err != nil {
		return nil, err
	}
	if err := stream.Synchronize(); err != nil {
		return nil, err
	}

	p := d.params.RLWE()
	n := d.params.N()
	blocks := make([]*shortint.Ciphertext, d.NumBlocks())
	for i := range blocks {
		words := host[i*d.stride : (i+1)*d.stride]
		ct := rlwe.NewCiphertext(p, 1, 0)
		copy(ct.Value[0].Coeffs[0], words[:n])
		copy(ct.Value[1].Coeffs[0], words[n:])
		ct.IsNTT = true
		blocks[i] = shortint.NewCiphertext(ct, d.Info.Blocks[i])
	}
	return integer.NewRadixCiphertext(blocks), nil
}

// DuplicateAsync is an advanced, unsynchronized primitive; most callers
// want Duplicate.
//
// It enqueues a device-side copy and returns the new handle before the copy
// has run. Until the caller synchronizes the stream, reading, writing or
// freeing either handle is a data race and the new handle's contents are
// undefined. Metadata is copied immediately.
func (d *RadixCiphertext) DuplicateAsync(stream Stream) (*RadixCiphertext, error) {
	buf, err := stream.Device().Malloc(d.buf.Len())
	if err != nil {
		return nil, err
	}
	if err := stream.CopyDeviceAsync(buf, d.buf); err != nil {
		buf.Free()
		return nil, err
	}
	return &RadixCiphertext{
		params: d.params,
		buf:    buf,
		stride: d.stride,
		Info:   d.Info.clone(),
	}, nil
}

// Duplicate returns an independent device copy.
func (d *RadixCiphertext) Duplicate(stream Stream) (*RadixCiphertext, error) {
	dup, err := d.DuplicateAsync(stream)
	if err != nil {
		return nil, err
	}
	if err := stream.Synchronize(); err != nil {
		dup.Free()
		return nil, err
	}
	return dup, nil
}

// IsEqual compares device contents word for word. Metadata is ignored.
// It downloads both ciphertexts and is meant for tests.
func (d *RadixCiphertext) IsEqual(other *RadixCiphertext, stream Stream) (bool, error) {
	if d.buf.Len() != other.buf.Len() {
		return false, nil
	}
	lhs := make([]uint64, d.buf.Len())
	rhs := make([]uint64, other.buf.Len())
	if err := stream.CopyToHostAsync(lhs, d.buf); err != nil {
		return false, err
	}
	if err := stream.CopyToHostAsync(rhs, other.buf); err != nil {
		return false, err
	}
	if err := stream.Synchronize(); err != nil {
		return false, err
	}
	return slices.Equal(lhs, rhs), nil
}

// Free releases the device buffer.
func (d *RadixCiphertext) Free() {
	d.buf.Free()
}
