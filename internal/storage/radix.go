package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/luxfi/lattice/v7/core/rlwe"

	"github.com/luxfi/fhe-integer/integer"
	"github.com/luxfi/fhe-integer/shortint"
)

// radixVersion tags the envelope layout.
const radixVersion = 1

type blockRecord struct {
	Payload        []byte
	Degree         uint64
	NoiseLevel     uint64
	MessageModulus uint64
	CarryModulus   uint64
	PBSOrder       uint8
}

type radixRecord struct {
	Version int
	Blocks  []blockRecord
}

// EncodeRadix serializes ct: block metadata in a gob record, payloads in
// the lattice library's binary format.
func EncodeRadix(ct *integer.RadixCiphertext) ([]byte, error) {
	rec := radixRecord{Version: radixVersion, Blocks: make([]blockRecord, ct.NumBlocks())}
	for i, b := range ct.Blocks() {
		payload, err := b.Payload().MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("block %d payload: %w", i, err)
		}
		rec.Blocks[i] = blockRecord{
			Payload:        payload,
			Degree:         uint64(b.Degree),
			NoiseLevel:     uint64(b.NoiseLevel),
			MessageModulus: uint64(b.MessageModulus),
			CarryModulus:   uint64(b.CarryModulus),
			PBSOrder:       uint8(b.PBSOrder),
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode radix: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRadix restores a ciphertext produced by EncodeRadix.
func DecodeRadix(data []byte) (*integer.RadixCiphertext, error) {
	var rec radixRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode radix: %w", err)
	}
	if rec.Version != radixVersion {
		return nil, fmt.Errorf("decode radix: unsupported version %d", rec.Version)
	}
	if len(rec.Blocks) == 0 {
		return nil, fmt.Errorf("decode radix: no blocks")
	}

	blocks := make([]*shortint.Ciphertext, len(rec.Blocks))
	for i, r := range rec.Blocks {
		ct := new(rlwe.Ciphertext)
		if err := ct.UnmarshalBinary(r.Payload); err != nil {
			return nil, fmt.Errorf("block %d payload: %w", i, err)
		}
		blocks[i] = shortint.NewCiphertext(ct, shortint.BlockInfo{
			Degree:         shortint.Degree(r.Degree),
			NoiseLevel:     shortint.NoiseLevel(r.NoiseLevel),
			MessageModulus: shortint.MessageModulus(r.MessageModulus),
			CarryModulus:   shortint.CarryModulus(r.CarryModulus),
			PBSOrder:       shortint.PBSOrder(r.PBSOrder),
		})
	}
	if err := sameShape(blocks); err != nil {
		return nil, err
	}
	return integer.NewRadixCiphertext(blocks), nil
}

func sameShape(blocks []*shortint.Ciphertext) error {
	first := blocks[0]
	for i, b := range blocks[1:] {
		if b.MessageModulus != first.MessageModulus || b.CarryModulus != first.CarryModulus || b.PBSOrder != first.PBSOrder {
			return fmt.Errorf("decode radix: block %d metadata differs from block 0", i+1)
		}
	}
	return nil
}

// StoreRadix encodes ct and stores it.
func StoreRadix(ctx context.Context, s Storage, ct *integer.RadixCiphertext) (Handle, error) {
	data, err := EncodeRadix(ct)
	if err != nil {
		return "", err
	}
	return s.Store(ctx, data)
}

// LoadRadix loads and decodes the ciphertext stored under h.
func LoadRadix(ctx context.Context, s Storage, h Handle) (*integer.RadixCiphertext, error) {
	data, err := s.Load(ctx, h)
	if err != nil {
		return nil, err
	}
	return DecodeRadix(data)
}
