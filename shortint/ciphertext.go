// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package shortint

import (
	"fmt"

	"github.com/luxfi/lattice/v7/core/rlwe"
)

// Ciphertext is one encrypted block: an RLWE ciphertext in the NTT domain
// carrying its value on the constant coefficient, plus metadata.
type Ciphertext struct {
	BlockInfo
	ct *rlwe.Ciphertext
}

// NewCiphertext wraps an existing payload. The payload is not copied.
func NewCiphertext(ct *rlwe.Ciphertext, info BlockInfo) *Ciphertext {
	if ct == nil {
		panic("shortint: nil payload")
	}
	return &Ciphertext{BlockInfo: info, ct: ct}
}

// Payload returns the underlying RLWE ciphertext.
func (c *Ciphertext) Payload() *rlwe.Ciphertext { return c.ct }

// Info returns a copy of the block metadata.
func (c *Ciphertext) Info() BlockInfo { return c.BlockInfo }

// Clone returns a deep copy.
func (c *Ciphertext) Clone() *Ciphertext {
	return &Ciphertext{BlockInfo: c.BlockInfo, ct: c.ct.CopyNew()}
}

func (c *Ciphertext) String() string {
	return fmt.Sprintf("block{degree=%d noise=%s msg=%d carry=%d}",
		c.Degree, c.NoiseLevel, c.MessageModulus, c.CarryModulus)
}
