// Package storage keeps serialized radix ciphertexts addressed by the hash
// of their content.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Common errors.
var (
	ErrNotFound      = errors.New("ciphertext not found")
	ErrStorageFull   = errors.New("storage capacity exceeded")
	ErrInvalidHandle = errors.New("invalid ciphertext handle")
)

// Handle is the hex sha256 of a stored blob.
type Handle string

// ComputeHandle returns the handle data is stored under.
func ComputeHandle(data []byte) Handle {
	sum := sha256.Sum256(data)
	return Handle(hex.EncodeToString(sum[:]))
}

// Validate reports ErrInvalidHandle unless h is a well-formed handle.
func (h Handle) Validate() error {
	if len(h) != 2*sha256.Size {
		return ErrInvalidHandle
	}
	if _, err := hex.DecodeString(string(h)); err != nil {
		return ErrInvalidHandle
	}
	return nil
}

// Storage is a content-addressed blob store. Storing the same bytes twice
// yields the same handle and keeps one copy.
type Storage interface {
	Store(ctx context.Context, data []byte) (Handle, error)
	Load(ctx context.Context, handle Handle) ([]byte, error)
	Delete(ctx context.Context, handle Handle) error
	Exists(ctx context.Context, handle Handle) (bool, error)
	Close() error
}
