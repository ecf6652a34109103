// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu moves radix ciphertexts between host memory and an
// accelerator. Devices are reached through a small runtime abstraction:
// memory is allocated per device and every transfer or kernel is queued on
// a stream that executes in submission order.
package gpu

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Runtime errors
var (
	ErrNoDevice     = errors.New("gpu: no accelerator device available")
	ErrOutOfMemory  = errors.New("gpu: device out of memory")
	ErrDeviceClosed = errors.New("gpu: device closed")
	ErrStreamClosed = errors.New("gpu: stream closed")
	ErrBufferFreed  = errors.New("gpu: buffer used after free")
	ErrStream       = errors.New("gpu: stream error")
)

// Device is one accelerator with its own memory.
type Device interface {
	Index() int
	Name() string

	// Malloc allocates a buffer of words 64-bit words.
	Malloc(words int) (Buffer, error)
	NewStream() (Stream, error)

	// MemoryUsed returns the number of bytes currently allocated.
	MemoryUsed() uint64
	Stats() Stats
	Close() error
}

// Buffer is a region of device memory.
type Buffer interface {
	Len() int
	Device() Device
	// Free releases the memory. Commands still queued against the buffer
	// fail with ErrBufferFreed.
	Free()
}

// Stream is an in-order command queue on a device. Async calls only enqueue
// work: host slices handed to them must stay untouched until Synchronize
// returns. Once a command fails the stream stays failed and every later
// call returns the same error.
type Stream interface {
	Device() Device

	CopyToDeviceAsync(dst Buffer, src []uint64) error
	CopyToHostAsync(dst []uint64, src Buffer) error
	CopyDeviceAsync(dst, src Buffer) error

	// AddModAsync computes dst[i] = (dst[i] + src[i]) mod q.
	AddModAsync(dst, src Buffer, q uint64) error

	// Synchronize blocks until every queued command has run.
	Synchronize() error
	Close() error
}

// Stats holds device counters.
type Stats struct {
	Backend       string
	DeviceName    string
	MemoryBudget  uint64
	MemoryUsed    uint64
	Allocations   uint64
	BytesToDevice uint64
	BytesToHost   uint64
	Kernels       uint64
}

// Backend names accepted by Open.
const (
	BackendAuto = "auto"
	BackendHost = "host"
	BackendCUDA = "cuda"
)

// Config holds device configuration.
type Config struct {
	Backend     string
	DeviceIndex int

	// MemoryBudget caps device allocations in bytes (0 = unlimited)
	MemoryBudget uint64

	// StreamDepth is the number of commands a stream buffers before
	// submission blocks.
	StreamDepth int

	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration using whatever backend is available.
func DefaultConfig() Config {
	return Config{
		Backend:      BackendAuto,
		MemoryBudget: 1 << 30,
		StreamDepth:  64,
	}
}

// Open returns a device for cfg. No native accelerator backend is compiled
// into this build, so "auto" resolves to the host backend and explicit
// accelerator backends report ErrNoDevice.
func Open(cfg Config) (Device, error) {
	switch cfg.Backend {
	case BackendAuto, BackendHost, "":
		return NewHostDevice(cfg), nil
	case BackendCUDA:
		return nil, fmt.Errorf("%w: backend %q", ErrNoDevice, cfg.Backend)
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrNoDevice, cfg.Backend)
}
