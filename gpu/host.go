// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// HostDevice emulates an accelerator in host memory. Streams run on their
// own goroutine, so queued work is genuinely asynchronous with respect to
// the caller.
type HostDevice struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	used    uint64
	closed  bool
	streams []*hostStream

	allocations   atomic.Uint64
	bytesToDevice atomic.Uint64
	bytesToHost   atomic.Uint64
	kernels       atomic.Uint64
}

var _ Device = (*HostDevice)(nil)

// NewHostDevice creates a host-memory device.
func NewHostDevice(cfg Config) *HostDevice {
	if cfg.StreamDepth <= 0 {
		cfg.StreamDepth = DefaultConfig().StreamDepth
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &HostDevice{
		cfg: cfg,
		log: log.With().Str("device", "host").Int("index", cfg.DeviceIndex).Logger(),
	}
}

func (d *HostDevice) Index() int   { return d.cfg.DeviceIndex }
func (d *HostDevice) Name() string { return fmt.Sprintf("host:%d", d.cfg.DeviceIndex) }

func (d *HostDevice) Malloc(words int) (Buffer, error) {
	if words <= 0 {
		return nil, fmt.Errorf("gpu: invalid allocation of %d words", words)
	}
	size := uint64(words) * 8

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if d.cfg.MemoryBudget != 0 && d.used+size > d.cfg.MemoryBudget {
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			ErrOutOfMemory, size, d.used, d.cfg.MemoryBudget)
	}
	d.used += size
	d.allocations.Add(1)
	d.log.Debug().Uint64("bytes", size).Uint64("used", d.used).Msg("malloc")
	return &hostBuffer{dev: d, data: make([]uint64, words), words: words}, nil
}

func (d *HostDevice) release(words int) {
	size := uint64(words) * 8
	d.mu.Lock()
	d.used -= size
	used := d.used
	d.mu.Unlock()
	d.log.Debug().Uint64("bytes", size).Uint64("used", used).Msg("free")
}

func (d *HostDevice) NewStream() (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	s := &hostStream{
		dev:  d,
		cmds: make(chan command, d.cfg.StreamDepth),
		done: make(chan struct{}),
	}
	go s.loop()
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *HostDevice) MemoryUsed() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}

func (d *HostDevice) Stats() Stats {
	return Stats{
		Backend:       BackendHost,
		DeviceName:    d.Name(),
		MemoryBudget:  d.cfg.MemoryBudget,
		MemoryUsed:    d.MemoryUsed(),
		Allocations:   d.allocations.Load(),
		BytesToDevice: d.bytesToDevice.Load(),
		BytesToHost:   d.bytesToHost.Load(),
		Kernels:       d.kernels.Load(),
	}
}

// Close stops every stream after draining it. Buffers stay readable until
// freed.
func (d *HostDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	streams := d.streams
	d.streams = nil
	d.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	return nil
}

type hostBuffer struct {
	dev   *HostDevice
	mu    sync.RWMutex
	data  []uint64
	words int
}

func (b *hostBuffer) Len() int       { return b.words }
func (b *hostBuffer) Device() Device { return b.dev }

func (b *hostBuffer) Free() {
	b.mu.Lock()
	if b.data == nil {
		b.mu.Unlock()
		return
	}
	b.data = nil
	b.mu.Unlock()
	b.dev.release(b.words)
}

// snapshot copies the buffer contents out.
func (b *hostBuffer) snapshot() ([]uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil, ErrBufferFreed
	}
	out := make([]uint64, len(b.data))
	copy(out, b.data)
	return out, nil
}

// update runs f on the buffer contents under the write lock.
func (b *hostBuffer) update(f func(data []uint64)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return ErrBufferFreed
	}
	f(b.data)
	return nil
}

type command struct {
	run   func() error
	fence chan struct{}
}

type hostStream struct {
	dev  *HostDevice
	cmds chan command
	done chan struct{}

	sendMu sync.Mutex
	closed bool

	errMu sync.Mutex
	err   error
}

var _ Stream = (*hostStream)(nil)

func (s *hostStream) loop() {
	defer close(s.done)
	for cmd := range s.cmds {
		if cmd.fence != nil {
			close(cmd.fence)
			continue
		}
		if s.failed() != nil {
			continue
		}
		if err := cmd.run(); err != nil {
			s.errMu.Lock()
			s.err = fmt.Errorf("%w: %w", ErrStream, err)
			s.errMu.Unlock()
			s.dev.log.Error().Err(err).Msg("stream command failed")
		}
	}
}

func (s *hostStream) failed() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *hostStream) submit(cmd command) error {
	if err := s.failed(); err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.cmds <- cmd
	return nil
}

func (s *hostStream) buffer(b Buffer) *hostBuffer {
	hb, ok := b.(*hostBuffer)
	if !ok || hb.dev != s.dev {
		panic("gpu: buffer does not belong to this stream's device")
	}
	return hb
}

func (s *hostStream) Device() Device { return s.dev }

func (s *hostStream) CopyToDeviceAsync(dst Buffer, src []uint64) error {
	hb := s.buffer(dst)
	if len(src) != hb.words {
		return fmt.Errorf("gpu: copy of %d words into a %d-word buffer", len(src), hb.words)
	}
	return s.submit(command{run: func() error {
		s.dev.bytesToDevice.Add(uint64(len(src)) * 8)
		return hb.update(func(data []uint64) { copy(data, src) })
	}})
}

func (s *hostStream) CopyToHostAsync(dst []uint64, src Buffer) error {
	hb := s.buffer(src)
	if len(dst) != hb.words {
		return fmt.Errorf("gpu: copy of a %d-word buffer into %d words", hb.words, len(dst))
	}
	return s.submit(command{run: func() error {
		data, err := hb.snapshot()
		if err != nil {
			return err
		}
		copy(dst, data)
		s.dev.bytesToHost.Add(uint64(len(dst)) * 8)
		return nil
	}})
}

func (s *hostStream) CopyDeviceAsync(dst, src Buffer) error {
	hd, hs := s.buffer(dst), s.buffer(src)
	if hd.words != hs.words {
		return fmt.Errorf("gpu: device copy between %d and %d words", hs.words, hd.words)
	}
	return s.submit(command{run: func() error {
		data, err := hs.snapshot()
		if err != nil {
			return err
		}
		return hd.update(func(out []uint64) { copy(out, data) })
	}})
}

func (s *hostStream) AddModAsync(dst, src Buffer, q uint64) error {
	hd, hs := s.buffer(dst), s.buffer(src)
	if hd.words != hs.words {
		return fmt.Errorf("gpu: add between %d and %d words", hs.words, hd.words)
	}
	return s.submit(command{run: func() error {
		s.dev.kernels.Add(1)
		rhs, err := hs.snapshot()
		if err != nil {
			return err
		}
		return hd.update(func(out []uint64) {
			for i := range out {
				v := out[i] + rhs[i]
				if v >= q {
					v -= q
				}
				out[i] = v
			}
		})
	}})
}

func (s *hostStream) Synchronize() error {
	fence := make(chan struct{})
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return ErrStreamClosed
	}
	s.cmds <- command{fence: fence}
	s.sendMu.Unlock()
	<-fence
	return s.failed()
}

func (s *hostStream) Close() error {
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.cmds)
	s.sendMu.Unlock()
	<-s.done
	return nil
}
