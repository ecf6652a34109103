package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"
)

// ProfileConfig holds profiling configuration.
type ProfileConfig struct {
	CPUProfile   string
	MemProfile   string
	MutexProfile string
}

// Profiler wraps runtime/pprof.
type Profiler struct {
	config    ProfileConfig
	cpuFile   *os.File
	startTime time.Time
}

func NewProfiler(config ProfileConfig) *Profiler {
	return &Profiler{config: config}
}

// Start begins profiling.
func (p *Profiler) Start() error {
	p.startTime = time.Now()

	if p.config.MutexProfile != "" {
		runtime.SetMutexProfileFraction(1)
	}

	if p.config.CPUProfile != "" {
		f, err := os.Create(p.config.CPUProfile)
		if err != nil {
			return fmt.Errorf("create CPU profile: %w", err)
		}
		p.cpuFile = f
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("start CPU profile: %w", err)
		}
	}
	return nil
}

// Stop ends profiling and writes the profile files.
func (p *Profiler) Stop() error {
	fmt.Printf("Profiling duration: %v\n", time.Since(p.startTime))

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		fmt.Printf("CPU profile written to: %s\n", p.config.CPUProfile)
	}

	if p.config.MemProfile != "" {
		f, err := os.Create(p.config.MemProfile)
		if err != nil {
			return fmt.Errorf("create memory profile: %w", err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("write memory profile: %w", err)
		}
		fmt.Printf("Memory profile written to: %s\n", p.config.MemProfile)
	}

	if p.config.MutexProfile != "" {
		f, err := os.Create(p.config.MutexProfile)
		if err != nil {
			return fmt.Errorf("create mutex profile: %w", err)
		}
		defer f.Close()
		if err := pprof.Lookup("mutex").WriteTo(f, 0); err != nil {
			return fmt.Errorf("write mutex profile: %w", err)
		}
		runtime.SetMutexProfileFraction(0)
		fmt.Printf("Mutex profile written to: %s\n", p.config.MutexProfile)
	}
	return nil
}

func printMemStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Printf("Memory Statistics:\n")
	fmt.Printf("  Alloc:       %d MB\n", m.Alloc/1024/1024)
	fmt.Printf("  TotalAlloc:  %d MB\n", m.TotalAlloc/1024/1024)
	fmt.Printf("  Sys:         %d MB\n", m.Sys/1024/1024)
	fmt.Printf("  NumGC:       %d\n", m.NumGC)
}

// timeOp runs f n times and prints the average.
func timeOp(name string, n int, f func() error) error {
	start := time.Now()
	for i := 0; i < n; i++ {
		if err := f(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	d := time.Since(start)
	fmt.Printf("%-28s %v total, %v/op\n", name, d, d/time.Duration(n))
	return nil
}
