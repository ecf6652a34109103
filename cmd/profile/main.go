// Command profile runs radix integer workloads under pprof.
//
// Usage:
//
//	go build -o profile ./cmd/profile
//	./profile -cpu=cpu.prof -mem=mem.prof -iterations=20 -op=sum
//
// Analyze profiles:
//
//	go tool pprof -http=:8080 cpu.prof
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"

	"github.com/luxfi/fhe-integer/integer"
	"github.com/luxfi/fhe-integer/shortint"
)

var (
	cpuProfile   = flag.String("cpu", "", "write cpu profile to file")
	memProfile   = flag.String("mem", "", "write memory profile to file")
	mutexProfile = flag.String("mutex", "", "write mutex profile to file")
	iterations   = flag.Int("iterations", 10, "number of iterations for each operation")
	operation    = flag.String("op", "all", "operation to profile: all, add, sub, sum, compare, transfer")
	blocks       = flag.Int("blocks", 4, "blocks per radix ciphertext")
	operands     = flag.Int("operands", 32, "operands for the sum workload")
	parallelism  = flag.Int("parallelism", 0, "block operations in flight (0 = GOMAXPROCS)")
)

type workload struct {
	ck  *integer.ClientKey
	sk  *integer.ServerKey
	rng *rand.Rand
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	params, err := shortint.NewParametersFromLiteral(shortint.ParamsMessage2Carry2)
	if err != nil {
		return err
	}
	var opts []integer.Option
	if *parallelism > 0 {
		opts = append(opts, integer.WithParallelism(*parallelism))
	}
	ck, sk := integer.NewKeys(params, opts...)
	w := &workload{ck: ck, sk: sk, rng: rand.New(rand.NewSource(1))}

	profiler := NewProfiler(ProfileConfig{
		CPUProfile:   *cpuProfile,
		MemProfile:   *memProfile,
		MutexProfile: *mutexProfile,
	})
	if err := profiler.Start(); err != nil {
		return err
	}
	defer profiler.Stop()

	fmt.Printf("Running %d iterations of '%s' on %d blocks\n", *iterations, *operation, *blocks)
	fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	steps := map[string]func() error{
		"add":      w.add,
		"sub":      w.sub,
		"sum":      w.sum,
		"compare":  w.compare,
		"transfer": w.transfer,
	}
	switch f, ok := steps[*operation]; {
	case *operation == "all":
		for _, name := range []string{"add", "sub", "sum", "compare", "transfer"} {
			if err := steps[name](); err != nil {
				return err
			}
		}
	case ok:
		if err := f(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown operation %q", *operation)
	}

	printMemStats()
	return nil
}

func (w *workload) encrypt() (*integer.RadixCiphertext, error) {
	return w.ck.EncryptRadix(w.rng.Uint64(), *blocks)
}

func (w *workload) pair() (*integer.RadixCiphertext, *integer.RadixCiphertext, error) {
	a, err := w.encrypt()
	if err != nil {
		return nil, nil, err
	}
	b, err := w.encrypt()
	return a, b, err
}

func (w *workload) add() error {
	fmt.Println("\n=== Addition ===")
	a, b, err := w.pair()
	if err != nil {
		return err
	}
	if err := timeOp("unchecked add", *iterations, func() error {
		w.sk.UncheckedAdd(a, b)
		return nil
	}); err != nil {
		return err
	}
	return timeOp("smart add (accumulating)", *iterations, func() error {
		return w.sk.SmartAddAssign(a, b)
	})
}

func (w *workload) sub() error {
	fmt.Println("\n=== Subtraction ===")
	a, b, err := w.pair()
	if err != nil {
		return err
	}
	return timeOp("smart sub (accumulating)", *iterations, func() error {
		return w.sk.SmartSubAssign(a, b)
	})
}

func (w *workload) sum() error {
	fmt.Printf("\n=== Sum of %d operands ===\n", *operands)
	cts := make([]*integer.RadixCiphertext, *operands)
	for i := range cts {
		ct, err := w.encrypt()
		if err != nil {
			return err
		}
		cts[i] = ct
	}
	return timeOp("smart sum seq", *iterations, func() error {
		_, err := w.sk.SmartSumSeq(cts)
		return err
	})
}

func (w *workload) compare() error {
	fmt.Println("\n=== Comparison ===")
	a, b, err := w.pair()
	if err != nil {
		return err
	}
	return timeOp("smart ge", *iterations, func() error {
		_, err := w.sk.SmartGe(a, b)
		return err
	})
}

func (w *workload) transfer() error {
	fmt.Println("\n=== Transfer ===")
	from, to, err := w.pair()
	if err != nil {
		return err
	}
	amount, err := w.encrypt()
	if err != nil {
		return err
	}
	return timeOp("transfer", *iterations, func() error {
		var err error
		from, to, err = w.sk.Transfer(from, to, amount)
		return err
	})
}
