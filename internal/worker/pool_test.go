package worker

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhe-integer/integer"
	"github.com/luxfi/fhe-integer/internal/queue"
	"github.com/luxfi/fhe-integer/internal/storage"
	"github.com/luxfi/fhe-integer/shortint"
)

type fixture struct {
	ck    *integer.ClientKey
	q     *queue.RedisQueue
	store *storage.MemoryStorage
	pool  *Pool
}

func setupTest(t *testing.T) *fixture {
	t.Helper()
	params, err := shortint.NewParametersFromLiteral(shortint.ParamsMessage2Carry2)
	require.NoError(t, err)
	ck, sk := integer.NewKeys(params)

	mr := miniredis.RunT(t)
	q := queue.NewRedisQueueFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	q.SetPollInterval(100 * time.Millisecond)
	t.Cleanup(func() { _ = q.Close() })

	store := storage.NewMemoryStorage(64)
	pool := New(Config{
		Workers: 2,
		Queue:   q,
		Storage: store,
		Key:     sk,
		Logger:  zerolog.Nop(),
	})
	return &fixture{ck: ck, q: q, store: store, pool: pool}
}

func (f *fixture) put(t *testing.T, v uint64, blocks int) string {
	t.Helper()
	ct, err := f.ck.EncryptRadix(v, blocks)
	require.NoError(t, err)
	h, err := storage.StoreRadix(context.Background(), f.store, ct)
	require.NoError(t, err)
	return string(h)
}

func (f *fixture) result(t *testing.T, job *queue.Job) uint64 {
	t.Helper()
	require.Equal(t, queue.StatusCompleted, job.Status, job.Error)
	ct, err := storage.LoadRadix(context.Background(), f.store, storage.Handle(job.ResultHandle))
	require.NoError(t, err)
	return f.ck.DecryptRadix(ct)
}

func TestProcess(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()

	tests := []struct {
		name string
		op   queue.Op
		in   []uint64
		want uint64
	}{
		{"add", queue.OpAdd, []uint64{14, 97}, 111},
		{"sub", queue.OpSub, []uint64{14, 97}, 173},
		{"sum", queue.OpSum, []uint64{3, 1, 4, 1, 5}, 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &queue.Job{ID: tt.name, Operation: tt.op}
			for _, v := range tt.in {
				job.Operands = append(job.Operands, f.put(t, v, 4))
			}
			require.NoError(t, f.q.Push(ctx, job))

			f.pool.Process(ctx, job)
			stored, err := f.q.Get(ctx, job.ID)
			require.NoError(t, err)
			require.Equal(t, tt.want, f.result(t, stored))
		})
	}
	require.Equal(t, int64(3), f.pool.Succeeded())
}

func TestProcessFailures(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()

	missing := &queue.Job{ID: "missing", Operation: queue.OpAdd, Operands: []string{f.put(t, 1, 4), string(storage.ComputeHandle([]byte("nope")))}}
	f.pool.Process(ctx, missing)
	require.Equal(t, queue.StatusFailed, missing.Status)
	require.Contains(t, missing.Error, "operand 1")

	shape := &queue.Job{ID: "shape", Operation: queue.OpAdd, Operands: []string{f.put(t, 1, 4), f.put(t, 1, 3)}}
	f.pool.Process(ctx, shape)
	require.Equal(t, queue.StatusFailed, shape.Status)

	arity := &queue.Job{ID: "arity", Operation: queue.OpSub, Operands: []string{f.put(t, 1, 4)}}
	f.pool.Process(ctx, arity)
	require.Equal(t, queue.StatusFailed, arity.Status)

	require.Equal(t, int64(3), f.pool.Failed())
}

func TestPoolRunsQueuedJobs(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()

	require.NoError(t, f.pool.Start(ctx))
	require.Error(t, f.pool.Start(ctx))

	for i, pair := range [][2]uint64{{1, 2}, {200, 100}} {
		job := &queue.Job{
			ID:        string(rune('a' + i)),
			Operation: queue.OpAdd,
			Operands:  []string{f.put(t, pair[0], 4), f.put(t, pair[1], 4)},
		}
		require.NoError(t, f.q.Push(ctx, job))
	}

	require.Eventually(t, func() bool { return f.pool.Succeeded() == 2 }, 30*time.Second, 50*time.Millisecond)
	require.NoError(t, f.pool.Stop())

	a, err := f.q.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, uint64(3), f.result(t, a))
	b, err := f.q.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, uint64(44), f.result(t, b))
}

// forge stores a 4-block encryption of v whose block metadata is rewritten
// by edit.
func (f *fixture) forge(t *testing.T, v uint64, edit func(*shortint.BlockInfo)) string {
	t.Helper()
	ct, err := f.ck.EncryptRadix(v, 4)
	require.NoError(t, err)
	blocks := make([]*shortint.Ciphertext, ct.NumBlocks())
	for i, b := range ct.Blocks() {
		info := b.Info()
		edit(&info)
		blocks[i] = shortint.NewCiphertext(b.Payload(), info)
	}
	h, err := storage.StoreRadix(context.Background(), f.store, integer.NewRadixCiphertext(blocks))
	require.NoError(t, err)
	return string(h)
}

func TestProcessRejectsForeignMetadata(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()

	tests := []struct {
		name string
		edit func(*shortint.BlockInfo)
	}{
		{"zero moduli", func(b *shortint.BlockInfo) { b.MessageModulus, b.CarryModulus = 0, 0 }},
		{"other moduli", func(b *shortint.BlockInfo) { b.MessageModulus, b.CarryModulus = 8, 8 }},
		{"saturated degree", func(b *shortint.BlockInfo) { b.Degree = math.MaxUint64 }},
		{"degree above max", func(b *shortint.BlockInfo) { b.Degree = 16 }},
		{"pbs order", func(b *shortint.BlockInfo) { b.PBSOrder = shortint.BootstrapKeyswitch }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, op := range []queue.Op{queue.OpAdd, queue.OpSub} {
				job := &queue.Job{ID: tt.name, Operation: op, Operands: []string{f.put(t, 1, 4), f.forge(t, 2, tt.edit)}}
				require.NotPanics(t, func() { f.pool.Process(ctx, job) })
				require.Equal(t, queue.StatusFailed, job.Status)
				require.Contains(t, job.Error, "operand 1")
			}
		})
	}
	require.Zero(t, f.pool.Succeeded())
}

func TestProcessRecoversPanics(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()

	// no server key: the first operator call panics
	pool := New(Config{Queue: f.q, Storage: f.store, Logger: zerolog.Nop()})
	job := &queue.Job{ID: "nokey", Operation: queue.OpAdd, Operands: []string{f.put(t, 1, 4), f.put(t, 2, 4)}}
	require.NotPanics(t, func() { pool.Process(ctx, job) })
	require.Equal(t, queue.StatusFailed, job.Status)
	require.Contains(t, job.Error, "panicked")
	require.Equal(t, int64(1), pool.Failed())
}
