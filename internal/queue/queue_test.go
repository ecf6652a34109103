package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q := NewRedisQueueFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	q.SetPollInterval(100 * time.Millisecond)
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func TestPushPopFIFO(t *testing.T) {
	q, _ := setupTest(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, &Job{ID: "a", Operation: OpAdd, Operands: []string{"x", "y"}}))
	require.NoError(t, q.Push(ctx, &Job{ID: "b", Operation: OpSum, Operands: []string{"x", "y", "z"}}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", job.ID)
	require.Equal(t, StatusPending, job.Status)
	require.Equal(t, []string{"x", "y"}, job.Operands)

	job, err = q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", job.ID)
	require.Equal(t, OpSum, job.Operation)
}

func TestPopEmpty(t *testing.T) {
	q, _ := setupTest(t)
	_, err := q.Pop(context.Background())
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestUpdateGet(t *testing.T) {
	q, _ := setupTest(t)
	ctx := context.Background()

	_, err := q.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)

	job := &Job{ID: "j", Operation: OpSub, Operands: []string{"x", "y"}}
	require.NoError(t, q.Push(ctx, job))
	job.Status = StatusCompleted
	job.ResultHandle = "r"
	require.NoError(t, q.Update(ctx, job))

	got, err := q.Get(ctx, "j")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "r", got.ResultHandle)
}

func TestJobExpires(t *testing.T) {
	q, mr := setupTest(t)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, &Job{ID: "old", Operation: OpSum, Operands: []string{"x"}}))
	mr.FastForward(25 * time.Hour)
	_, err := q.Get(ctx, "old")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		ok   bool
	}{
		{"add", Job{Operation: OpAdd, Operands: []string{"a", "b"}}, true},
		{"add arity", Job{Operation: OpAdd, Operands: []string{"a"}}, false},
		{"sub arity", Job{Operation: OpSub, Operands: []string{"a", "b", "c"}}, false},
		{"sum one", Job{Operation: OpSum, Operands: []string{"a"}}, true},
		{"sum empty", Job{Operation: OpSum}, false},
		{"unknown", Job{Operation: Op(9), Operands: []string{"a"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}

	q, _ := setupTest(t)
	require.Error(t, q.Push(context.Background(), &Job{ID: "bad", Operation: OpAdd}))
}

func TestParseOp(t *testing.T) {
	for _, o := range []Op{OpAdd, OpSub, OpSum} {
		got, err := ParseOp(o.String())
		require.NoError(t, err)
		require.Equal(t, o, got)
	}
	_, err := ParseOp("mul")
	require.Error(t, err)
}
