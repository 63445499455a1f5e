package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrivial_ResolvedImmediately(t *testing.T) {
	c := Trivial(42)
	assert.Equal(t, Resolved, c.State())
	v, err := c.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestTrivialError_FailedImmediately(t *testing.T) {
	c := TrivialError[int](errors.New("boom"))
	assert.Equal(t, Failed, c.State())
	_, err := c.Result()
	assert.EqualError(t, err, "boom")
}

func TestAsync_ResolvesOnPool(t *testing.T) {
	p := NewPool(2)
	defer p.Shutdown()

	c := Async(p, context.Background(), func(ctx context.Context) (string, error) {
		return "hello", nil
	})

	v, err := c.Wait()
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestAsync_PropagatesError(t *testing.T) {
	p := NewPool(1)
	defer p.Shutdown()

	c := Async(p, context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("failed")
	})

	_, err := c.Wait()
	assert.EqualError(t, err, "failed")
	assert.Equal(t, Failed, c.State())
}

func TestAsyncMap_PreservesOrderAndAdvancesProgress(t *testing.T) {
	p := NewPool(4)
	defer p.Shutdown()

	items := []int{1, 2, 3, 4}
	c := AsyncMap(p, context.Background(), items, func(ctx context.Context, i int) (int, error) {
		return i * i, nil
	})
	c.Progress()

	v, err := c.Wait()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16}, v)
	assert.Equal(t, 1.0, c.Progress().Value())
}

func TestAsyncMap_EmptyResolvesImmediately(t *testing.T) {
	p := NewPool(1)
	defer p.Shutdown()

	c := AsyncMap(p, context.Background(), []int{}, func(ctx context.Context, i int) (int, error) {
		return i, nil
	})
	v, err := c.Wait()
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestAsyncMap_FirstErrorWins(t *testing.T) {
	p := NewPool(4)
	defer p.Shutdown()

	c := AsyncMap(p, context.Background(), []int{1, 2, 3}, func(ctx context.Context, i int) (int, error) {
		if i == 2 {
			return 0, errors.New("bad element")
		}
		return i, nil
	})
	_, err := c.Wait()
	assert.EqualError(t, err, "bad element")
}

func TestThen_ChainsInOrder(t *testing.T) {
	p := NewPool(1)
	defer p.Shutdown()

	first := Async(p, context.Background(), func(ctx context.Context) (int, error) {
		return 10, nil
	})
	second := Then(first, p, context.Background(), func(ctx context.Context, v int) (*Completion[string], error) {
		return Trivial(v*2 + 1), nil
	})

	v, err := second.Wait()
	require.NoError(t, err)
	assert.Equal(t, 21, v)
}

func TestThen_SkipsWhenPredecessorFails(t *testing.T) {
	p := NewPool(1)
	defer p.Shutdown()

	called := false
	first := Async(p, context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("upstream failed")
	})
	second := Then(first, p, context.Background(), func(ctx context.Context, v int) (*Completion[int], error) {
		called = true
		return Trivial(v), nil
	})

	_, err := second.Wait()
	assert.Error(t, err)
	assert.False(t, called, "chained callback must not run when predecessor failed")
}

func TestThen_ChainOfInnerCompletion(t *testing.T) {
	p := NewPool(2)
	defer p.Shutdown()

	first := Trivial(5)
	second := Then(first, p, context.Background(), func(ctx context.Context, v int) (*Completion[int], error) {
		return Async(p, ctx, func(ctx context.Context) (int, error) {
			return v + 1, nil
		}), nil
	})

	v, err := second.Wait()
	require.NoError(t, err)
	assert.Equal(t, 6, v)
}

func TestPool_CancelCompletionsStopsUnscheduledWork(t *testing.T) {
	p := NewPool(1)
	defer p.Shutdown()

	block := make(chan struct{})
	blocker := Async(p, context.Background(), func(ctx context.Context) (int, error) {
		<-block
		return 0, nil
	})

	victim := Async(p, context.Background(), func(ctx context.Context) (int, error) {
		t.Fatal("victim should never run once cancelled")
		return 0, nil
	})

	p.CancelCompletions()
	close(block)
	_, _ = blocker.Wait()

	v, err := victim.Wait()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, v)
	assert.Equal(t, Cancelled, victim.State())
}

func TestDrain_CountsFinalized(t *testing.T) {
	p := NewPool(2)
	defer p.Shutdown()

	a := Trivial(1)
	b := Async(p, context.Background(), func(ctx context.Context) (int, error) {
		time.Sleep(5 * time.Millisecond)
		return 2, nil
	})
	_, _ = b.Wait()

	n := Drain([]Anyification{a, b})
	assert.Equal(t, 2, n)
}
