package coalesce

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/chainstate-indexer/pkg/metrics"
)

const callDelay = 100 * time.Millisecond

var errThrow = errors.New("this should throw")

// calculator mirrors a component whose methods are individually coalesced.
type calculator struct {
	resolves  atomic.Int32
	throws    atomic.Int32
	additions atomic.Int32

	DoResolve func(context.Context) (float64, error)
	DoThrow   func(context.Context) (float64, error)
	Add       func(context.Context, int, int) (int, error)
	Multiply  func(context.Context, int, int) (int, error)
	Sync      func() string
}

func newCalculator(c *Cache) *calculator {
	calc := &calculator{}
	calc.DoResolve = Wrap0(c, "doResolve", func(ctx context.Context) (float64, error) {
		calc.resolves.Add(1)
		time.Sleep(callDelay)
		return rand.Float64(), nil
	})
	calc.DoThrow = Wrap0(c, "doThrow", func(ctx context.Context) (float64, error) {
		calc.throws.Add(1)
		time.Sleep(callDelay)
		return 0, errThrow
	})
	calc.Add = Wrap2(c, "add", func(ctx context.Context, a, b int) (int, error) {
		calc.additions.Add(1)
		time.Sleep(callDelay)
		return a + b, nil
	})
	calc.Multiply = Wrap2(c, "multiply", func(ctx context.Context, a, b int) (int, error) {
		time.Sleep(callDelay)
		return a * b, nil
	})
	calc.Sync = WrapValue0(c, "synchronous", func() string {
		return "testing"
	})
	return calc
}

// concurrently runs fn n times at once and returns the results in call order.
func concurrently[R any](n int, fn func() (R, error)) ([]R, []error) {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		vals  = make([]R, n)
		errs  = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			vals[i], errs[i] = fn()
		}(i)
	}
	close(start)
	wg.Wait()
	return vals, errs
}

func TestCache_SharesResult(t *testing.T) {
	t.Parallel()

	calc := newCalculator(New(WithLogger(zaptest.NewLogger(t).Sugar())))
	ctx := t.Context()

	values, errs := concurrently(5, func() (float64, error) { return calc.DoResolve(ctx) })

	for i := range values {
		require.NoError(t, errs[i])
		assert.Equal(t, values[0], values[i])
	}
	assert.Equal(t, int32(1), calc.resolves.Load())
}

func TestCache_SharesFailureWithoutCachingIt(t *testing.T) {
	t.Parallel()

	c := New()
	calc := newCalculator(c)
	ctx := t.Context()

	_, errs := concurrently(5, func() (float64, error) { return calc.DoThrow(ctx) })

	for _, err := range errs {
		require.ErrorIs(t, err, errThrow)
	}
	assert.Equal(t, int32(1), calc.throws.Load())
	assert.Equal(t, 0, c.InFlight())

	_, err := calc.DoThrow(ctx)
	require.ErrorIs(t, err, errThrow)
	assert.Equal(t, int32(2), calc.throws.Load(), "a call after the failure must execute again")
}

func TestCache_FreshExecutionAfterSuccess(t *testing.T) {
	t.Parallel()

	calc := newCalculator(New())
	ctx := t.Context()

	_, err := calc.DoResolve(ctx)
	require.NoError(t, err)
	_, err = calc.DoResolve(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calc.resolves.Load())
}

func TestCache_DistinctOperations(t *testing.T) {
	t.Parallel()

	calc := newCalculator(New())
	ctx := t.Context()

	var (
		wg        sync.WaitGroup
		sum, prod int
		sumErr    error
		prodErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sum, sumErr = calc.Add(ctx, 3, 2)
	}()
	go func() {
		defer wg.Done()
		prod, prodErr = calc.Multiply(ctx, 3, 2)
	}()
	wg.Wait()

	require.NoError(t, sumErr)
	require.NoError(t, prodErr)
	assert.Equal(t, 5, sum)
	assert.Equal(t, 6, prod)
}

func TestCache_DistinctArgumentsRunConcurrently(t *testing.T) {
	t.Parallel()

	c := New()
	release := make(chan struct{})
	var running atomic.Int32
	square := Wrap1(c, "square", func(ctx context.Context, n int) (int, error) {
		running.Add(1)
		<-release
		return n * n, nil
	})

	ctx := t.Context()
	results := make(chan int, 2)
	go func() {
		v, _ := square(ctx, 3)
		results <- v
	}()
	go func() {
		v, _ := square(ctx, 4)
		results <- v
	}()

	require.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, c.InFlight())
	close(release)

	got := []int{<-results, <-results}
	assert.ElementsMatch(t, []int{9, 16}, got)
	assert.Equal(t, 0, c.InFlight())
}

func TestCache_SameArgumentsShareAcrossCallers(t *testing.T) {
	t.Parallel()

	calc := newCalculator(New())
	ctx := t.Context()

	sums, errs := concurrently(4, func() (int, error) { return calc.Add(ctx, 40, 2) })
	for i := range sums {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, sums[i])
	}
	assert.Equal(t, int32(1), calc.additions.Load())
}

func TestCache_Synchronous(t *testing.T) {
	t.Parallel()

	c := New()
	calc := newCalculator(c)

	assert.Equal(t, "testing", calc.Sync())
	assert.Equal(t, 0, c.InFlight())
}

func TestCache_WrapValue1(t *testing.T) {
	t.Parallel()

	c := New()
	double := WrapValue1(c, "double", func(n int) int { return n * 2 })
	assert.Equal(t, 42, double(21))
	assert.Equal(t, 0, c.InFlight())

}

func TestCache_WrapValue1_SerializationPanics(t *testing.T) {
	t.Parallel()

	c := New()
	var calls atomic.Int32
	length := WrapValue1(c, "len", func(ch chan int) int {
		calls.Add(1)
		return cap(ch)
	})

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		length(make(chan int, 3))
	}()

	err, ok := recovered.(error)
	require.True(t, ok, "expected an error panic, got %v", recovered)
	require.ErrorIs(t, err, ErrSerialization)
	var serErr *SerializationError
	require.ErrorAs(t, err, &serErr)
	assert.Equal(t, "len", serErr.Identifier)
	assert.Zero(t, calls.Load())
	assert.Equal(t, 0, c.InFlight())
}

type opaque struct{ n int }

func TestCache_OpaqueArgumentsAreNotShared(t *testing.T) {
	t.Parallel()

	c := New()
	var calls atomic.Int32
	get := Wrap1(c, "get", func(ctx context.Context, o opaque) (int, error) {
		calls.Add(1)
		return o.n, nil
	})

	_, err := get(t.Context(), opaque{n: 1})
	require.ErrorIs(t, err, ErrSerialization)
	_, err = get(t.Context(), opaque{n: 2})
	require.ErrorIs(t, err, ErrSerialization)
	assert.Zero(t, calls.Load())
}

func TestCache_SerializationErrorSkipsExecution(t *testing.T) {
	t.Parallel()

	c := New()
	var calls atomic.Int32
	walk := Wrap1(c, "walk", func(ctx context.Context, n *cyclic) (string, error) {
		calls.Add(1)
		return n.Name, nil
	})

	n := &cyclic{Name: "loop"}
	n.Next = n

	_, err := walk(t.Context(), n)
	require.ErrorIs(t, err, ErrSerialization)
	assert.Zero(t, calls.Load())
}

func TestCache_OperationErrorIsReturnedVerbatim(t *testing.T) {
	t.Parallel()

	c := New()
	opErr := errors.New("rpc unavailable")
	fail := Wrap1(c, "fail", func(ctx context.Context, s string) (int, error) {
		return 7, opErr
	})

	v, err := fail(t.Context(), "x")
	assert.Same(t, opErr, err)
	assert.Zero(t, v)
}

func TestCache_CallerCancellationDoesNotCancelExecution(t *testing.T) {
	t.Parallel()

	c := New()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	slow := Wrap0(c, "slow", func(ctx context.Context) (string, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "done", nil
	})

	first, cancel := context.WithCancel(t.Context())
	firstResult := make(chan error, 1)
	go func() {
		_, err := slow(first)
		firstResult <- err
	}()
	<-started

	secondResult := make(chan string, 1)
	go func() {
		v, _ := slow(t.Context())
		secondResult <- v
	}()

	cancel()
	close(release)

	require.NoError(t, <-firstResult)
	assert.Equal(t, "done", <-secondResult)
}

func TestCache_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	calc := newCalculator(New(WithMetrics(m)))
	ctx := t.Context()

	_, errs := concurrently(3, func() (float64, error) { return calc.DoResolve(ctx) })
	for _, err := range errs {
		require.NoError(t, err)
	}

	count, err := testutil.GatherAndCount(reg, "indexer_coalesce_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "executed and shared series")
}
