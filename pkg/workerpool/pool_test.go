package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunExecutesAllItems(t *testing.T) {
	var count int64
	items := []int{1, 2, 3, 4, 5}
	err := Run(context.Background(), 2, items, func(ctx context.Context, item int) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	assert.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

func TestRunPropagatesFirstError(t *testing.T) {
	sentinel := errors.New("boom")
	err := Run(context.Background(), 4, []int{1, 2, 3}, func(ctx context.Context, item int) error {
		if item == 2 {
			return sentinel
		}
		return nil
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestMapCollectsResults(t *testing.T) {
	out, err := Map(context.Background(), 3, []int{1, 2, 3}, func(ctx context.Context, item int) (int, error) {
		return item * item, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9}, out)
}

func TestResolveAutoUsesGOMAXPROCS(t *testing.T) {
	assert.Equal(t, runtime.GOMAXPROCS(0), Resolve(-1))
	assert.Equal(t, 7, Resolve(7))
}
