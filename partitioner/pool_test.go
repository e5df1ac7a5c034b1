package partitioner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerCountIsBoundedAndPositive(t *testing.T) {
	n := WorkerCount()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 12)
}

func TestParallelMapPreservesOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1, 0}
	results, err := ParallelMap(3, items, func(i int) (int, error) {
		return i * i, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{25, 16, 9, 4, 1, 0}, results)
}

func TestParallelMapReturnsFirstError(t *testing.T) {
	items := []int{0, 1, 2, 3}
	_, err := ParallelMap(2, items, func(i int) (int, error) {
		if i == 2 {
			return 0, fmt.Errorf("boom")
		}
		return i, nil
	})
	require.Error(t, err)
}

func TestParallelMapEmptyInput(t *testing.T) {
	results, err := ParallelMap(4, []int{}, func(i int) (int, error) { return i, nil })
	require.NoError(t, err)
	assert.Nil(t, results)
}
