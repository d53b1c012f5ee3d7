package tarshard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLoaderDeliversEverySample(t *testing.T) {
	defer goleak.VerifyNone(t)

	pattern := writeShards(t, 40, 3)
	d, err := NewDataset(pattern, textKeys(), WithShuffleBuffer(5))
	require.Nil(t, err)

	seen := make(map[string]int)
	err = NewLoader(d, 3).Run(context.Background(), func(s Sample) error {
		seen[s[0].(string)]++
		return nil
	})
	require.Nil(t, err)

	assert.Len(t, seen, 40)
	for key, count := range seen {
		assert.Equal(t, 1, count, key)
	}
}

func TestLoaderConsumerError(t *testing.T) {
	defer goleak.VerifyNone(t)

	pattern := writeShards(t, 100, 10)
	d, err := NewDataset(pattern, textKeys())
	require.Nil(t, err)

	errStop := errors.New("stop")
	var calls int32
	err = NewLoader(d, 4).Run(context.Background(), func(Sample) error {
		atomic.AddInt32(&calls, 1)
		return errStop
	})
	assert.Equal(t, errStop, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoaderWorkerError(t *testing.T) {
	defer goleak.VerifyNone(t)

	pattern := writeShards(t, 20, 5)
	errBad := errors.New("bad embedding")
	d, err := NewDataset(pattern, []Field{
		{Key: "text", Decode: DecodeText},
		{Key: "embedding", Decode: func([]byte) (interface{}, error) { return nil, errBad }},
	})
	require.Nil(t, err)

	err = NewLoader(d, 2).Run(context.Background(), func(Sample) error { return nil })
	assert.True(t, errors.Is(err, errBad))
}

func TestLoaderCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	pattern := writeShards(t, 20, 5)
	d, err := NewDataset(pattern, textKeys())
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewLoader(d, 2).Run(ctx, func(Sample) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoaderSingleWorkerFallback(t *testing.T) {
	pattern := writeShards(t, 6, 2)

	var asked int32
	d, err := NewDataset(pattern, textKeys(), WithShuffleBuffer(1), WithWorkerInfo(func() *WorkerInfo {
		atomic.AddInt32(&asked, 1)
		return nil
	}))
	require.Nil(t, err)

	var keys []string
	err = NewLoader(d, 0).Run(context.Background(), func(s Sample) error {
		keys = append(keys, s[0].(string))
		return nil
	})
	require.Nil(t, err)
	assert.Equal(t, []string{"0000000", "0000001", "0000002", "0000003", "0000004", "0000005"}, keys)
	assert.Equal(t, int32(1), atomic.LoadInt32(&asked))
}

func TestLoaderSeededRunsReproduce(t *testing.T) {
	defer goleak.VerifyNone(t)

	pattern := writeShards(t, 80, 10)
	fields := []Field{{Key: "__key__"}, {Key: "__url__", Decode: DecodeText}}

	// perShard records the key order seen within each shard for each run
	perShard := func(d *Dataset) map[string][]string {
		order := make(map[string][]string)
		err := NewLoader(d, 4).Run(context.Background(), func(s Sample) error {
			url := s[1].(string)
			order[url] = append(order[url], s[0].(string))
			return nil
		})
		require.Nil(t, err)
		return order
	}

	for i := 0; i < 5; i++ {
		a, err := NewDataset(pattern, fields, WithSeed(42), WithShuffleBuffer(10))
		require.Nil(t, err)
		b, err := NewDataset(pattern, fields, WithSeed(42), WithShuffleBuffer(10))
		require.Nil(t, err)

		firstA, firstB := perShard(a), perShard(b)
		assert.Len(t, firstA, 8)
		assert.Equal(t, firstA, firstB)

		// The second epoch of each dataset also matches
		assert.Equal(t, perShard(a), perShard(b))
	}
}
