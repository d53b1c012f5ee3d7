package tarshard

import (
	"fmt"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func makeURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("shard-%06d.tar", i)
	}
	return urls
}

// interleave reassembles stride splits back into their original order.
func interleave(parts [][]string) []string {
	var result []string
	for i := 0; ; i++ {
		added := false
		for _, part := range parts {
			if i < len(part) {
				result = append(result, part[i])
				added = true
			}
		}
		if !added {
			return result
		}
	}
}

func TestSplitByNodePartition(t *testing.T) {
	for _, numURLs := range []int{1, 2, 7, 10, 64} {
		for worldSize := 1; worldSize <= 9; worldSize++ {
			urls := makeURLs(numURLs)

			parts := make([][]string, worldSize)
			seen := make(map[string]int)
			for rank := 0; rank < worldSize; rank++ {
				parts[rank] = SplitByNode(urls, rank, worldSize)
				for _, url := range parts[rank] {
					seen[url]++
				}
			}

			assert.Equal(t, urls, interleave(parts), "urls=%d world=%d", numURLs, worldSize)
			assert.Len(t, seen, numURLs)
			for url, count := range seen {
				assert.Equal(t, 1, count, url)
			}
		}
	}
}

func TestSplitByNodeStride(t *testing.T) {
	urls := makeURLs(10)
	assert.Equal(t, []string{urls[1], urls[4], urls[7]}, SplitByNode(urls, 1, 3))
	assert.Empty(t, SplitByNode(urls, 12, 3))
}

func TestSplitByNodeIdentityFallback(t *testing.T) {
	urls := makeURLs(5)
	assert.Equal(t, urls, SplitByNode(urls, -1, 4))
	assert.Equal(t, urls, SplitByNode(urls, 2, 0))
	assert.Equal(t, urls, SplitByNode(urls, -1, 0))
	assert.Empty(t, SplitByNode(nil, -1, 0))
}

func TestSplitByWorkerDeterministic(t *testing.T) {
	urls := makeURLs(10)
	worker := &WorkerInfo{ID: 2, NumWorkers: 4}

	expected := []string{urls[2], urls[6]}
	for i := 0; i < 5; i++ {
		assert.Equal(t, expected, SplitByWorker(urls, worker))
	}
}

func TestSplitByWorkerSingleWorker(t *testing.T) {
	urls := makeURLs(3)
	assert.Equal(t, urls, SplitByWorker(urls, nil))
}

func TestSplitByWorkerImbalanceWarning(t *testing.T) {
	logger, hook := test.NewNullLogger()
	split := splitter{log: logger}
	urls := makeURLs(2)

	assert.Equal(t, []string{urls[0]}, split.byWorker(urls, &WorkerInfo{ID: 0, NumWorkers: 4}))
	assert.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "num_workers 4 > num_shards 2", hook.LastEntry().Message)

	// Only worker 0 warns
	assert.Equal(t, []string{urls[1]}, split.byWorker(urls, &WorkerInfo{ID: 1, NumWorkers: 4}))
	assert.Empty(t, split.byWorker(urls, &WorkerInfo{ID: 2, NumWorkers: 4}))
	assert.Empty(t, split.byWorker(urls, &WorkerInfo{ID: 3, NumWorkers: 4}))
	assert.Len(t, hook.AllEntries(), 1)
}

func TestSplitByWorkerInvalidWorker(t *testing.T) {
	logger, hook := test.NewNullLogger()
	split := splitter{log: logger}
	urls := makeURLs(3)

	assert.Equal(t, urls, split.byWorker(urls, &WorkerInfo{ID: 0, NumWorkers: 0}))
	assert.Equal(t, urls, split.byWorker(urls, &WorkerInfo{ID: 5, NumWorkers: 2}))
	assert.Len(t, hook.AllEntries(), 2)
}

func TestShowSplits(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	urls := makeURLs(8)

	quiet := splitter{log: logger}
	quiet.byWorker(quiet.byNode(urls, 0, 2), &WorkerInfo{ID: 1, NumWorkers: 2})
	assert.Empty(t, hook.AllEntries())

	verbose := splitter{log: logger, showSplits: true}
	result := verbose.byWorker(verbose.byNode(urls, 0, 2), &WorkerInfo{ID: 1, NumWorkers: 2})
	assert.Equal(t, []string{urls[2], urls[6]}, result)

	entries := hook.AllEntries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "split_by_node 0/2 len=4", entries[0].Message)
	assert.Equal(t, "split_by_worker 1/2 len=2", entries[1].Message)
}
