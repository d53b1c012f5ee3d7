package tarshard

import (
	log "github.com/sirupsen/logrus"
)

// splitter partitions shard URLs by node and by worker. Results are
// logged only when showSplits is set.
type splitter struct {
	log        log.FieldLogger
	showSplits bool
}

func defaultSplitter() splitter {
	return splitter{log: log.StandardLogger()}
}

// stride returns urls[start], urls[start+step], ... preserving order.
func stride(urls []string, start, step int) []string {
	n := 0
	if start < len(urls) {
		n = (len(urls) - start + step - 1) / step
	}
	result := make([]string, 0, n)
	for i := start; i < len(urls); i += step {
		result = append(result, urls[i])
	}
	return result
}

func (s splitter) byNode(urls []string, rank, worldSize int) []string {
	if rank < 0 || worldSize <= 0 {
		return urls
	}
	result := stride(urls, rank, worldSize)
	if s.showSplits {
		s.log.Debugf("split_by_node %d/%d len=%d", rank, worldSize, len(result))
	}
	return result
}

func (s splitter) byWorker(urls []string, worker *WorkerInfo) []string {
	if worker == nil {
		return urls
	}
	if !worker.valid() {
		s.log.Warnf("Ignoring invalid worker %d/%d", worker.ID, worker.NumWorkers)
		return urls
	}
	if worker.ID == 0 && len(urls) < worker.NumWorkers {
		s.log.Warnf("num_workers %d > num_shards %d", worker.NumWorkers, len(urls))
	}
	result := stride(urls, worker.ID, worker.NumWorkers)
	if s.showSplits {
		s.log.Debugf("split_by_worker %d/%d len=%d", worker.ID, worker.NumWorkers, len(result))
	}
	return result
}

// SplitByNode returns the shards assigned to the node with the given rank:
// the URLs at positions rank, rank+worldSize, rank+2*worldSize, ...
// A negative rank or non-positive worldSize means the job is not
// distributed, and urls is returned unchanged.
func SplitByNode(urls []string, rank, worldSize int) []string {
	return defaultSplitter().byNode(urls, rank, worldSize)
}

// SplitByWorker returns the shards assigned to worker by striding over urls.
// A nil worker is the single implicit worker and receives every URL.
// Worker 0 logs a warning when there are fewer shards than workers; the
// surplus workers receive no shards.
func SplitByWorker(urls []string, worker *WorkerInfo) []string {
	return defaultSplitter().byWorker(urls, worker)
}
