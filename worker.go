package tarshard

import (
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Environment variables consulted by EnvWorkerInfo
const (
	workerIDEnv   = "TARSHARD_WORKER_ID"
	numWorkersEnv = "TARSHARD_NUM_WORKERS"
)

// WorkerInfo identifies a data-loading worker within its node.
type WorkerInfo struct {
	ID         int // in [0, NumWorkers)
	NumWorkers int
}

func (w *WorkerInfo) valid() bool {
	return w.NumWorkers > 0 && w.ID >= 0 && w.ID < w.NumWorkers
}

// WorkerInfoFunc reports the worker the calling code runs as, or nil when
// it is not running inside a multi-worker context. It is called at the start
// of every epoch.
type WorkerInfoFunc func() *WorkerInfo

// SingleWorker is a WorkerInfoFunc for single-worker execution.
func SingleWorker() *WorkerInfo {
	return nil
}

// StaticWorker returns a WorkerInfoFunc that always reports worker id of n.
func StaticWorker(id, n int) WorkerInfoFunc {
	return func() *WorkerInfo {
		return &WorkerInfo{ID: id, NumWorkers: n}
	}
}

// EnvWorkerInfo infers the worker identity from $TARSHARD_WORKER_ID and
// $TARSHARD_NUM_WORKERS, as set by a launcher that spawns one process per
// worker. Missing or malformed values mean single-worker execution.
func EnvWorkerInfo() *WorkerInfo {
	idStr, idSet := os.LookupEnv(workerIDEnv)
	nStr, nSet := os.LookupEnv(numWorkersEnv)
	if !idSet || !nSet {
		return nil
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		log.Warnf("Ignoring invalid %s %q: %s", workerIDEnv, idStr, err)
		return nil
	}
	n, err := strconv.Atoi(nStr)
	if err != nil {
		log.Warnf("Ignoring invalid %s %q: %s", numWorkersEnv, nStr, err)
		return nil
	}
	info := &WorkerInfo{ID: id, NumWorkers: n}
	if !info.valid() {
		log.Warnf("Ignoring out of range worker %d/%d", id, n)
		return nil
	}
	return info
}
