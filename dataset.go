package tarshard

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bcongdon/tarshard/internal/pkg/shardfs"
	"github.com/bcongdon/tarshard/internal/pkg/shardio"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Dataset streams samples from a set of tar shards. A Dataset is
// immutable once created and may be iterated any number of times,
// concurrently, each iteration being one epoch.
type Dataset struct {
	pattern string
	fields  []field
	config  *config
	epochs  int64
}

// config configures a Dataset
type config struct {
	Length        int
	HasLength     bool
	Rank          int
	WorldSize     int
	ShuffleBuffer int
	Seed          int64
	Seeded        bool
	ShowSplits    bool
	Logger        log.FieldLogger
	WorkerInfo    WorkerInfoFunc
	FileSystem    shardfs.FileSystem
}

func newConfig() *config {
	loadConfig() // Load viper config from settings file(s) and environment
	return &config{
		Rank:          viper.GetInt("rank"),
		WorldSize:     viper.GetInt("world_size"),
		ShuffleBuffer: viper.GetInt("shuffle_buffer"),
		ShowSplits:    viper.GetBool("show_splits"),
		Logger:        log.StandardLogger(),
		WorkerInfo:    EnvWorkerInfo,
	}
}

// Option allows configuration of a Dataset
type Option func(*config)

// WithLength declares the number of samples in the dataset. The length is
// advisory: it is reported by Len but never enforced.
func WithLength(n int) Option {
	return func(c *config) {
		c.Length = n
		c.HasLength = true
	}
}

// WithDistributed sets the node's rank and the world size. A negative rank
// or non-positive world size disables node splitting.
func WithDistributed(rank, worldSize int) Option {
	return func(c *config) {
		c.Rank = rank
		c.WorldSize = worldSize
	}
}

// WithShuffleBuffer sets the capacity of the shuffle buffer. A capacity of
// 1 or less disables shuffling.
func WithShuffleBuffer(n int) Option {
	return func(c *config) {
		c.ShuffleBuffer = n
	}
}

// WithSeed makes shuffling reproducible. Each (epoch, worker) pair derives
// its own source from seed.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.Seed = seed
		c.Seeded = true
	}
}

// WithShowSplits logs the result of node and worker splitting.
func WithShowSplits(show bool) Option {
	return func(c *config) {
		c.ShowSplits = show
	}
}

// WithLogger sets the logger used for split diagnostics and warnings
func WithLogger(logger log.FieldLogger) Option {
	return func(c *config) {
		c.Logger = logger
	}
}

// WithWorkerInfo sets the function consulted at the start of each epoch to
// learn which worker is iterating.
func WithWorkerInfo(f WorkerInfoFunc) Option {
	return func(c *config) {
		c.WorkerInfo = f
	}
}

// WithFileSystem sets the filesystem shards are read from. By default it
// is inferred from the pattern.
func WithFileSystem(fs shardfs.FileSystem) Option {
	return func(c *config) {
		c.FileSystem = fs
	}
}

// NewDataset creates a Dataset over the shards named by pattern, yielding
// one element per field. pattern is expanded by ExpandShards; a pattern
// without braces but with glob metacharacters is listed instead.
func NewDataset(pattern string, fields []Field, options ...Option) (*Dataset, error) {
	compiled, err := compileFields(fields)
	if err != nil {
		return nil, err
	}

	c := newConfig()
	for _, f := range options {
		f(c)
	}
	if c.ShuffleBuffer < 0 {
		return nil, fmt.Errorf("negative shuffle buffer %d", c.ShuffleBuffer)
	}
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
	if c.WorkerInfo == nil {
		c.WorkerInfo = SingleWorker
	}
	if c.FileSystem == nil {
		if c.FileSystem, err = shardfs.InferFilesystem(pattern); err != nil {
			return nil, err
		}
	}
	if _, _, err := findGroup(pattern); err != nil {
		return nil, fmt.Errorf("%w %q: %s", ErrBadPattern, pattern, err)
	}

	d := &Dataset{
		pattern: pattern,
		fields:  compiled,
		config:  c,
	}
	c.Logger.Debugf("Loaded dataset config: %#v", *c)
	return d, nil
}

// Len returns the declared length of the dataset, if any.
func (d *Dataset) Len() (int, bool) {
	return d.config.Length, d.config.HasLength
}

// Keys returns the requested field keys, in sample order.
func (d *Dataset) Keys() []string {
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.key
	}
	return keys
}

// Shards enumerates every shard URL of the dataset, before splitting.
func (d *Dataset) Shards() ([]string, error) {
	if !strings.Contains(d.pattern, "{") && strings.ContainsAny(d.pattern, "*?[") {
		files, err := d.config.FileSystem.ListFiles(d.pattern)
		if err != nil {
			return nil, err
		}
		urls := make([]string, len(files))
		for i, f := range files {
			urls[i] = f.Name
		}
		return urls, nil
	}
	return ExpandShards(d.pattern)
}

// Epoch is one pass over the shards assigned to a node and worker.
type Epoch struct {
	urls    []string
	shards  *shardio.ShardReader
	shuffle *shuffler
	samples SampleReader
}

// Iter starts an epoch as the worker reported by the dataset's
// WorkerInfoFunc.
func (d *Dataset) Iter(ctx context.Context) (*Epoch, error) {
	return d.iter(ctx, d.nextEpoch(), d.config.WorkerInfo())
}

// nextEpoch reserves the number of the next epoch. Every worker of one
// epoch shares its number.
func (d *Dataset) nextEpoch() int64 {
	return atomic.AddInt64(&d.epochs, 1) - 1
}

func (d *Dataset) iter(ctx context.Context, epoch int64, worker *WorkerInfo) (*Epoch, error) {
	urls, err := d.Shards()
	if err != nil {
		return nil, err
	}
	split := splitter{log: d.config.Logger, showSplits: d.config.ShowSplits}
	urls = split.byNode(urls, d.config.Rank, d.config.WorldSize)
	urls = split.byWorker(urls, worker)

	fs := d.config.FileSystem
	shards := shardio.NewShardReader(urls, func(url string) (io.ReadCloser, error) {
		return fs.OpenReader(url, 0)
	})
	shuffle := newShuffler(shards, d.config.ShuffleBuffer, d.rng(epoch, worker))

	var samples SampleReader = &tupleReader{in: shuffle, fields: d.fields}
	samples = mapSamples(samples, processFields(d.fields))
	samples = mapSamples(samples, firstAsText)

	return &Epoch{
		urls:    urls,
		shards:  shards,
		shuffle: shuffle,
		samples: samples,
	}, nil
}

func (d *Dataset) rng(epoch int64, worker *WorkerInfo) *rand.Rand {
	seed := time.Now().UnixNano()
	if d.config.Seeded {
		seed = d.config.Seed + epoch<<20
	}
	if worker != nil {
		seed += int64(worker.ID)
	}
	return rand.New(rand.NewSource(seed))
}

// Read returns the next sample of the epoch, or EOF.
func (e *Epoch) Read(ctx context.Context) (Sample, error) {
	return e.samples.Read(ctx)
}

// Shards returns the shard URLs assigned to this epoch.
func (e *Epoch) Shards() []string {
	return e.urls
}

// Pending returns the number of records held in the shuffle buffer.
func (e *Epoch) Pending() int {
	return e.shuffle.Pending()
}

// Close releases the shard currently being read.
func (e *Epoch) Close() error {
	return e.shards.Close()
}

// ForEach runs one epoch, calling fn for every sample. It stops at the
// first error from the pipeline or from fn.
func (d *Dataset) ForEach(ctx context.Context, fn func(Sample) error) error {
	epoch, err := d.Iter(ctx)
	if err != nil {
		return err
	}
	defer epoch.Close()
	return drain(ctx, epoch, fn)
}

func drain(ctx context.Context, r SampleReader, fn func(Sample) error) error {
	for {
		sample, err := r.Read(ctx)
		if err == EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(sample); err != nil {
			return err
		}
	}
}
