package tarshard

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/bcongdon/tarshard/internal/pkg/shardfs"
	"github.com/bcongdon/tarshard/internal/pkg/shardio"
	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Lines longer than this are rejected by WriteLines
const maxLineSize = 64 * 1024 * 1024

// Writer converts text+embedding records into tar shards. Each record
// becomes the entries "<key>.text" and "<key>.embedding", keyed by its
// zero-padded sequence number.
type Writer struct {
	sink      *shardio.ShardWriter
	keyDigits int
	index     int
	bytesRead int64
}

// writerConfig configures a Writer
type writerConfig struct {
	Pattern    string
	MaxSize    int64
	MaxCount   int
	KeyDigits  int
	FileSystem shardfs.FileSystem
}

func newWriterConfig() (*writerConfig, error) {
	loadConfig()
	maxSize, err := humanize.ParseBytes(viper.GetString("shard_maxsize"))
	if err != nil {
		return nil, fmt.Errorf("invalid shard_maxsize: %w", err)
	}
	return &writerConfig{
		Pattern:   viper.GetString("shard_pattern"),
		MaxSize:   int64(maxSize),
		MaxCount:  viper.GetInt("shard_maxcount"),
		KeyDigits: viper.GetInt("key_digits"),
	}, nil
}

// WriterOption allows configuration of a Writer
type WriterOption func(*writerConfig)

// WithShardPattern sets the shard file name pattern, relative to the
// output directory. It must contain one integer verb for the shard index.
func WithShardPattern(pattern string) WriterOption {
	return func(c *writerConfig) {
		c.Pattern = pattern
	}
}

// WithMaxSize sets the size in bytes at which a shard is closed
func WithMaxSize(n int64) WriterOption {
	return func(c *writerConfig) {
		c.MaxSize = n
	}
}

// WithMaxCount sets the number of records at which a shard is closed
func WithMaxCount(n int) WriterOption {
	return func(c *writerConfig) {
		c.MaxCount = n
	}
}

// WithKeyDigits sets the zero-padded width of record keys
func WithKeyDigits(n int) WriterOption {
	return func(c *writerConfig) {
		c.KeyDigits = n
	}
}

// WithOutputFileSystem sets the filesystem shards are written to. By
// default it is inferred from the output directory.
func WithOutputFileSystem(fs shardfs.FileSystem) WriterOption {
	return func(c *writerConfig) {
		c.FileSystem = fs
	}
}

// NewWriter returns a Writer creating shards in outputDir, which is
// created if missing.
func NewWriter(outputDir string, options ...WriterOption) (*Writer, error) {
	c, err := newWriterConfig()
	if err != nil {
		return nil, err
	}
	for _, f := range options {
		f(c)
	}
	if c.FileSystem == nil {
		if c.FileSystem, err = shardfs.InferFilesystem(outputDir); err != nil {
			return nil, err
		}
	}
	if c.KeyDigits <= 0 {
		return nil, fmt.Errorf("invalid key width %d", c.KeyDigits)
	}

	if err := c.FileSystem.MkdirAll(outputDir); err != nil {
		return nil, err
	}
	sink, err := shardio.NewShardWriter(c.FileSystem, c.FileSystem.Join(outputDir, c.Pattern), c.MaxCount, c.MaxSize)
	if err != nil {
		return nil, err
	}
	log.Debugf("Writing shards to %s (max %d records, %s)", outputDir, c.MaxCount, humanize.Bytes(uint64(c.MaxSize)))

	return &Writer{
		sink:      sink,
		keyDigits: c.KeyDigits,
	}, nil
}

// Write appends one record with the next sequential key.
func (w *Writer) Write(text, embedding string) error {
	rec := shardio.Record{
		Key: fmt.Sprintf("%0*d", w.keyDigits, w.index),
		Fields: map[string][]byte{
			"text":      []byte(text),
			"embedding": []byte(embedding),
		},
	}
	if err := w.sink.Write(rec); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.Key, err)
	}
	w.index++
	return nil
}

// splitLine splits a "text<TAB>component<TAB>component..." line into the
// text and the tab-joined embedding components.
func splitLine(line string) (text, embedding string) {
	items := strings.Split(line, "\t")
	return items[0], strings.Join(items[1:], "\t")
}

// WriteLines writes one record per line of r and returns the number of
// records written.
func (w *Writer) WriteLines(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(countingSplitFunc(scanNewlines, &w.bytesRead))

	written := 0
	for scanner.Scan() {
		text, embedding := splitLine(scanner.Text())
		if err := w.Write(text, embedding); err != nil {
			return written, err
		}
		written++
	}
	return written, scanner.Err()
}

// BytesRead returns the number of input bytes consumed by WriteLines.
func (w *Writer) BytesRead() int64 {
	return w.bytesRead
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.sink.Count()
}

// Shards returns the shards created so far.
func (w *Writer) Shards() []string {
	return w.sink.Shards()
}

// Close flushes and closes the last shard.
func (w *Writer) Close() error {
	return w.sink.Close()
}

// scanNewlines splits at '\n' only. Unlike bufio.ScanLines it keeps a
// trailing '\r' as part of the line.
func scanNewlines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// countingSplitFunc wraps a bufio.SplitFunc and keeps track of the number of bytes advanced.
// Upon each scan, the value of *bytesRead will be incremented by the number of bytes
// that the SplitFunc advances.
func countingSplitFunc(split bufio.SplitFunc, bytesRead *int64) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		adv, tok, err := split(data, atEOF)
		(*bytesRead) += int64(adv)
		return adv, tok, err
	}
}
