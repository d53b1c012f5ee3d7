package shardio

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bcongdon/tarshard/internal/pkg/shardfs"
	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

const tarBlockSize = 512

// ShardWriter appends records to a sequence of tar shards named by a
// numeric pattern such as "out/eng_zh-%06d.tar". A new shard is started
// when the open one holds maxCount records or maxSize bytes.
type ShardWriter struct {
	fs       shardfs.FileSystem
	pattern  string
	maxCount int
	maxSize  int64

	shard  int
	name   string
	out    io.WriteCloser
	tw     *tar.Writer
	count  int
	size   int64
	shards []string
	total  int

	now func() time.Time
}

// NewShardWriter returns a ShardWriter writing shards through fs.
// Non-positive limits disable the corresponding rotation rule.
func NewShardWriter(fs shardfs.FileSystem, pattern string, maxCount int, maxSize int64) (*ShardWriter, error) {
	if !strings.Contains(pattern, "%") {
		return nil, fmt.Errorf("shard pattern %q has no shard index verb", pattern)
	}
	return &ShardWriter{
		fs:       fs,
		pattern:  pattern,
		maxCount: maxCount,
		maxSize:  maxSize,
		now:      time.Now,
	}, nil
}

func (s *ShardWriter) full() bool {
	return (s.maxCount > 0 && s.count >= s.maxCount) || (s.maxSize > 0 && s.size >= s.maxSize)
}

func (s *ShardWriter) nextShard() error {
	if err := s.finishShard(); err != nil {
		return err
	}
	name := fmt.Sprintf(s.pattern, s.shard)
	out, err := s.fs.OpenWriter(name)
	if err != nil {
		return err
	}
	log.Debugf("Writing shard %s", name)
	s.shard++
	s.name = name
	s.out = out
	s.tw = tar.NewWriter(out)
	s.count = 0
	s.size = 0
	s.shards = append(s.shards, name)
	return nil
}

func (s *ShardWriter) finishShard() error {
	if s.tw == nil {
		return nil
	}
	err := s.tw.Close()
	if closeErr := s.out.Close(); err == nil {
		err = closeErr
	}
	s.tw = nil
	s.out = nil
	if err != nil {
		s.discardShard()
		return fmt.Errorf("closing shard %s: %w", s.name, err)
	}
	log.Debugf("Finished shard %s: %d records, %s", s.name, s.count, humanize.Bytes(uint64(s.size)))
	return nil
}

// discardShard removes a shard that could not be completed, so readers
// never see a truncated archive.
func (s *ShardWriter) discardShard() {
	s.shards = s.shards[:len(s.shards)-1]
	s.total -= s.count
	if err := s.fs.Delete(s.name); err != nil {
		log.Warnf("Removing incomplete shard %s: %s", s.name, err)
	}
}

func validateRecord(rec Record) error {
	if rec.Key == "" {
		return errors.New("record has no key")
	}
	if strings.Contains(path.Base(rec.Key), ".") {
		return fmt.Errorf("record key %q must not contain '.'", rec.Key)
	}
	if len(rec.Fields) == 0 {
		return fmt.Errorf("record %q has no fields", rec.Key)
	}
	for ext := range rec.Fields {
		if ext == "" || strings.HasPrefix(ext, "_") {
			return fmt.Errorf("record %q: invalid field name %q", rec.Key, ext)
		}
	}
	return nil
}

// entrySize is the number of archive bytes an entry occupies.
func entrySize(n int) int64 {
	blocks := (int64(n) + tarBlockSize - 1) / tarBlockSize
	return tarBlockSize + blocks*tarBlockSize
}

// Write appends rec to the open shard, rotating first if it is full.
// Fields are written in lexical order of their names.
func (s *ShardWriter) Write(rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if s.tw == nil || s.full() {
		if err := s.nextShard(); err != nil {
			return err
		}
	}

	exts := make([]string, 0, len(rec.Fields))
	for ext := range rec.Fields {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	modTime := s.now()
	for _, ext := range exts {
		data := rec.Fields[ext]
		head := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     rec.Key + "." + ext,
			Mode:     0444,
			Size:     int64(len(data)),
			ModTime:  modTime,
			Uname:    "bigdata",
			Gname:    "bigdata",
		}
		if err := s.tw.WriteHeader(head); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		if _, err := s.tw.Write(data); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		s.size += entrySize(len(data))
	}
	s.count++
	s.total++
	return nil
}

// Shards returns the names of the shards opened so far, in order.
func (s *ShardWriter) Shards() []string {
	return append([]string(nil), s.shards...)
}

// Count returns the total number of records written.
func (s *ShardWriter) Count() int {
	return s.total
}

// Close flushes and closes the open shard. Close must not be called more
// than once.
func (s *ShardWriter) Close() error {
	return s.finishShard()
}
