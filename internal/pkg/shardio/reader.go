package shardio

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/ioutil"

	log "github.com/sirupsen/logrus"
)

// TarReader groups the entries of a single tar archive into records.
type TarReader struct {
	tr      *tar.Reader
	url     string
	pending *Record
	done    bool
}

// NewTarReader returns a TarReader over the archive read from r. url is
// attached to every record read.
func NewTarReader(r io.Reader, url string) *TarReader {
	return &TarReader{
		tr:  tar.NewReader(r),
		url: url,
	}
}

// Read returns the next record in the archive, or EOF.
func (t *TarReader) Read() (Record, error) {
	for !t.done {
		head, err := t.tr.Next()
		if err == io.EOF {
			t.done = true
			break
		}
		if err != nil {
			return Record{}, fmt.Errorf("%s: %w", t.url, err)
		}
		if head.Typeflag != tar.TypeReg || isMeta(head.Name) {
			continue
		}
		prefix, ext, ok := splitName(head.Name)
		if !ok {
			log.Debugf("%s: skipping entry without extension: %s", t.url, head.Name)
			continue
		}
		body, err := ioutil.ReadAll(t.tr)
		if err != nil {
			return Record{}, fmt.Errorf("%s: reading %s: %w", t.url, head.Name, err)
		}

		if t.pending != nil && t.pending.Key != prefix {
			rec := *t.pending
			t.pending = newRecord(prefix, t.url)
			t.pending.Fields[ext] = body
			return rec, nil
		}
		if t.pending == nil {
			t.pending = newRecord(prefix, t.url)
		}
		if _, exists := t.pending.Fields[ext]; exists {
			return Record{}, fmt.Errorf("%s: duplicate entry %s", t.url, head.Name)
		}
		t.pending.Fields[ext] = body
	}

	if t.pending == nil {
		return Record{}, EOF
	}
	rec := *t.pending
	t.pending = nil
	return rec, nil
}

func newRecord(key, url string) *Record {
	return &Record{
		Key:    key,
		URL:    url,
		Fields: make(map[string][]byte),
	}
}

// Opener opens the shard at url for reading.
type Opener func(url string) (io.ReadCloser, error)

// ShardReader is the logical concatenation of the records of an ordered
// list of shards. Shards are opened lazily, one at a time.
type ShardReader struct {
	urls   []string
	open   Opener
	cur    *TarReader
	closer io.Closer
	err    error
}

// NewShardReader returns a ShardReader over urls.
func NewShardReader(urls []string, open Opener) *ShardReader {
	return &ShardReader{
		urls: urls,
		open: open,
	}
}

// Read returns the next record, or EOF once every shard is exhausted.
// Errors are sticky.
func (s *ShardReader) Read(ctx context.Context) (Record, error) {
	if s.err != nil {
		return Record{}, s.err
	}
	for {
		if s.cur == nil {
			if len(s.urls) == 0 {
				return Record{}, EOF
			}
			if err := ctx.Err(); err != nil {
				s.err = err
				return Record{}, err
			}
			url := s.urls[0]
			s.urls = s.urls[1:]
			rc, err := s.open(url)
			if err != nil {
				s.err = fmt.Errorf("opening shard %s: %w", url, err)
				return Record{}, s.err
			}
			log.Debugf("Reading shard %s", url)
			s.cur = NewTarReader(rc, url)
			s.closer = rc
		}

		rec, err := s.cur.Read()
		if err == EOF {
			s.closeCurrent()
			continue
		}
		if err != nil {
			s.closeCurrent()
			s.err = err
			return Record{}, err
		}
		return rec, nil
	}
}

func (s *ShardReader) closeCurrent() {
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			log.Warnf("Closing shard %s: %s", s.cur.url, err)
		}
	}
	s.cur = nil
	s.closer = nil
}

// Close releases the currently open shard, if any.
func (s *ShardReader) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.cur = nil
	s.closer = nil
	return err
}
