package tarshard

import (
	"context"
	"math/rand"
)

// shuffler is a bounded shuffle buffer. It fills up to capacity records;
// from then on each read admits one record from in and emits a uniformly
// chosen buffered one. Once in is exhausted the buffer drains in random
// order. A capacity of 1 preserves input order.
type shuffler struct {
	in       RecordReader
	buf      []Record
	capacity int
	rng      *rand.Rand
	done     bool
}

func newShuffler(in RecordReader, capacity int, rng *rand.Rand) *shuffler {
	if capacity < 1 {
		capacity = 1
	}
	return &shuffler{
		in:       in,
		buf:      make([]Record, 0, capacity),
		capacity: capacity,
		rng:      rng,
	}
}

func (s *shuffler) Read(ctx context.Context) (Record, error) {
	for !s.done && len(s.buf) < s.capacity {
		rec, err := s.in.Read(ctx)
		if err == EOF {
			s.done = true
			break
		}
		if err != nil {
			return Record{}, err
		}
		s.buf = append(s.buf, rec)
	}
	if len(s.buf) == 0 {
		return Record{}, EOF
	}

	i := s.rng.Intn(len(s.buf))
	last := len(s.buf) - 1
	rec := s.buf[i]
	s.buf[i] = s.buf[last]
	s.buf[last] = Record{}
	s.buf = s.buf[:last]
	return rec, nil
}

// Pending returns the number of records currently buffered.
func (s *shuffler) Pending() int {
	return len(s.buf)
}
