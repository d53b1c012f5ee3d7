package tarshard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadPattern is wrapped by errors for malformed shard patterns.
var ErrBadPattern = errors.New("bad shard pattern")

// Upper bound on the number of URLs a single pattern may expand to
const maxExpansion = 10000000

// ExpandShards expands brace groups in pattern into an ordered list of
// shard URLs. A group is either a numeric range "{lo..hi}" or "{lo..hi..step}",
// zero-padded to the width of its bounds when either bound has a leading
// zero, or a list of alternatives "{a,b,c}". Groups may be nested; with
// several groups the leftmost varies slowest.
func ExpandShards(pattern string) ([]string, error) {
	urls, err := expand(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %s", ErrBadPattern, pattern, err)
	}
	return urls, nil
}

func expand(pattern string) ([]string, error) {
	start, end, err := findGroup(pattern)
	if err != nil {
		return nil, err
	}
	if start < 0 {
		return []string{pattern}, nil
	}

	prefix, body, suffix := pattern[:start], pattern[start+1:end], pattern[end+1:]
	alternatives := splitTopLevel(body)
	if len(alternatives) == 1 {
		alternatives, err = expandRange(body)
		if err != nil {
			return nil, err
		}
	}

	var urls []string
	for _, alt := range alternatives {
		expanded, err := expand(prefix + alt + suffix)
		if err != nil {
			return nil, err
		}
		urls = append(urls, expanded...)
		if len(urls) > maxExpansion {
			return nil, fmt.Errorf("expands to more than %d shards", maxExpansion)
		}
	}
	return urls, nil
}

// findGroup returns the positions of the first top-level brace group, or
// start == -1 if there is none.
func findGroup(pattern string) (start, end int, err error) {
	depth := 0
	start = -1
	for i, c := range pattern {
		switch c {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				return 0, 0, fmt.Errorf("unmatched '}' at %d", i)
			}
			depth--
			if depth == 0 {
				return start, i, nil
			}
		}
	}
	if depth > 0 {
		return 0, 0, fmt.Errorf("unmatched '{' at %d", start)
	}
	return -1, -1, nil
}

// splitTopLevel splits body at commas that are not inside nested groups.
func splitTopLevel(body string) []string {
	var parts []string
	depth, start := 0, 0
	for i, c := range body {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, body[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, body[start:])
}

func padded(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return len(s) > 1 && s[0] == '0'
}

func expandRange(body string) ([]string, error) {
	bounds := strings.Split(body, "..")
	if len(bounds) != 2 && len(bounds) != 3 {
		return nil, fmt.Errorf("group {%s} is neither a range nor a list", body)
	}
	lo, err := strconv.Atoi(bounds[0])
	if err != nil {
		return nil, fmt.Errorf("range {%s}: %s", body, err)
	}
	hi, err := strconv.Atoi(bounds[1])
	if err != nil {
		return nil, fmt.Errorf("range {%s}: %s", body, err)
	}
	step := 1
	if len(bounds) == 3 {
		if step, err = strconv.Atoi(bounds[2]); err != nil {
			return nil, fmt.Errorf("range {%s}: %s", body, err)
		}
		if step < 0 {
			step = -step
		}
		if step <= 0 {
			return nil, fmt.Errorf("range {%s}: invalid step %s", body, bounds[2])
		}
	}

	// The span is computed unsigned so that extreme bounds cannot wrap.
	var span uint64
	if lo <= hi {
		span = uint64(hi) - uint64(lo)
	} else {
		span = uint64(lo) - uint64(hi)
	}
	count := span/uint64(step) + 1
	if span/uint64(step) >= maxExpansion {
		return nil, fmt.Errorf("range {%s} is too large", body)
	}

	width := 0
	if padded(bounds[0]) || padded(bounds[1]) {
		width = len(bounds[0])
		if len(bounds[1]) > width {
			width = len(bounds[1])
		}
	}

	if lo > hi {
		step = -step
	}
	values := make([]string, count)
	for k := range values {
		values[k] = fmt.Sprintf("%0*d", width, lo+k*step)
	}
	return values, nil
}
