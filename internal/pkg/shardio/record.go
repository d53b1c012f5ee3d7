// Package shardio reads and writes records stored in sharded tar archives.
//
// A record is a group of consecutive tar entries sharing a key prefix. The
// entry "dir/0000012.text" contributes the field "text" to the record keyed
// "dir/0000012". The prefix ends at the first '.' of the entry's base name,
// so "a.seg.json" holds the field "seg.json" of record "a".
package shardio

import (
	"errors"
	"path"
	"strings"
)

// EOF is returned by readers when no more records are available.
var EOF = errors.New("EOF")

// Record is a key-labeled bundle of fields stored in a shard.
type Record struct {
	Key    string            // shared prefix of the record's entries
	URL    string            // shard the record was read from; empty when writing
	Fields map[string][]byte // extension -> entry contents
}

// splitName splits an entry name into its key prefix and extension. ok is
// false for names without an extension.
func splitName(name string) (prefix, ext string, ok bool) {
	dir, base := path.Split(name)
	i := strings.IndexByte(base, '.')
	if i <= 0 || i == len(base)-1 {
		return "", "", false
	}
	return dir + base[:i], strings.ToLower(base[i+1:]), true
}

// isMeta reports whether a top-level entry is archive metadata, such as
// "__info__", rather than record data.
func isMeta(name string) bool {
	return !strings.Contains(name, "/") && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}
