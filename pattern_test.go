package tarshard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandShards(t *testing.T) {
	var expandTests = []struct {
		pattern  string
		expected []string
	}{
		{"plain.tar", []string{"plain.tar"}},
		{"video-{000000..000003}.tar", []string{"video-000000.tar", "video-000001.tar", "video-000002.tar", "video-000003.tar"}},
		{"s3://bucket/x-{8..11}.tar", []string{"s3://bucket/x-8.tar", "s3://bucket/x-9.tar", "s3://bucket/x-10.tar", "s3://bucket/x-11.tar"}},
		{"x-{3..1}.tar", []string{"x-3.tar", "x-2.tar", "x-1.tar"}},
		{"x-{0..6..3}", []string{"x-0", "x-3", "x-6"}},
		{"x-{098..100}", []string{"x-098", "x-099", "x-100"}},
		{"{train,val}.tar", []string{"train.tar", "val.tar"}},
		{"{a,b}-{0..1}", []string{"a-0", "a-1", "b-0", "b-1"}},
		{"{a,b{0..1}}.tar", []string{"a.tar", "b0.tar", "b1.tar"}},
		{"{a,,b}", []string{"a", "", "b"}},
		{"x-{9223372036854775806..9223372036854775807}", []string{"x-9223372036854775806", "x-9223372036854775807"}},
		{"x-{0..7..3}", []string{"x-0", "x-3", "x-6"}},
		{"x-{4..0..-2}", []string{"x-4", "x-2", "x-0"}},
	}

	for _, test := range expandTests {
		urls, err := ExpandShards(test.pattern)
		assert.Nil(t, err, test.pattern)
		assert.Equal(t, test.expected, urls, test.pattern)
	}
}

func TestExpandShardsErrors(t *testing.T) {
	for _, pattern := range []string{
		"x-{000..003.tar",
		"x-000..003}.tar",
		"x-{single}.tar",
		"x-{a..3}.tar",
		"x-{0..3..0}.tar",
		"x-{0..1..2..3}.tar",
		"x-{0..99999999999}.tar",
		"x-{0..9223372036854775807}.tar",
		"x-{-9223372036854775808..9223372036854775807}.tar",
		"x-{9223372036854775807..0}.tar",
		"x-{0..3..-9223372036854775808}.tar",
	} {
		_, err := ExpandShards(pattern)
		assert.True(t, errors.Is(err, ErrBadPattern), pattern)
	}
}
