// tarcat streams samples out of a set of tar shards, one line per sample.
//
//	tarcat [flags] <shard_pattern>
//
// The pattern may use brace expansion ("data-{000000..000099}.tar") or, for
// local and S3 locations, a glob ("s3://bucket/data-*.tar").
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/bcongdon/tarshard"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	pb "gopkg.in/cheggaaa/pb.v1"
)

var (
	keys       = flag.StringSliceP("keys", "k", []string{"__key__", "text"}, "Fields to print, in order")
	rank       = flag.Int("rank", -1, "Rank of this node")
	worldSize  = flag.Int("world-size", 0, "Number of nodes")
	workers    = flag.IntP("workers", "j", 0, "Number of concurrent workers")
	shuffle    = flag.Int("shuffle", 2000, "Shuffle buffer size (1 disables shuffling)")
	seed       = flag.Int64("seed", 0, "Shuffle seed (0 for a random seed)")
	length     = flag.Int("length", 0, "Expected number of samples, for progress reporting")
	showSplits = flag.Bool("show-splits", false, "Log node and worker shard assignments")
	limit      = flag.Int("limit", 0, "Stop after this many samples")
	verbose    = flag.BoolP("verbose", "v", false, "Output debug logs")
)

var errLimit = errors.New("limit reached")

func format(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <shard_pattern>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	viper.BindPFlag("shuffle_buffer", flag.Lookup("shuffle"))
	viper.BindPFlag("show_splits", flag.Lookup("show-splits"))
	viper.BindPFlag("rank", flag.Lookup("rank"))
	viper.BindPFlag("world_size", flag.Lookup("world-size"))

	fields := make([]tarshard.Field, len(*keys))
	for i, key := range *keys {
		fields[i] = tarshard.Field{Key: key}
	}

	options := []tarshard.Option{}
	if *seed != 0 {
		options = append(options, tarshard.WithSeed(*seed))
	}
	if *length > 0 {
		options = append(options, tarshard.WithLength(*length))
	}
	dataset, err := tarshard.NewDataset(flag.Arg(0), fields, options...)
	if err != nil {
		log.Fatal(err)
	}

	var bar *pb.ProgressBar
	if n, ok := dataset.Len(); ok {
		bar = pb.New(n).Prefix("Samples ")
		bar.Output = os.Stderr
		bar.Start()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	count := 0
	err = tarshard.NewLoader(dataset, *workers).Run(ctx, func(s tarshard.Sample) error {
		cols := make([]string, len(s))
		for i, v := range s {
			cols[i] = strings.ReplaceAll(format(v), "\n", " ")
		}
		fmt.Fprintln(out, strings.Join(cols, "\t"))
		if bar != nil {
			bar.Increment()
		}
		count++
		if *limit > 0 && count >= *limit {
			return errLimit
		}
		return nil
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil && err != errLimit {
		out.Flush()
		log.Fatal(err)
	}
	log.Debugf("Read %d samples", count)
}
