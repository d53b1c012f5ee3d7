// write2tar converts a file of "text<TAB>embedding" lines into tar shards.
//
//	write2tar [flags] <record_filename> <output_dir>
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bcongdon/tarshard"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	pb "gopkg.in/cheggaaa/pb.v1"
)

var (
	maxCount = flag.Int("maxcount", 2000, "Maximum number of records per shard")
	maxSize  = flag.String("maxsize", "6GB", "Maximum size of a shard")
	pattern  = flag.String("pattern", "eng_zh-%06d.tar", "Shard file name pattern")
	quiet    = flag.BoolP("quiet", "q", false, "Do not show a progress bar")
	verbose  = flag.BoolP("verbose", "v", false, "Output debug logs")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] <record_filename> <output_dir>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	recordFile, outputDir := flag.Arg(0), flag.Arg(1)

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	viper.BindPFlag("shard_maxcount", flag.Lookup("maxcount"))
	viper.BindPFlag("shard_maxsize", flag.Lookup("maxsize"))
	viper.BindPFlag("shard_pattern", flag.Lookup("pattern"))

	f, err := os.Open(recordFile)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	w, err := tarshard.NewWriter(outputDir)
	if err != nil {
		log.Fatal(err)
	}

	var bar *pb.ProgressBar
	var input io.Reader = f
	if !*quiet {
		if info, err := f.Stat(); err == nil {
			bar = pb.New64(info.Size()).SetUnits(pb.U_BYTES).Prefix("Writing ")
			bar.Output = os.Stderr
			bar.Start()
			input = bar.NewProxyReader(f)
		}
	}

	start := time.Now()
	n, err := w.WriteLines(input)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		log.Fatal(err)
	}
	if err := w.Close(); err != nil {
		log.Fatal(err)
	}

	log.Infof("Wrote %d records (%s) to %d shards in %s",
		n, humanize.Bytes(uint64(w.BytesRead())), len(w.Shards()), time.Since(start))
}
