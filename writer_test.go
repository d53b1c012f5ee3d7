package tarshard

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bcongdon/tarshard/internal/pkg/shardio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readShardKeys(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.Nil(t, err)
	defer f.Close()

	var keys []string
	r := shardio.NewTarReader(f, path)
	for {
		rec, err := r.Read()
		if err == shardio.EOF {
			return keys
		}
		require.Nil(t, err)
		keys = append(keys, rec.Key)
	}
}

func makeLines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "text %d\t0.%d\t0.%d\n", i, i, i+1)
	}
	return b.String()
}

func TestSplitLine(t *testing.T) {
	var splitLineTests = []struct {
		line      string
		text      string
		embedding string
	}{
		{"hello\t0.1\t0.2", "hello", "0.1\t0.2"},
		{"hello\t0.1", "hello", "0.1"},
		{"no embedding", "no embedding", ""},
		{"\t0.1", "", "0.1"},
		{"", "", ""},
	}

	for _, test := range splitLineTests {
		text, embedding := splitLine(test.line)
		assert.Equal(t, test.text, text)
		assert.Equal(t, test.embedding, embedding)
	}
}

func TestWriterRotation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	w, err := NewWriter(dir, WithMaxCount(2000))
	require.Nil(t, err)

	n, err := w.WriteLines(strings.NewReader(makeLines(5000)))
	require.Nil(t, err)
	require.Nil(t, w.Close())
	assert.Equal(t, 5000, n)
	assert.Equal(t, 5000, w.Count())

	files, err := filepath.Glob(filepath.Join(dir, "*.tar"))
	require.Nil(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "eng_zh-000000.tar"),
		filepath.Join(dir, "eng_zh-000001.tar"),
		filepath.Join(dir, "eng_zh-000002.tar"),
	}, files)
	assert.Equal(t, files, w.Shards())

	assert.Len(t, readShardKeys(t, files[0]), 2000)
	assert.Len(t, readShardKeys(t, files[1]), 2000)
	assert.Len(t, readShardKeys(t, files[2]), 1000)
}

func TestWriterKeyFormatting(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, WithMaxCount(3))
	require.Nil(t, err)
	_, err = w.WriteLines(strings.NewReader(makeLines(5)))
	require.Nil(t, err)
	require.Nil(t, w.Close())

	assert.Equal(t, []string{"0000000", "0000001", "0000002"}, readShardKeys(t, filepath.Join(dir, "eng_zh-000000.tar")))
	assert.Equal(t, []string{"0000003", "0000004"}, readShardKeys(t, filepath.Join(dir, "eng_zh-000001.tar")))
}

func TestWriterOptions(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, WithShardPattern("part-%03d.tar"), WithKeyDigits(4), WithMaxSize(1))
	require.Nil(t, err)
	require.Nil(t, w.Write("a", "1"))
	require.Nil(t, w.Write("b", "2"))
	require.Nil(t, w.Close())

	// A 1 byte limit puts every record in its own shard
	assert.Equal(t, []string{"0000"}, readShardKeys(t, filepath.Join(dir, "part-000.tar")))
	assert.Equal(t, []string{"0001"}, readShardKeys(t, filepath.Join(dir, "part-001.tar")))

	_, err = NewWriter(dir, WithKeyDigits(0))
	assert.NotNil(t, err)

	_, err = NewWriter(dir, WithShardPattern("fixed.tar"))
	assert.NotNil(t, err)
}

func TestWriterBytesRead(t *testing.T) {
	input := "a\t1\nbb\t2\n"
	w, err := NewWriter(t.TempDir())
	require.Nil(t, err)

	n, err := w.WriteLines(strings.NewReader(input))
	assert.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(len(input)), w.BytesRead())
	assert.Nil(t, w.Close())
}

func TestCountingSplitFunc(t *testing.T) {
	var bytesRead int64
	splitFunc := countingSplitFunc(bufio.ScanLines, &bytesRead)

	buf := new(bytes.Buffer)
	buf.Write([]byte("foo\n123456\na"))

	scanner := bufio.NewScanner(buf)
	scanner.Split(splitFunc)

	assert.Equal(t, int64(0), bytesRead)

	scanner.Scan()
	assert.Equal(t, int64(4), bytesRead)
	assert.Equal(t, "foo", scanner.Text())

	scanner.Scan()
	assert.Equal(t, int64(4+7), bytesRead)
	assert.Equal(t, "123456", scanner.Text())

	scanner.Scan()
	assert.Equal(t, int64(4+7+1), bytesRead)
	assert.Equal(t, "a", scanner.Text())
}

func TestWriteLinesKeepsCarriageReturn(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.Nil(t, err)

	n, err := w.WriteLines(strings.NewReader("a\t1\t2\r\nb\t3\nc\t4"))
	require.Nil(t, err)
	assert.Equal(t, 3, n)
	require.Nil(t, w.Close())

	f, err := os.Open(w.Shards()[0])
	require.Nil(t, err)
	defer f.Close()

	var embeddings []string
	r := shardio.NewTarReader(f, "")
	for {
		rec, err := r.Read()
		if err == shardio.EOF {
			break
		}
		require.Nil(t, err)
		embeddings = append(embeddings, string(rec.Fields["embedding"]))
	}
	assert.Equal(t, []string{"1\t2\r", "3", "4"}, embeddings)
}

func TestScanNewlines(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("x\r\n\ny"))
	scanner.Split(scanNewlines)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	assert.Nil(t, scanner.Err())
	assert.Equal(t, []string{"x\r", "", "y"}, lines)
}
