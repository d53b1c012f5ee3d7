package shardfs

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
)

const (
	// Range reads are issued in chunks of this many bytes
	defaultChunkSize = 64 * 1024 * 1024
	// Number of object sizes remembered from listings
	objectCacheSize = 4096
)

// S3FileSystem serves shards stored as S3 objects addressed by
// s3://bucket/key URLs.
type S3FileSystem struct {
	client      s3iface.S3API
	objectCache *lru.Cache
	chunkSize   int64
}

func parseS3URI(uri string) (bucket, key string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if parsed.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid s3 uri %q", uri)
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("s3 uri %q has no bucket", uri)
	}
	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}

func globPrefix(keyGlob string) string {
	if i := strings.IndexAny(keyGlob, "*?["); i >= 0 {
		return keyGlob[:i]
	}
	return keyGlob
}

// ListFiles lists the objects matching pathGlob. Without glob
// metacharacters, pathGlob is treated as a key prefix.
func (s *S3FileSystem) ListFiles(pathGlob string) ([]FileInfo, error) {
	bucket, keyGlob, err := parseS3URI(pathGlob)
	if err != nil {
		return nil, err
	}
	prefix := globPrefix(keyGlob)
	isGlob := prefix != keyGlob

	files := make([]FileInfo, 0)
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	var matchErr error
	err = s.client.ListObjectsV2Pages(params,
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, object := range page.Contents {
				key := aws.StringValue(object.Key)
				if isGlob {
					matched, err := path.Match(keyGlob, key)
					if err != nil {
						matchErr = err
						return false
					}
					if !matched {
						continue
					}
				}
				info := FileInfo{
					Name: fmt.Sprintf("s3://%s/%s", bucket, key),
					Size: aws.Int64Value(object.Size),
				}
				s.objectCache.Add(info.Name, info)
				files = append(files, info)
			}
			return true
		})
	if err == nil {
		err = matchErr
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, err
}

func (s *S3FileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}
	info, err := s.Stat(filePath)
	if err != nil {
		return nil, err
	}
	if startAt >= info.Size {
		return ioutil.NopCloser(strings.NewReader("")), nil
	}

	reader := &s3Reader{
		client:    s.client,
		bucket:    bucket,
		key:       key,
		offset:    startAt,
		chunkSize: s.chunkSize,
		totalSize: info.Size,
	}
	if err := reader.loadNextChunk(); err != nil {
		return nil, err
	}
	return reader, nil
}

func (s *S3FileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}
	s.objectCache.Remove(filePath)
	return newS3Writer(s.client, bucket, key), nil
}

// MkdirAll is a no-op; S3 has no directories.
func (s *S3FileSystem) MkdirAll(string) error {
	return nil
}

func (s *S3FileSystem) Stat(filePath string) (FileInfo, error) {
	if cached, ok := s.objectCache.Get(filePath); ok {
		return cached.(FileInfo), nil
	}

	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return FileInfo{}, err
	}
	head, err := s.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return FileInfo{}, err
	}
	info := FileInfo{
		Name: filePath,
		Size: aws.Int64Value(head.ContentLength),
	}
	s.objectCache.Add(filePath, info)
	return info, nil
}

func (s *S3FileSystem) Delete(filePath string) error {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return err
	}
	s.objectCache.Remove(filePath)
	_, err = s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3FileSystem) Join(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for i, e := range elem {
		if i > 0 {
			e = strings.TrimPrefix(e, "/")
		}
		if i < len(elem)-1 {
			e = strings.TrimSuffix(e, "/")
		}
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}

func (s *S3FileSystem) Init() error {
	if s.objectCache == nil {
		cache, err := lru.New(objectCacheSize)
		if err != nil {
			return err
		}
		s.objectCache = cache
	}
	if s.chunkSize <= 0 {
		s.chunkSize = defaultChunkSize
	}
	if s.client != nil {
		return nil
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		log.Errorf("Could not create AWS session: %s", err)
		return err
	}
	s.client = s3.New(sess)
	return nil
}
