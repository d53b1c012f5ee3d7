// Package shardfs provides the storage backends that shard archives are
// listed from, read from and written to.
package shardfs

import (
	"fmt"
	"io"
	"strings"
)

// FileSystemType is an identifier for supported FileSystems
type FileSystemType int

// Identifiers for supported FileSystemTypes
const (
	Local FileSystemType = iota
	S3
)

// FileSystem provides the file backend for shard archives.
// Shards are read from and written to a file system. This is abstracted
// so that shard URLs may point at remote filesystems like S3.
type FileSystem interface {
	ListFiles(pathGlob string) ([]FileInfo, error)
	Stat(filePath string) (FileInfo, error)
	OpenReader(filePath string, startAt int64) (io.ReadCloser, error)
	OpenWriter(filePath string) (io.WriteCloser, error)
	MkdirAll(dirPath string) error
	Delete(filePath string) error
	Join(elem ...string) string
	Init() error
}

// FileInfo provides information about a file
type FileInfo struct {
	Name string // file path
	Size int64  // file size in bytes
}

// InitFilesystem intializes a filesystem of the given type
func InitFilesystem(fsType FileSystemType) (FileSystem, error) {
	var fs FileSystem
	switch fsType {
	case Local:
		fs = &LocalFileSystem{}
	case S3:
		fs = &S3FileSystem{}
	default:
		return nil, fmt.Errorf("unknown filesystem type %d", fsType)
	}

	if err := fs.Init(); err != nil {
		return nil, fmt.Errorf("initializing filesystem: %w", err)
	}
	return fs, nil
}

// FilesystemType infers the type of filesystem needed for the given location
func FilesystemType(location string) FileSystemType {
	if strings.HasPrefix(location, "s3://") {
		return S3
	}
	return Local
}

// InferFilesystem initializes a filesystem by inferring its type from
// a file address.
func InferFilesystem(location string) (FileSystem, error) {
	return InitFilesystem(FilesystemType(location))
}
