// Package storage 提供立方体归档所用的对象存储抽象。
package storage

import (
	"context"
	"io"
)

// Storage 对象存储的最小接口，cube.ObjectStore 依赖它而非具体驱动。
type Storage interface {
	// Upload 上传对象，size 为 -1 时按流式分片上传。
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectName string) error
	Exists(ctx context.Context, objectName string) (bool, error)
	// List 返回前缀下的对象名，按字典序。
	List(ctx context.Context, prefix string) ([]string, error)
}
