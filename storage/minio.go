package storage

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/xerrors"
)

// MinIOClient 实现 Storage，对接 MinIO 或 S3 兼容存储。
type MinIOClient struct {
	mu     sync.RWMutex
	client *minio.Client
	bucket string
	logger *logging.Logger
}

var errNotInitialized = xerrors.New(xerrors.ErrUnavailable, 503, "minio client not initialized", "", nil)

// NewMinIOClient 构造一个新的 MinIO 存储驱动。
func NewMinIOClient(cfg config.MinioConfig, logger *logging.Logger) (*MinIOClient, error) {
	client, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	logger = logging.Component(logger, "minio")
	logger.Info("minio client initialized", "endpoint", cfg.Endpoint, "bucket", cfg.BucketName)

	return &MinIOClient{client: client, bucket: cfg.BucketName, logger: logger}, nil
}

func (c *MinIOClient) snapshot() (*minio.Client, string, error) {
	if c == nil {
		return nil, "", errNotInitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, "", errNotInitialized
	}
	return c.client, c.bucket, nil
}

// Upload 将数据流上传至绑定的存储桶。
func (c *MinIOClient) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	client, bucket, err := c.snapshot()
	if err != nil {
		return err
	}
	start := time.Now()
	if _, err := client.PutObject(ctx, bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		c.logger.ErrorContext(ctx, "minio upload failed", "object", objectName, "error", err)
		return xerrors.Wrap(err, xerrors.ErrUnavailable, "upload "+objectName)
	}
	c.logger.DebugContext(ctx, "minio upload successful", "object", objectName, "duration", time.Since(start))
	return nil
}

func (c *MinIOClient) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	client, bucket, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	obj, err := client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrUnavailable, "download "+objectName)
	}
	return obj, nil
}

func (c *MinIOClient) Delete(ctx context.Context, objectName string) error {
	client, bucket, err := c.snapshot()
	if err != nil {
		return err
	}
	return client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{})
}

// Exists 检查对象是否存在.
func (c *MinIOClient) Exists(ctx context.Context, objectName string) (bool, error) {
	client, bucket, err := c.snapshot()
	if err != nil {
		return false, err
	}
	if _, err := client.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *MinIOClient) List(ctx context.Context, prefix string) ([]string, error) {
	client, bucket, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	var names []string
	for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, xerrors.Wrap(obj.Err, xerrors.ErrUnavailable, "list "+prefix)
		}
		names = append(names, obj.Key)
	}
	slices.Sort(names)
	return names, nil
}

// UpdateConfig 使用最新配置刷新 MinIO 客户端。
func (c *MinIOClient) UpdateConfig(cfg config.MinioConfig) error {
	client, err := newMinioClient(cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.client = client
	c.bucket = cfg.BucketName
	c.mu.Unlock()

	c.logger.Info("minio client updated", "endpoint", cfg.Endpoint, "bucket", cfg.BucketName)
	return nil
}

// RegisterReloadHook 注册 MinIO 客户端热更新回调。
func RegisterReloadHook(client *MinIOClient) {
	if client == nil {
		return
	}
	config.RegisterReloadHook(func(updated *config.Config) {
		if updated == nil {
			return
		}
		if err := client.UpdateConfig(updated.Minio); err != nil {
			client.logger.Error("minio client reload failed", "error", err)
		}
	})
}

func newMinioClient(cfg config.MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrConfiguration, "failed to create minio client for "+cfg.Endpoint)
	}
	return client, nil
}
