// Package s3 处理对象存储操作：读取源文档、写 JSON 旁路文件、按前缀清理以及打标签.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"

	"github.com/yeisme/docpipe/pkg/configs"
	nlog "github.com/yeisme/docpipe/pkg/log"
)

// ErrObjectNotFound 对象不存在.
var ErrObjectNotFound = errors.New("s3: object not found")

// Client 包装 MinIO 客户端.
type Client struct {
	*minio.Client
	bucket string
}

// New 初始化 MinIO 客户端，EnsureBucket 时若 bucket 不存在则创建.
func New(ctx context.Context, cfg configs.S3Config) (*Client, error) {
	endpoint := cfg.Endpoint
	// 允许传完整 schema endpoint（http:// 或 https://）
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			cfg.UseSSL = true
		}
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo("docpipe", configs.AppVersion)

	if cfg.EnsureBucket {
		exists, err := cli.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
		}

		if !exists {
			if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
			}

			nlog.Logger().Info().Str("bucket", cfg.Bucket).Msg("bucket created")
		}
	}

	nlog.Logger().Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("s3 connected")

	return &Client{Client: cli, bucket: cfg.Bucket}, nil
}

// Bucket 返回默认桶.
func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) bucketOr(bucket string) string {
	if bucket == "" {
		return c.bucket
	}

	return bucket
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code

	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// Read 读取对象前 limit 字节，limit<=0 读取全部.
func (c *Client) Read(ctx context.Context, bucket, key string, limit int64) ([]byte, error) {
	obj, err := c.GetObject(ctx, c.bucketOr(bucket), key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}

		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	var r io.Reader = obj
	if limit > 0 {
		r = io.LimitReader(obj, limit)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		// GetObject 是惰性的，不存在的错误在第一次读时出现
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}

		return nil, fmt.Errorf("read object %s: %w", key, err)
	}

	return data, nil
}

// PutJSON 写入 JSON 对象（覆盖同名对象）.
func (c *Client) PutJSON(ctx context.Context, bucket, key string, body []byte) error {
	_, err := c.PutObject(ctx, c.bucketOr(bucket), key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	return nil
}

// List 递归列出前缀下的所有对象键.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string

	for obj := range c.ListObjects(ctx, c.bucketOr(bucket), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}

		keys = append(keys, obj.Key)
	}

	return keys, nil
}

// Remove 批量删除对象，返回成功删除的数量；部分失败时返回第一个错误.
func (c *Client) Remove(ctx context.Context, bucket string, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objectsCh <- minio.ObjectInfo{Key: k}
	}

	close(objectsCh)

	var (
		failed   int
		firstErr error
	)

	for rerr := range c.RemoveObjects(ctx, c.bucketOr(bucket), objectsCh, minio.RemoveObjectsOptions{}) {
		failed++

		if firstErr == nil {
			firstErr = fmt.Errorf("remove object %s: %w", rerr.ObjectName, rerr.Err)
		}
	}

	return len(keys) - failed, firstErr
}

// SetTags 覆盖对象标签.
func (c *Client) SetTags(ctx context.Context, bucket, key string, kv map[string]string) error {
	t, err := tags.NewTags(kv, true)
	if err != nil {
		return fmt.Errorf("build tags: %w", err)
	}

	if err := c.PutObjectTagging(ctx, c.bucketOr(bucket), key, t, minio.PutObjectTaggingOptions{}); err != nil {
		return fmt.Errorf("tag object %s: %w", key, err)
	}

	return nil
}

// HealthCheck 检查默认桶是否可访问.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.BucketExists(ctx, c.bucket)
	return err
}

// Close 关闭 S3 客户端连接（无实际操作，接口兼容）.
func (c *Client) Close() error {
	return nil
}
