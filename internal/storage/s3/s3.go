package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"filedrive/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/s3utils"
)

// Config 包含 S3/MinIO 存储所需的配置。
type Config struct {
	Endpoint  string // 不含协议，如 "localhost:9000" 或 "s3.amazonaws.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool // 是否使用 HTTPS
	PathStyle bool // 是否使用路径风格（MinIO 需要 true）
}

// Gateway 基于 minio-go 实现 storage.Gateway。
type Gateway struct {
	client    *minio.Client
	core      *minio.Core
	bucket    string
	region    string
	pathStyle bool
}

var _ storage.Gateway = (*Gateway)(nil)

// New 创建网关实例，bucket 不存在时自动创建。
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	g, err := newGateway(cfg)
	if err != nil {
		return nil, err
	}

	// 检查 bucket 是否存在，不存在则创建
	exists, err := g.client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := g.client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{
			Region: cfg.Region,
		}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return g, nil
}

// newGateway 只构造客户端，不访问网络；Region 已知时签名也无需网络。
func newGateway(cfg Config) (*Gateway, error) {
	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Gateway{
		client: client,
		core:   &minio.Core{Client: client},
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		pathStyle: cfg.PathStyle,
	}, nil
}

// AuthorizeUpload 签发单次 PUT 上传地址。
func (g *Gateway) AuthorizeUpload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}
	u, err := g.client.PresignedPutObject(ctx, g.bucket, cleanKey(key), ttl)
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return u.String(), nil
}

// AuthorizeDownload 签发 GET 下载地址。
func (g *Gateway) AuthorizeDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}
	u, err := g.client.PresignedGetObject(ctx, g.bucket, cleanKey(key), ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

// AuthorizeChunk 签发 UploadPart 地址，客户端 PUT 后从响应头取得 ETag。
func (g *Gateway) AuthorizeChunk(ctx context.Context, key, sessionID string, chunkNumber int, ttl time.Duration) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("partNumber", strconv.Itoa(chunkNumber))
	params.Set("uploadId", sessionID)

	u, err := g.client.Presign(ctx, http.MethodPut, g.bucket, cleanKey(key), ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign upload part: %w", err)
	}
	return u.String(), nil
}

// OpenSession 发起 multipart 上传并返回 uploadId。
func (g *Gateway) OpenSession(ctx context.Context, key string) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}
	uploadID, err := g.core.NewMultipartUpload(ctx, g.bucket, cleanKey(key), minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("new multipart upload: %w", err)
	}
	return uploadID, nil
}

// CompleteSession 按给定顺序提交分片列表。
func (g *Gateway) CompleteSession(ctx context.Context, key, sessionID string, parts []storage.Part) error {
	if err := g.ready(); err != nil {
		return err
	}
	completed := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completed[i] = minio.CompletePart{PartNumber: p.Number, ETag: p.ETag}
	}

	if _, err := g.core.CompleteMultipartUpload(ctx, g.bucket, cleanKey(key), sessionID, completed, minio.PutObjectOptions{}); err != nil {
		if isNoSuchUpload(err) {
			return fmt.Errorf("complete multipart upload: %w", storage.ErrSessionNotFound)
		}
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	return nil
}

// AbortSession 放弃 multipart 上传；会话已不存在视为成功。
func (g *Gateway) AbortSession(ctx context.Context, key, sessionID string) error {
	if err := g.ready(); err != nil {
		return err
	}
	if err := g.core.AbortMultipartUpload(ctx, g.bucket, cleanKey(key), sessionID); err != nil {
		if isNoSuchUpload(err) {
			return nil
		}
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

// Delete 从 S3 存储删除对象。
func (g *Gateway) Delete(ctx context.Context, key string) error {
	if err := g.ready(); err != nil {
		return err
	}
	return g.client.RemoveObject(ctx, g.bucket, cleanKey(key), minio.RemoveObjectOptions{})
}

// ObjectExists 用 StatObject 判断对象是否存在。
func (g *Gateway) ObjectExists(ctx context.Context, key string) (bool, error) {
	if err := g.ready(); err != nil {
		return false, err
	}
	if _, err := g.client.StatObject(ctx, g.bucket, cleanKey(key), minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

// ObjectURL 返回对象地址，寻址方式与客户端一致：
// 关闭路径风格且 endpoint 支持时使用虚拟主机风格。
func (g *Gateway) ObjectURL(key string) string {
	u := *g.client.EndpointURL()
	if !g.pathStyle && s3utils.IsVirtualHostSupported(u, g.bucket) {
		u.Host = g.bucket + "." + u.Host
		u.Path = path.Join("/", cleanKey(key))
		return u.String()
	}
	u.Path = path.Join("/", g.bucket, cleanKey(key))
	return u.String()
}

func (g *Gateway) ready() error {
	if g == nil || g.client == nil {
		return errors.New("s3 storage uninitialized")
	}
	return nil
}

func cleanKey(key string) string {
	return filepath.ToSlash(filepath.Clean(key))
}

func isNoSuchUpload(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchUpload"
}
