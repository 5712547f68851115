// Package awss3 基于 aws-sdk-go-v2 实现 storage.Gateway。
package awss3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"filedrive/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Config 包含访问 S3 兼容存储所需的配置。
type Config struct {
	Endpoint  string // 完整 URL；为空时使用 AWS 区域默认地址
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	PathStyle bool // 是否使用路径风格访问
}

// Gateway 基于 S3 客户端与预签名客户端实现 storage.Gateway。
type Gateway struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	region  string
	base    string
}

var _ storage.Gateway = (*Gateway)(nil)

// New 使用静态凭证构造客户端，不访问网络。
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &Gateway{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		base:    cfg.Endpoint,
	}, nil
}

// AuthorizeUpload 签发单次 PUT 上传地址。
func (g *Gateway) AuthorizeUpload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := g.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return req.URL, nil
}

// AuthorizeDownload 签发 GET 下载地址。
func (g *Gateway) AuthorizeDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// AuthorizeChunk 签发 UploadPart 地址，客户端 PUT 后从响应头取得 ETag。
func (g *Gateway) AuthorizeChunk(ctx context.Context, key, sessionID string, chunkNumber int, ttl time.Duration) (string, error) {
	req, err := g.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(g.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(sessionID),
		PartNumber: aws.Int32(int32(chunkNumber)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign upload part: %w", err)
	}
	return req.URL, nil
}

// OpenSession 发起 multipart 上传并返回 uploadId。
func (g *Gateway) OpenSession(ctx context.Context, key string) (string, error) {
	out, err := g.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", err)
	}
	return aws.ToString(out.UploadId), nil
}

// CompleteSession 按给定顺序提交分片列表。
func (g *Gateway) CompleteSession(ctx context.Context, key, sessionID string, parts []storage.Part) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.Number)),
		}
	}

	_, err := g.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(g.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(sessionID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		if isNoSuchUpload(err) {
			return fmt.Errorf("complete multipart upload: %w", storage.ErrSessionNotFound)
		}
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	return nil
}

// AbortSession 放弃 multipart 上传；会话已不存在视为成功。
func (g *Gateway) AbortSession(ctx context.Context, key, sessionID string) error {
	_, err := g.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(sessionID),
	})
	if err != nil && !isNoSuchUpload(err) {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

// Delete 从存储删除对象。
func (g *Gateway) Delete(ctx context.Context, key string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// ObjectURL 未配置 endpoint 时返回 AWS 虚拟主机风格地址，否则按路径风格拼接。
func (g *Gateway) ObjectURL(key string) string {
	if g.base == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", g.bucket, g.region, key)
	}
	u, err := url.Parse(g.base)
	if err != nil {
		return g.base + "/" + path.Join(g.bucket, key)
	}
	u.Path = path.Join("/", u.Path, g.bucket, key)
	return u.String()
}

// ObjectExists 用 HeadObject 判断对象是否存在。
func (g *Gateway) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head object: %w", err)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func isNoSuchUpload(err error) bool {
	var noSuch *types.NoSuchUpload
	if errors.As(err, &noSuch) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchUpload"
}
