package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"resumecanvas/internal/config"
)

// Client 保存导出 PDF 与预览图。
// 读写走内网 endpoint，签名链接用公网 endpoint 生成，浏览器可以直接访问。
type Client struct {
	objects *minio.Client
	signer  *minio.Client
	bucket  string
}

// NewClient 初始化两个 MinIO 客户端并确认 Bucket 可用。
func NewClient(ctx context.Context, cfg config.MinIOConfig) (*Client, error) {
	lookup, err := parseBucketLookup(cfg.BucketLookup)
	if err != nil {
		return nil, err
	}
	creds := credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	objects, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        creds,
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	host, secure, err := publicEndpoint(cfg.PublicEndpoint)
	if err != nil {
		return nil, err
	}
	signer, err := minio.New(host, &minio.Options{
		Creds:        creds,
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio signer: %w", err)
	}

	c := &Client{objects: objects, signer: signer, bucket: cfg.Bucket}
	if err := c.ensureBucket(ctx, cfg.Region, cfg.AutoCreateBucket); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureBucket(ctx context.Context, region string, autoCreate bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := c.objects.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if !autoCreate {
		return fmt.Errorf("bucket %q does not exist", c.bucket)
	}
	if err := c.objects.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("make bucket %q: %w", c.bucket, err)
	}
	return nil
}

// PutObject 上传渲染结果。
func (c *Client) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.objects.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// PresignedURL 返回对象的限时读取链接，用于内联展示的预览图。
func (c *Client) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := c.signer.PresignedGetObject(ctx, c.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", key, err)
	}
	return u.String(), nil
}

// DownloadURL 返回以附件形式下载的限时链接，浏览器保存时使用 filename。
func (c *Client) DownloadURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", ContentDisposition(filename))
	u, err := c.signer.PresignedGetObject(ctx, c.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign download %q: %w", key, err)
	}
	return u.String(), nil
}

// DeleteObject 删除单个对象，对象不存在视为成功。
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	err := c.objects.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !IsNoSuchKey(err) {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// DeletePrefix 批量删除某个前缀下的对象，例如一份简历的全部导出与预览图。
func (c *Client) DeletePrefix(ctx context.Context, prefix string) error {
	if strings.TrimSpace(prefix) == "" {
		return nil
	}

	listed := c.objects.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	toRemove := make(chan minio.ObjectInfo)
	var listErr error
	go func() {
		defer close(toRemove)
		for obj := range listed {
			if obj.Err != nil {
				listErr = obj.Err
				continue
			}
			select {
			case toRemove <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for res := range c.objects.RemoveObjects(ctx, c.bucket, toRemove, minio.RemoveObjectsOptions{}) {
		if res.Err != nil && !IsNoSuchKey(res.Err) {
			errs = append(errs, fmt.Errorf("remove %q: %w", res.ObjectName, res.Err))
		}
	}
	// RemoveObjects 的结果通道在输入通道关闭后才会关闭，此时 listErr 已写完。
	if listErr != nil {
		errs = append(errs, fmt.Errorf("list %q: %w", prefix, listErr))
	}
	return errors.Join(errs...)
}

// ContentDisposition 生成附件下载头，非 ASCII 文件名按 RFC 2231 编码。
func ContentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func parseBucketLookup(v string) (minio.BucketLookupType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "auto":
		return minio.BucketLookupAuto, nil
	case "dns":
		return minio.BucketLookupDNS, nil
	case "path":
		return minio.BucketLookupPath, nil
	}
	return minio.BucketLookupAuto, fmt.Errorf("invalid minio bucket lookup %q", v)
}

// publicEndpoint 解析形如 https://cdn.example.com 的公网地址。
func publicEndpoint(raw string) (string, bool, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false, fmt.Errorf("parse minio public endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("minio public endpoint %q has no host", raw)
	}
	return u.Host, u.Scheme == "https", nil
}
