package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"EbbFM/config"
	"EbbFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
	bucket      string
)

// 预签名播放地址的有效期，略长于最长曲目即可
const streamURLExpiry = 2 * time.Hour

// InitMinio 初始化 MinIO 客户端
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	// 检查存储桶，不存在则创建
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("created audio bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	bucket = cfg.MinioBucket
	logger.Info("MinIO client initialized", logger.String("bucket", cfg.MinioBucket))
	return nil
}

// GetMinioClient 获取 MinIO 客户端实例
func GetMinioClient() *minio.Client {
	return minioClient
}

// PresignStreamURL 为曲目音频生成预签名播放地址
// 客户端未初始化或签名失败时返回空串，播放地址缺失不影响快照其余字段。
func PresignStreamURL(ctx context.Context, audioKey string) string {
	if minioClient == nil || audioKey == "" {
		return ""
	}

	u, err := minioClient.PresignedGetObject(ctx, bucket, audioKey, streamURLExpiry, url.Values{})
	if err != nil {
		logger.Warn("failed to presign stream url",
			logger.ErrorField(err),
			logger.String("audioKey", audioKey))
		return ""
	}
	return u.String()
}
