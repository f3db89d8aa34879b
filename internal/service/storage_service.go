package service

import (
	"bytes"
	"context"
	"courseforge_backend/internal/config"
	"courseforge_backend/pkg/logger"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageService 管理生成产物：始终写入本地内容根目录，
// 配置了 MinIO 时再镜像一份到对象存储（尽力而为，不阻塞流水线）
type StorageService struct {
	config *config.StorageConfig
	minio  *minio.Client
}

func NewStorageService(cfg *config.StorageConfig) *StorageService {
	s := &StorageService{config: cfg}

	if cfg.Type == "minio" && cfg.MinioEndpoint != "" {
		client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
			Secure: false,
		})
		if err != nil {
			logger.Log.Error("minio init failed, falling back to local-only storage", zap.Error(err))
		} else {
			s.minio = client
		}
	}

	return s
}

// SaveArtifact 把生成文本写到内容根目录下的相对路径，返回该相对路径
func (s *StorageService) SaveArtifact(relPath string, content string) (string, error) {
	relPath = filepath.ToSlash(relPath)
	dst := filepath.Join(s.config.ContentRoot, filepath.FromSlash(relPath))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, []byte(content), 0644); err != nil {
		return "", err
	}

	if s.minio != nil {
		data := []byte(content)
		_, err := s.minio.PutObject(context.Background(), s.config.MinioBucket, relPath,
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "text/markdown"})
		if err != nil {
			// 镜像失败不影响本地产物
			logger.Log.Warn("minio mirror failed", zap.String("object", relPath), zap.Error(err))
		}
	}

	return relPath, nil
}

// ReadArtifact 按相对路径读取产物文本
func (s *StorageService) ReadArtifact(relPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.config.ContentRoot, filepath.FromSlash(relPath)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RemoveDir 删除某个模块/课时的整个产物目录（记录删除时调用）
func (s *StorageService) RemoveDir(relDir string) error {
	relDir = strings.TrimSpace(relDir)
	if relDir == "" || relDir == "." || strings.Contains(relDir, "..") {
		return nil
	}
	return os.RemoveAll(filepath.Join(s.config.ContentRoot, filepath.FromSlash(relDir)))
}

func (s *StorageService) ContentRoot() string {
	return s.config.ContentRoot
}
