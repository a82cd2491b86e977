package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ChaoticEnigma/zfs3backup/internal/repository"
	apperrors "github.com/ChaoticEnigma/zfs3backup/pkg/errors"
)

// metaSuffix marks the sidecar files carrying object metadata.
const metaSuffix = ".meta"

// LocalStorage implements StorageRepository on a local directory.
// Object metadata lives in a YAML sidecar next to each object file.
// Used for backup-to-directory targets and in tests.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeConfig, "failed to create storage directory %s", basePath)
	}
	return &LocalStorage{basePath: basePath}, nil
}

type sidecar struct {
	ContentType    string            `yaml:"content_type,omitempty"`
	StorageClass   string            `yaml:"storage_class,omitempty"`
	CustomMetadata map[string]string `yaml:"metadata,omitempty"`
}

func (l *LocalStorage) Put(ctx context.Context, key string, data io.Reader, metadata *repository.ObjectMetadata) error {
	fullPath := filepath.Join(l.basePath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	if metadata == nil {
		return nil
	}
	side := sidecar{
		ContentType:    metadata.ContentType,
		StorageClass:   metadata.StorageClass,
		CustomMetadata: metadata.CustomMetadata,
	}
	encoded, err := yaml.Marshal(&side)
	if err != nil {
		return err
	}
	return os.WriteFile(fullPath+metaSuffix, encoded, 0o644)
}

func (l *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, *repository.ObjectMetadata, error) {
	fullPath := filepath.Join(l.basePath, filepath.FromSlash(key))

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "object %s not found", key)
		}
		return nil, nil, err
	}

	metadata, err := l.loadMetadata(key, fullPath)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return file, metadata, nil
}

func (l *LocalStorage) List(ctx context.Context, prefix string) ([]*repository.ObjectInfo, error) {
	var objects []*repository.ObjectInfo

	err := filepath.Walk(l.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		objects = append(objects, &repository.ObjectInfo{
			Key:  key,
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath := filepath.Join(l.basePath, filepath.FromSlash(key))
	os.Remove(fullPath + metaSuffix)
	return os.Remove(fullPath)
}

func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	fullPath := filepath.Join(l.basePath, filepath.FromSlash(key))
	_, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *LocalStorage) GetMetadata(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
	fullPath := filepath.Join(l.basePath, filepath.FromSlash(key))
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "object %s not found", key)
		}
		return nil, err
	}
	return l.loadMetadata(key, fullPath)
}

func (l *LocalStorage) loadMetadata(key, fullPath string) (*repository.ObjectMetadata, error) {
	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, err
	}
	metadata := &repository.ObjectMetadata{
		Key:  key,
		Size: info.Size(),
	}

	encoded, err := os.ReadFile(fullPath + metaSuffix)
	if os.IsNotExist(err) {
		return metadata, nil
	}
	if err != nil {
		return nil, err
	}
	var side sidecar
	if err := yaml.Unmarshal(encoded, &side); err != nil {
		return nil, err
	}
	metadata.ContentType = side.ContentType
	metadata.StorageClass = side.StorageClass
	metadata.CustomMetadata = side.CustomMetadata
	return metadata, nil
}

func (l *LocalStorage) Close() error {
	return nil
}

func (l *LocalStorage) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(l.basePath)
	return err
}
