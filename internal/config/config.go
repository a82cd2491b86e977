package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
	"github.com/ChaoticEnigma/zfs3backup/pkg/utils"
)

// DefaultPath is searched when no config file is given explicitly.
const DefaultPath = "/etc/zfs3backup/zfs3backup.yaml"

// FileConfig mirrors the YAML configuration file. String sizes keep
// their magnitude suffixes until Resolve.
type FileConfig struct {
	Profile        string `yaml:"profile"`
	Endpoint       string `yaml:"endpoint"`
	StorageClass   string `yaml:"storage_class"`
	Bucket         string `yaml:"bucket"`
	S3KeyID        string `yaml:"s3_key_id"`
	S3Secret       string `yaml:"s3_secret"`
	S3Prefix       string `yaml:"s3_prefix"`
	SnapshotPrefix string `yaml:"snapshot_prefix"`
	Compressor     string `yaml:"compressor"`
	Concurrency    int    `yaml:"concurrency"`
	MaxRetries     int    `yaml:"max_retries"`
	ChunkSize      string `yaml:"chunk_size"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`

	// Per-filesystem overrides, keyed by dataset name.
	Filesystems map[string]FilesystemOverride `yaml:"filesystems"`
}

// FilesystemOverride carries the options that may differ per dataset.
type FilesystemOverride struct {
	S3Prefix       string `yaml:"s3_prefix"`
	SnapshotPrefix string `yaml:"snapshot_prefix"`
	StorageClass   string `yaml:"storage_class"`
	Compressor     string `yaml:"compressor"`
	ChunkSize      string `yaml:"chunk_size"`
}

// Config is the resolved, immutable configuration for one run. It is
// constructed once at startup and passed down; nothing reads ambient
// configuration after this point.
type Config struct {
	Profile        string
	Endpoint       string
	StorageClass   string
	Bucket         string
	S3KeyID        string
	S3Secret       string
	S3Prefix       string
	SnapshotPrefix string
	Filesystem     string
	Compressor     string
	Concurrency    int
	MaxRetries     int
	ChunkSize      int64
	LogLevel       string
	LogFormat      string
}

// Defaults returns a FileConfig carrying the stock defaults.
func Defaults() *FileConfig {
	return &FileConfig{
		Profile:        "default",
		Endpoint:       "aws",
		StorageClass:   "STANDARD_IA",
		S3Prefix:       "zfs3backup",
		SnapshotPrefix: "auto",
		Compressor:     "pigz1",
		Concurrency:    4,
		MaxRetries:     3,
		ChunkSize:      "256M",
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Load reads the YAML file at path into a FileConfig layered on the
// defaults, then applies environment-variable overrides. A missing
// file is an error only when the path was set explicitly.
func Load(path string, explicit bool) (*FileConfig, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) || explicit {
			return nil, errors.Wrapf(err, errors.ErrCodeConfig, "failed to read config file %s", path)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeConfig, "failed to parse config file %s", path)
	}

	cfg.overrideFromEnv()
	return cfg, nil
}

func (c *FileConfig) overrideFromEnv() {
	setString := func(dst *string, name string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, name string) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&c.Profile, "PROFILE")
	setString(&c.Endpoint, "ENDPOINT")
	setString(&c.StorageClass, "STORAGE_CLASS")
	setString(&c.Bucket, "BUCKET")
	setString(&c.S3KeyID, "S3_KEY_ID")
	setString(&c.S3Secret, "S3_SECRET")
	setString(&c.S3Prefix, "S3_PREFIX")
	setString(&c.SnapshotPrefix, "SNAPSHOT_PREFIX")
	setString(&c.Compressor, "COMPRESSOR")
	setString(&c.ChunkSize, "CHUNK_SIZE")
	setInt(&c.Concurrency, "CONCURRENCY")
	setInt(&c.MaxRetries, "MAX_RETRIES")
}

// Resolve produces the immutable run configuration for one
// filesystem, applying its override section and parsing sizes.
func (c *FileConfig) Resolve(filesystem string) (*Config, error) {
	if filesystem == "" {
		return nil, errors.New(errors.ErrCodeConfig, "filesystem must be specified")
	}

	resolved := &Config{
		Profile:        c.Profile,
		Endpoint:       c.Endpoint,
		StorageClass:   c.StorageClass,
		Bucket:         c.Bucket,
		S3KeyID:        c.S3KeyID,
		S3Secret:       c.S3Secret,
		S3Prefix:       c.S3Prefix,
		SnapshotPrefix: c.SnapshotPrefix,
		Filesystem:     filesystem,
		Compressor:     c.Compressor,
		Concurrency:    c.Concurrency,
		MaxRetries:     c.MaxRetries,
		LogLevel:       c.LogLevel,
		LogFormat:      c.LogFormat,
	}

	chunkSize := c.ChunkSize
	if override, ok := c.Filesystems[filesystem]; ok {
		if override.S3Prefix != "" {
			resolved.S3Prefix = override.S3Prefix
		}
		if override.SnapshotPrefix != "" {
			resolved.SnapshotPrefix = override.SnapshotPrefix
		}
		if override.StorageClass != "" {
			resolved.StorageClass = override.StorageClass
		}
		if override.Compressor != "" {
			resolved.Compressor = override.Compressor
		}
		if override.ChunkSize != "" {
			chunkSize = override.ChunkSize
		}
	}

	size, err := utils.ParseSize(chunkSize)
	if err != nil {
		return nil, err
	}
	resolved.ChunkSize = size

	if err := resolved.Validate(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// Validate checks the configuration before any upload work begins.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New(errors.ErrCodeConfig, "bucket must be specified")
	}
	if c.Filesystem == "" {
		return errors.New(errors.ErrCodeConfig, "filesystem must be specified")
	}
	if c.ChunkSize <= 0 {
		return errors.Newf(errors.ErrCodeConfig, "chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.Concurrency < 1 {
		return errors.Newf(errors.ErrCodeConfig, "concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxRetries < 0 {
		return errors.Newf(errors.ErrCodeConfig, "max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.S3Prefix == "" {
		return errors.New(errors.ErrCodeConfig, "s3 prefix must be specified")
	}
	if c.SnapshotPrefix == "" {
		return errors.New(errors.ErrCodeConfig, "snapshot prefix must be specified")
	}
	if (c.S3KeyID == "") != (c.S3Secret == "") {
		return errors.New(errors.ErrCodeConfig, "s3 key id and secret must be set together")
	}
	return nil
}
