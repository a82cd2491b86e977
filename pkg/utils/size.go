package utils

import (
	"github.com/dustin/go-humanize"

	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
)

// ParseSize parses a size with an optional magnitude suffix ("256M",
// "1G") into bytes. Suffixes are SI (powers of 1000); IEC suffixes
// ("256MiB") are also accepted.
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrCodeConfig, "invalid size %q", s)
	}
	return int64(n), nil
}

// HumanSize formats a byte count for display.
func HumanSize(n int64) string {
	return humanize.Bytes(uint64(n))
}
