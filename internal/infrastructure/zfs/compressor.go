package zfs

import (
	"sort"
	"strings"

	"github.com/ChaoticEnigma/zfs3backup/pkg/errors"
)

// compressors maps a compressor name to the command that compresses
// the send stream. The transform is opaque to the upload pipeline;
// decompression is the restore tooling's concern and recorded in the
// manifest by name only.
var compressors = map[string][]string{
	"pigz1":  {"pigz", "-1", "--blocksize", "4096"},
	"pigz4":  {"pigz", "-4", "--blocksize", "4096"},
	"pbzip2": {"pbzip2", "-c"},
	"zstd3":  {"zstd", "-3", "-T0"},
}

// CompressCommand returns the compression command line for name, or
// nil when compression is disabled.
func CompressCommand(name string) ([]string, error) {
	if name == "" || strings.EqualFold(name, "none") {
		return nil, nil
	}
	argv, ok := compressors[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeConfig,
			"unknown compressor %q, expected one of: none, %s", name, strings.Join(CompressorNames(), ", "))
	}
	return argv, nil
}

// CompressorNames lists the known compressor names, sorted.
func CompressorNames() []string {
	names := make([]string, 0, len(compressors))
	for name := range compressors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
