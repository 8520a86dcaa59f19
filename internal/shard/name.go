package shard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

const (
	nameFormat = "shard_%06d_%06d.jsonl"
	nameGlob   = "shard_*_*.jsonl"
)

// ErrInvalidName is returned for file names that are not shard names.
var ErrInvalidName = errors.New("not a shard file name")

var namePattern = regexp.MustCompile(`^shard_(\d{6,})_(\d{6,})\.jsonl$`)

// FileName returns the shard file name for the half-open range [first, end).
func FileName(first, end int) string {
	return fmt.Sprintf(nameFormat, first, end)
}

// ParseName extracts the covered range from a shard file name.
func ParseName(name string) (first, end int, err error) {
	m := namePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidName, name)
	}

	first, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidName, name)
	}
	end, err = strconv.Atoi(m[2])
	if err != nil || end < first {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidName, name)
	}

	return first, end, nil
}

// Scan lists the shard files in dir ordered by range start. Document counts
// and checksums are not computed; use Describe for that.
func Scan(dir string) ([]*Shard, error) {
	matches, err := filepath.Glob(filepath.Join(dir, nameGlob))
	if err != nil {
		return nil, fmt.Errorf("glob shards: %w", err)
	}

	shards := make([]*Shard, 0, len(matches))
	for _, path := range matches {
		first, end, parseErr := ParseName(path)
		if parseErr != nil {
			continue
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			return nil, fmt.Errorf("stat shard %s: %w", path, statErr)
		}

		shards = append(shards, &Shard{
			Name:  filepath.Base(path),
			Path:  path,
			First: first,
			End:   end,
			Size:  info.Size(),
		})
	}

	sort.Slice(shards, func(i, j int) bool { return shards[i].First < shards[j].First })

	return shards, nil
}
