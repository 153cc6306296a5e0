// Package source finds JEM form files on disk and reads them into
// pipeline inputs.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Input is one record file ready for processing.
type Input struct {
	// Path is the file the record was read from.
	Path string
	// Data is the raw file content.
	Data []byte
	// Created is the file's modification time, used as the record's
	// creation stamp.
	Created time.Time
}

// Name returns the file's base name.
func (in Input) Name() string {
	return filepath.Base(in.Path)
}

// Filter selects files during discovery.
type Filter struct {
	// Suffix matches the end of the file name, e.g. "PS.json".
	Suffix string
	// Since keeps files modified at or after this instant. Zero keeps all.
	Since time.Time
}

// Window returns a Filter for files modified in the last days days.
// days <= 0 disables the time filter.
func Window(suffix string, days int, now time.Time) Filter {
	f := Filter{Suffix: suffix}
	if days > 0 {
		f.Since = now.AddDate(0, 0, -days)
	}
	return f
}

func (f Filter) match(name string, info fs.FileInfo) bool {
	suffix := f.Suffix
	if suffix == "" {
		suffix = ".json"
	}
	if !strings.HasSuffix(name, suffix) {
		return false
	}
	return f.Since.IsZero() || !info.ModTime().Before(f.Since)
}

// Discover returns the matching files under each path, sorted. A path
// that is a file is returned as-is when it matches the suffix.
// Directories are walked recursively.
func Discover(ctx context.Context, paths []string, filter Filter) ([]string, error) {
	var found []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to access %s: %w", root, err)
		}
		if !info.IsDir() {
			if filter.match(info.Name(), info) {
				found = append(found, root)
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if filter.match(d.Name(), fi) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", root, err)
		}
	}

	slices.Sort(found)
	return slices.Compact(found), nil
}

// Load reads one file.
func Load(path string) (Input, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Input{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Input{Path: path, Data: data, Created: info.ModTime()}, nil
}

// LoadAll reads every path in order. Unreadable files are returned in
// failed with their error instead of aborting the batch.
func LoadAll(ctx context.Context, paths []string) (inputs []Input, failed map[string]error, err error) {
	failed = make(map[string]error)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return inputs, failed, err
		}
		in, loadErr := Load(p)
		if loadErr != nil {
			failed[p] = loadErr
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, failed, nil
}
