// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package fetch retrieves script documents from local paths or remote URLs
// using Hashicorp's go-getter source syntax.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter/v2"
)

// ErrGet is returned when the source cannot be retrieved.
var ErrGet = errors.New("failed to get script file")

// Get returns the contents of the file named by src. Local files are read
// directly; anything else is fetched with go-getter. Because go-getter only
// downloads directories for remote sources, the enclosing directory is
// fetched and the named file read out of it.
func Get(ctx context.Context, src string) ([]byte, error) {
	if src == "" {
		return nil, fmt.Errorf("%w: empty source", ErrGet)
	}

	if info, err := os.Stat(src); err == nil && !info.IsDir() {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, errors.Join(ErrGet, err)
		}

		return data, nil
	}

	dir, file := SplitSource(src)
	if file == "" {
		return nil, fmt.Errorf("%w: %q does not name a file", ErrGet, src)
	}

	tmpDir, err := os.MkdirTemp("", "conch-getter-*")
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}

	defer os.RemoveAll(tmpDir) //nolint:errcheck

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}

	client := getter.Client{
		DisableSymlinks: true,
	}

	req := &getter.Request{
		Src:     dir,
		Dst:     filepath.Join(tmpDir, "g"),
		Pwd:     wd,
		GetMode: getter.ModeDir,
	}

	res, err := client.Get(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}

	data, err := os.ReadFile(filepath.Join(res.Dst, file))
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}

	return data, nil
}

const getterSubpathSeparator = "//"

// SplitSource separates the file name from a getter source. For sources with
// a // subpath (git::https://host/repo//dir/file.yaml) the name comes off
// the subpath; for plain paths and URLs it comes off the path itself. Any
// query string stays on the directory part.
func SplitSource(src string) (string, string) {
	var query string
	if i := strings.Index(src, "?"); i >= 0 {
		src, query = src[:i], src[i:]
	}

	parts := strings.Split(src, getterSubpathSeparator)

	// parts[0] is the scheme prefix when the source is a URL; a subpath
	// needs at least one more separator beyond the scheme's.
	if len(parts) >= 3 {
		sub := parts[len(parts)-1]
		file := path.Base(sub)

		if file == "." || file == "/" || strings.HasSuffix(sub, "/") {
			return "", ""
		}

		if dir := path.Dir(sub); dir == "." {
			parts = parts[:len(parts)-1]
		} else {
			parts[len(parts)-1] = dir
		}

		return strings.Join(parts, getterSubpathSeparator) + query, file
	}

	// path.Dir would clean the scheme's // away, so cut at the last slash
	// by hand.
	i := strings.LastIndex(src, "/")

	switch {
	case i < 0:
		return "." + query, src
	case i == len(src)-1:
		return "", ""
	default:
		return src[:i] + query, src[i+1:]
	}
}
