// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

// Package index reads the package index: a single tar archive, optionally
// gzip-compressed, whose members are per-package targets documents. No
// library in the reference corpus offers random-access tar indexing, so
// this package is built on the standard library's archive/tar and
// compress/gzip (see DESIGN.md for the justification).
package index

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"

	"github.com/opentuf/repocore/metadata"
)

// entry records where one archive member's content lives in the
// decompressed byte stream, so Lookup is O(1) after the index is built
// once per fetch.
type entry struct {
	header tar.Header
	offset int64
	size   int64
}

// Reader provides random-access lookup over a decompressed tar archive.
type Reader struct {
	raw     []byte
	entries map[string]entry
}

// Format identifies which delivery variant a RemoteFetcher produced, so
// the caller can record it for diagnostics without re-sniffing the bytes.
type Format string

const (
	FormatGzip Format = "gzip"
	FormatPlain Format = "tar"
)

// Open builds a Reader over data, a raw or gzip-compressed tar stream,
// detecting the format from the gzip magic number.
func Open(data []byte) (*Reader, Format, error) {
	format := FormatPlain
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, "", metadata.ErrInvalidFileInIndex{Path: "", Msg: "failed to open gzip stream: " + err.Error()}
		}
		defer gz.Close()
		decoded, err := io.ReadAll(gz)
		if err != nil {
			return nil, "", metadata.ErrInvalidFileInIndex{Path: "", Msg: "failed to decompress index: " + err.Error()}
		}
		data = decoded
		format = FormatGzip
	}

	// tar.Reader exposes no public byte offset into the underlying stream,
	// so the lookup table indexes into a freshly-assembled buffer of just
	// the regular-file contents, in archive order, rather than into the
	// original stream.
	entries := map[string]entry{}
	tr := tar.NewReader(bytes.NewReader(data))
	buf := &bytes.Buffer{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", metadata.ErrInvalidFileInIndex{Msg: "malformed tar stream: " + err.Error()}
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if _, exists := entries[hdr.Name]; exists {
			return nil, "", metadata.ErrInvalidFileInIndex{Path: hdr.Name, Msg: "duplicate entry in index"}
		}
		start := int64(buf.Len())
		n, err := io.Copy(buf, tr)
		if err != nil {
			return nil, "", metadata.ErrInvalidFileInIndex{Path: hdr.Name, Msg: "failed to read entry: " + err.Error()}
		}
		entries[hdr.Name] = entry{header: *hdr, offset: start, size: n}
	}

	return &Reader{raw: buf.Bytes(), entries: entries}, format, nil
}

// Lookup reports whether path is present in the index and, if so, its
// offset into the reassembled content buffer.
func (r *Reader) Lookup(path string) (offset int64, ok bool) {
	e, ok := r.entries[path]
	if !ok {
		return 0, false
	}
	return e.offset, true
}

// ReadAt returns the header and content for the entry at path.
func (r *Reader) ReadAt(path string) (tar.Header, []byte, error) {
	e, ok := r.entries[path]
	if !ok {
		return tar.Header{}, nil, metadata.ErrInvalidFileInIndex{Path: path, Msg: "no such entry"}
	}
	return e.header, r.raw[e.offset : e.offset+e.size], nil
}

// Names returns every member path present in the index.
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
