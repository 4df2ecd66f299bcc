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

package fetcher

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/opentuf/repocore/metadata"
)

// S3Options configures an S3Fetcher.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
}

// S3Fetcher retrieves documents from an S3 bucket, for hosts that mirror
// their repository into object storage rather than serving it over plain
// HTTP.
type S3Fetcher struct {
	opts    S3Options
	session *session.Session
}

// NewS3Fetcher builds an S3Fetcher for opts. baseURL must be of the form
// "s3://bucket[/prefix]".
func NewS3Fetcher(baseURL string, opts S3Options) (*S3Fetcher, error) {
	if !strings.HasPrefix(baseURL, "s3://") {
		return nil, metadata.ErrValue{Msg: "s3 fetcher requires an s3:// base URL"}
	}
	rest := strings.TrimPrefix(baseURL, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if opts.Bucket == "" {
		opts.Bucket = parts[0]
	}
	if opts.Prefix == "" && len(parts) > 1 {
		opts.Prefix = parts[1]
	}
	if opts.Region == "" {
		opts.Region = "us-west-2"
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(opts.Region)})
	if err != nil {
		return nil, err
	}
	return &S3Fetcher{opts: opts, session: sess}, nil
}

// DownloadFile fetches the object at urlPath (interpreted as a key relative
// to the configured prefix), enforcing maxLength and timeout.
func (f *S3Fetcher) DownloadFile(ctx context.Context, urlPath string, maxLength int64, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	key := path.Join(f.opts.Prefix, urlPath)
	svc := s3.New(f.session)
	out, err := svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, metadata.ErrRemote{URL: urlPath, Cause: err}
	}
	defer out.Body.Close()
	if out.ContentLength != nil && *out.ContentLength > maxLength {
		return nil, metadata.ErrVerificationFileInfo{Name: urlPath, Msg: "declared object size exceeds configured maximum"}
	}
	data, err := io.ReadAll(io.LimitReader(out.Body, maxLength+1))
	if err != nil {
		return nil, metadata.ErrRemote{URL: urlPath, Cause: err}
	}
	if int64(len(data)) > maxLength {
		return nil, metadata.ErrVerificationFileInfo{Name: urlPath, Msg: "downloaded object exceeds configured maximum length"}
	}
	return data, nil
}
