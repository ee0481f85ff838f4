// Package source checks that the bulk-load locations exist before the
// warehouse is asked to COPY from them.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client the checker needs.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// Location is a parsed s3://bucket/key location.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string { return "s3://" + l.Bucket + "/" + l.Key }

// ParseLocation splits an s3:// URI into bucket and key. The key may be empty.
func ParseLocation(uri string) (Location, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "s3://")
	if !ok {
		return Location{}, fmt.Errorf("%q: not an s3:// location", uri)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("%q: missing bucket", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Result is the outcome of checking one location.
type Result struct {
	URI string
	// Exists is true when the object (for .json descriptors) or at least one
	// object under the prefix was found.
	Exists bool
	// Err is set when the location is malformed or S3 could not answer.
	Err error
}

// OK reports whether the location is usable.
func (r Result) OK() bool { return r.Err == nil && r.Exists }

// Checker verifies bulk-load locations against S3.
type Checker struct {
	s3  S3API
	log zerolog.Logger
}

func NewChecker(api S3API, log zerolog.Logger) *Checker {
	return &Checker{s3: api, log: log.With().Str("component", "source").Logger()}
}

// Verify checks every location and never fails as a whole; problems are
// reported per location.
func (c *Checker) Verify(ctx context.Context, uris []string) []Result {
	out := make([]Result, 0, len(uris))
	for _, uri := range uris {
		res := c.check(ctx, uri)
		ev := c.log.Info()
		if !res.OK() {
			ev = c.log.Warn().AnErr("reason", res.Err)
		}
		ev.Str("location", uri).Bool("exists", res.Exists).Msg("source checked")
		out = append(out, res)
	}
	return out
}

func (c *Checker) check(ctx context.Context, uri string) Result {
	loc, err := ParseLocation(uri)
	if err != nil {
		return Result{URI: uri, Err: err}
	}

	if strings.HasSuffix(strings.ToLower(loc.Key), ".json") {
		_, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
		})
		if err != nil {
			if isNotFound(err) {
				return Result{URI: uri}
			}
			return Result{URI: uri, Err: fmt.Errorf("head %s: %w", loc, err)}
		}
		return Result{URI: uri, Exists: true}
	}

	out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(loc.Bucket),
		Prefix:  aws.String(loc.Key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return Result{URI: uri, Err: fmt.Errorf("list %s: %w", loc, err)}
	}
	return Result{URI: uri, Exists: len(out.Contents) > 0}
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey")
}
