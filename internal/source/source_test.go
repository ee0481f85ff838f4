package source

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]string // bucket -> keys
	listErr error
	lists   []*s3.ListObjectsV2Input
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.lists = append(f.lists, in)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var contents []s3types.Object
	for _, k := range f.objects[aws.ToString(in.Bucket)] {
		if len(k) >= len(aws.ToString(in.Prefix)) && k[:len(aws.ToString(in.Prefix))] == aws.ToString(in.Prefix) {
			contents = append(contents, s3types.Object{Key: aws.String(k)})
			if int32(len(contents)) == aws.ToInt32(in.MaxKeys) {
				break
			}
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	for _, k := range f.objects[aws.ToString(in.Bucket)] {
		if k == aws.ToString(in.Key) {
			return &s3.HeadObjectOutput{}, nil
		}
	}
	return nil, &s3types.NotFound{}
}

func TestParseLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Location
		wantErr bool
	}{
		{"s3://udacity-dend/log_data", Location{"udacity-dend", "log_data"}, false},
		{"s3://udacity-dend/log_json_path.json", Location{"udacity-dend", "log_json_path.json"}, false},
		{"s3://bucket", Location{"bucket", ""}, false},
		{"https://bucket/key", Location{}, true},
		{"s3:///key", Location{}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLocation(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	api := &fakeS3{objects: map[string][]string{
		"udacity-dend": {
			"log_data/2018/11/2018-11-01-events.json",
			"log_json_path.json",
			"song_data/A/A/A/TRAAAAK128F9318786.json",
		},
	}}
	c := NewChecker(api, zerolog.Nop())

	res := c.Verify(context.Background(), []string{
		"s3://udacity-dend/log_data",
		"s3://udacity-dend/log_json_path.json",
		"s3://udacity-dend/song_data",
		"s3://udacity-dend/missing_prefix",
		"s3://udacity-dend/missing.json",
		"not-a-uri",
	})
	require.Len(t, res, 6)

	assert.True(t, res[0].OK())
	assert.True(t, res[1].OK())
	assert.True(t, res[2].OK())

	assert.False(t, res[3].Exists)
	assert.NoError(t, res[3].Err)
	assert.False(t, res[4].Exists)
	assert.NoError(t, res[4].Err)

	assert.Error(t, res[5].Err)
	assert.False(t, res[5].OK())

	for _, in := range api.lists {
		assert.Equal(t, int32(1), aws.ToInt32(in.MaxKeys))
	}
}

func TestVerifyReportsS3Errors(t *testing.T) {
	t.Parallel()

	c := NewChecker(&fakeS3{listErr: errors.New("AccessDenied")}, zerolog.Nop())
	res := c.Verify(context.Background(), []string{"s3://private/log_data"})
	require.Len(t, res, 1)
	require.Error(t, res[0].Err)
	assert.Contains(t, res[0].Err.Error(), "list s3://private/log_data")
}
