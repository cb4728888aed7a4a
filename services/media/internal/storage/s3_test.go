package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	put       *s3.PutObjectInput
	body      string
	deleteErr error
	deleted   []string
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	b, err := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, err
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, f.deleteErr
}

func (f *fakeAPI) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestPut_SendsObject(t *testing.T) {
	api := &fakeAPI{}
	st := NewWithAPI(api, Config{Bucket: "media", BaseEndpoint: "http://minio:9000/"})

	require.NoError(t, st.Put(context.Background(), "media/u/1.png", strings.NewReader("png"), 3, "image/png"))
	assert.Equal(t, "media", aws.ToString(api.put.Bucket))
	assert.Equal(t, "media/u/1.png", aws.ToString(api.put.Key))
	assert.Equal(t, "image/png", aws.ToString(api.put.ContentType))
	assert.Equal(t, "png", api.body)
	assert.Equal(t, "http://minio:9000/media/media/u/1.png", st.URL("media/u/1.png"))
}

func TestURL_PublicOverride(t *testing.T) {
	st := NewWithAPI(&fakeAPI{}, Config{Bucket: "media", PublicURL: "https://cdn.example.com/"})
	assert.Equal(t, "https://cdn.example.com/k", st.URL("k"))
}

func TestDelete_MissingObjectIsDeleted(t *testing.T) {
	for _, missing := range []error{&types.NoSuchKey{}, &types.NotFound{}} {
		api := &fakeAPI{deleteErr: missing}
		st := NewWithAPI(api, Config{Bucket: "media"})
		assert.NoError(t, st.Delete(context.Background(), "gone"))
		assert.Equal(t, []string{"gone"}, api.deleted)
	}
}

func TestDelete_OtherErrorsSurface(t *testing.T) {
	boom := errors.New("connection reset")
	st := NewWithAPI(&fakeAPI{deleteErr: boom}, Config{Bucket: "media"})
	err := st.Delete(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
}

func TestNewS3_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	loadDefaultAWSConfig = func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	_, err := NewS3(context.Background(), Config{Bucket: "media"})
	assert.ErrorContains(t, err, "no config")
}
