package media

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHeadAPI struct {
	sizes map[string]int64
	calls []string
}

func (f *fakeHeadAPI) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)
	f.calls = append(f.calls, key)
	size, ok := f.sizes[key]
	if !ok {
		return nil, errors.New("operation error S3: HeadObject, NotFound")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(size)}, nil
}

func TestS3Prober_Probe(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the object size", func(t *testing.T) {
		api := &fakeHeadAPI{sizes: map[string]int64{"uploads/clip.mp4": 48_000_000}}
		prober := NewS3ProberWithClient(api, "postpilot-media")

		size, err := prober.Probe(ctx, "https://postpilot-media.s3.us-east-1.amazonaws.com/uploads/clip.mp4")
		require.NoError(t, err)
		assert.Equal(t, int64(48_000_000), size)
		assert.Equal(t, []string{"uploads/clip.mp4"}, api.calls)
	})

	t.Run("strips the bucket from path-style URLs", func(t *testing.T) {
		api := &fakeHeadAPI{sizes: map[string]int64{"uploads/a.jpg": 1024}}
		prober := NewS3ProberWithClient(api, "postpilot-media")

		size, err := prober.Probe(ctx, "http://localhost:9000/postpilot-media/uploads/a.jpg")
		require.NoError(t, err)
		assert.Equal(t, int64(1024), size)
		assert.Equal(t, []string{"uploads/a.jpg"}, api.calls)
	})

	t.Run("missing object is reported", func(t *testing.T) {
		prober := NewS3ProberWithClient(&fakeHeadAPI{}, "postpilot-media")

		_, err := prober.Probe(ctx, "https://postpilot-media.s3.us-east-1.amazonaws.com/uploads/gone.jpg")
		assert.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("rejects a URL without a key", func(t *testing.T) {
		prober := NewS3ProberWithClient(&fakeHeadAPI{}, "postpilot-media")

		_, err := prober.Probe(ctx, "https://postpilot-media.s3.us-east-1.amazonaws.com/")
		assert.Error(t, err)
	})
}
