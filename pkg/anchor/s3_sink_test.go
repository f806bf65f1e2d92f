package anchor

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Sink_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	sink := &S3Sink{client: fake, bucket: "anchors", prefix: "prod/"}

	require.NoError(t, sink.Put(ctx, "x.json", []byte("x")))
	require.NoError(t, sink.Put(ctx, "x.json", []byte("y")))
	assert.Equal(t, 1, fake.puts)
	assert.Contains(t, fake.objects, "prod/x.json")

	fake.objects["other/z.json"] = []byte("z")
	fake.objects["prod/nested/w.json"] = []byte("w")

	keys, err := sink.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.json"}, keys)

	data, err := sink.Get(ctx, "x.json")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	_, err = sink.Get(ctx, "missing.json")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestS3Sink_BacksPublisher(t *testing.T) {
	ctx := context.Background()
	p := NewPublisher(&S3Sink{client: newFakeS3(), bucket: "anchors"})
	records := chain(t, 4)

	_, err := p.Publish(ctx, records, 0)
	require.NoError(t, err)
	ids, err := p.Anchored(ctx, records)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
}
