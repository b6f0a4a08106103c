package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"RescueDesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocator(t *testing.T) *MinioLocator {
	loc, err := NewMinioLocator(MinioConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "sos-media",
		URLExpiry: 10 * time.Minute,
	})
	require.NoError(t, err)
	return loc
}

func TestResolvePresignsObjectKeys(t *testing.T) {
	loc := newLocator(t)

	u, err := loc.Resolve(context.Background(), "alerts/a1/clip.mp4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://localhost:9000/sos-media/alerts/a1/clip.mp4?"))
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=600")

	u, err = loc.Resolve(context.Background(), "s3://other/x.jpg")
	require.NoError(t, err)
	assert.Contains(t, u, "/other/x.jpg?")
}

func TestResolveKeepsAbsoluteURLs(t *testing.T) {
	loc := newLocator(t)
	u, err := loc.Resolve(context.Background(), "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", u)
}

func TestResolveMediaCopies(t *testing.T) {
	loc := newLocator(t)
	in := []models.Media{{ID: "m1", URL: "a.jpg"}, {ID: "m2", URL: "https://x/y.png"}}
	out := ResolveMedia(context.Background(), loc, in)

	assert.Equal(t, "a.jpg", in[0].URL)
	assert.Contains(t, out[0].URL, "X-Amz-Signature=")
	assert.Equal(t, "https://x/y.png", out[1].URL)
	assert.Equal(t, in, ResolveMedia(context.Background(), nil, in))
}
