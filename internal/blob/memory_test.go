package blob

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	body := []byte("png bytes")
	require.NoError(t, s.Put(ctx, "org/a/loads/b/signature", body, "image/png"))
	body[0] = 'X'

	obj, err := s.Get(ctx, "org/a/loads/b/signature")
	require.NoError(t, err)
	require.Equal(t, "png bytes", string(obj.Body))
	require.Equal(t, "image/png", obj.ContentType)

	raw, err := s.PresignUpload(ctx, "org/a/loads/b/signature", "image/png", 15*time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/org/a/loads/b/signature", u.Path)
	require.Equal(t, "PUT", u.Query().Get("method"))
}
