package credential

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDataURL(t *testing.T) {
	codec := newTestCodec(t)
	encoded, err := codec.Encode("S1", time.Now(), mustNonce(t))
	require.NoError(t, err)

	url, err := RenderDataURL(encoded, 0)
	require.NoError(t, err)

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(url, prefix))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, defaultQRSize, img.Bounds().Dx())
}
