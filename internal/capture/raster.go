package capture

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/bannerstage-labs/bannerstage-go/internal/orchestrator"
)

// SourceOpener yields the raw bytes behind a creative's source location.
// The studio backs this with its scoped storage for uploaded bundles and an
// HTTP fetch for remote images.
type SourceOpener func(ctx context.Context, creative orchestrator.Creative) (io.ReadCloser, error)

// StaticRasterizer is the inline capture path: decode the stored image and
// normalize it to PNG. Content that does not decode as an image has no
// rasterizable surface.
type StaticRasterizer struct {
	Open SourceOpener
}

func (r *StaticRasterizer) Rasterize(ctx context.Context, creative orchestrator.Creative) (Image, error) {
	if r.Open == nil {
		return Image{}, &CaptureError{Reason: ReasonNoSurface, Detail: "no source opener"}
	}
	src, err := r.Open(ctx, creative)
	if err != nil {
		return Image{}, &CaptureError{Reason: ReasonCrossOriginRestricted, Detail: err.Error()}
	}
	defer func() { _ = src.Close() }()

	decoded, _, err := image.Decode(src)
	if err != nil {
		return Image{}, &CaptureError{Reason: ReasonNoSurface, Detail: "content is not a decodable image"}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return Image{}, &CaptureError{Reason: ReasonNoSurface, Detail: err.Error()}
	}

	bounds := decoded.Bounds()
	return Image{
		Data:        buf.Bytes(),
		ContentType: "image/png",
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}
