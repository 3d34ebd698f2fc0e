package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/bannerstage-labs/bannerstage-go/internal/capture"
	"github.com/bannerstage-labs/bannerstage-go/internal/ingest"
	"github.com/bannerstage-labs/bannerstage-go/internal/orchestrator"
	"github.com/bannerstage-labs/bannerstage-go/internal/platform/objectstore"
)

// bundleArchive keeps raw uploads in the bundles bucket, keyed by creative id.
type bundleArchive struct {
	store  *objectstore.Store
	bucket string
}

func (a *bundleArchive) Put(ctx context.Context, creativeID string, bundle []byte) error {
	return a.store.Put(ctx, a.bucket, creativeID+".zip", bundle, "application/zip")
}

// screenshotArchive keeps captures in the screenshots bucket, one object per
// capture request.
type screenshotArchive struct {
	store  *objectstore.Store
	bucket string
}

func (a *screenshotArchive) Put(ctx context.Context, creativeID string, nonce string, img capture.Image) error {
	key := fmt.Sprintf("%s/%s.png", creativeID, nonce)
	return a.store.Put(ctx, a.bucket, key, img.Data, img.ContentType)
}

// sourceOpener feeds the inline raster path: scoped storage for served
// creatives, a plain GET for remote image sources.
func sourceOpener(svc *ingest.Service, client *http.Client) capture.SourceOpener {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, creative orchestrator.Creative) (io.ReadCloser, error) {
		loc := creative.SourceLocation

		if rel, ok := strings.CutPrefix(loc, "/creatives/"+creative.ID+"/files/"); ok {
			path, err := svc.ResolvePath(creative.ID, rel)
			if err != nil {
				return nil, err
			}
			return os.Open(path)
		}

		if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				_ = resp.Body.Close()
				return nil, fmt.Errorf("fetch %s: status %d", loc, resp.StatusCode)
			}
			return resp.Body, nil
		}

		return nil, fmt.Errorf("unsupported source location: %s", loc)
	}
}
