package certificates

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/pdf"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/storage"
)

// AssetFetcher retrieves certificate background images.
type AssetFetcher interface {
	// Fetch returns nil without error when rawURL is empty. Every failure
	// wraps ErrRenderAsset and is safe to degrade to the fallback frame.
	Fetch(ctx context.Context, rawURL string) (*pdf.Background, error)
}

// AssetOptions configures background retrieval
type AssetOptions struct {
	Timeout  time.Duration
	MaxBytes int64
	// CacheDir enables an on-disk HTTP cache; empty disables caching.
	CacheDir string
}

type assetFetcher struct {
	client  *resty.Client
	s3      storage.S3Client
	options AssetOptions
}

// NewAssetFetcher creates a fetcher for http(s) URLs and, when s3 is set, s3:// URLs.
func NewAssetFetcher(options AssetOptions, s3 storage.S3Client) AssetFetcher {
	return &assetFetcher{
		client:  resty.NewWithClient(newCachingHTTPClient(options.CacheDir)).SetTimeout(options.Timeout),
		s3:      s3,
		options: options,
	}
}

func newCachingHTTPClient(cacheDir string) *http.Client {
	if cacheDir == "" {
		return &http.Client{}
	}
	return &http.Client{Transport: httpcache.NewTransport(diskcache.New(cacheDir))}
}

// DetectFormat classifies an image by the extension of the URL path, ignoring
// case, query and fragment. Anything other than .png is treated as JPEG.
func DetectFormat(rawURL string) pdf.ImageFormat {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if strings.EqualFold(path.Ext(p), ".png") {
		return pdf.FormatPNG
	}
	return pdf.FormatJPG
}

func (f *assetFetcher) Fetch(ctx context.Context, rawURL string) (*pdf.Background, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, nil
	}

	if f.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.options.Timeout)
		defer cancel()
	}

	body, err := f.open(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderAsset, err)
	}
	defer body.Close()

	data, err := f.readLimited(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRenderAsset, rawURL, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", ErrRenderAsset, rawURL)
	}

	return &pdf.Background{Data: data, Format: DetectFormat(rawURL)}, nil
}

func (f *assetFetcher) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if strings.HasPrefix(strings.ToLower(rawURL), "s3://") {
		if f.s3 == nil {
			return nil, fmt.Errorf("s3 background %s but no s3 client is configured", rawURL)
		}
		bucket, key, err := storage.ParseS3URL(rawURL)
		if err != nil {
			return nil, err
		}
		return f.s3.Download(ctx, bucket, key)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		if body != nil {
			body.Close()
		}
		return nil, fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode())
	}
	return body, nil
}

func (f *assetFetcher) readLimited(r io.Reader) ([]byte, error) {
	if f.options.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.options.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.options.MaxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", f.options.MaxBytes)
	}
	return data, nil
}
