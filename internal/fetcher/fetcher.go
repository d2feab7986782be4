package fetcher

import (
	"context"
	"io"
	"strings"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the location and returns the response body.
	Download(ctx context.Context, location string) (io.ReadCloser, error)

	// DownloadToFile fetches the location and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, location string, path string) (int64, error)
}

// Router dispatches to the HTTP fetcher for http(s) locations and to the
// file fetcher for everything else (plain paths and file:// URLs).
type Router struct {
	HTTP Fetcher
	File Fetcher
}

// NewRouter creates a Router over the given fetchers.
func NewRouter(httpFetcher, fileFetcher Fetcher) *Router {
	return &Router{HTTP: httpFetcher, File: fileFetcher}
}

func (r *Router) pick(location string) Fetcher {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return r.HTTP
	}
	return r.File
}

// Download fetches the location with the matching fetcher.
func (r *Router) Download(ctx context.Context, location string) (io.ReadCloser, error) {
	return r.pick(location).Download(ctx, location)
}

// DownloadToFile fetches the location with the matching fetcher and writes it to path.
func (r *Router) DownloadToFile(ctx context.Context, location string, path string) (int64, error) {
	return r.pick(location).DownloadToFile(ctx, location, path)
}
