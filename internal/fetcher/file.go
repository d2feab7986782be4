package fetcher

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// FileFetcher implements Fetcher over the local filesystem. Locations are
// plain paths or file:// URLs.
type FileFetcher struct{}

// NewFileFetcher creates a FileFetcher.
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{}
}

// Download opens the file at location.
func (f *FileFetcher) Download(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "file: context cancelled")
	}
	file, err := os.Open(strings.TrimPrefix(location, "file://"))
	if err != nil {
		return nil, eris.Wrapf(err, "file: open %s", location)
	}
	return file, nil
}

// DownloadToFile copies the file at location to path.
func (f *FileFetcher) DownloadToFile(ctx context.Context, location string, path string) (int64, error) {
	body, err := f.Download(ctx, location)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, body)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}
	return n, nil
}
