package core

import "context"

// Result of a single download.
type Result struct {
	StatusCode int
	Size       int64
}

// Downloader fetches URL into toFilePath. On error no file is left at toFilePath
// unless one was already there.
type Downloader interface {
	Download(ctx context.Context, URL string, toFilePath string) (Result, error)
}
