package downloader

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/edward-yakop/go-iotc/api/dataset"
	"github.com/edward-yakop/go-iotc/internal/core"
	"github.com/edward-yakop/go-iotc/internal/misc"
)

// DownloadListener is told about every finished dataset, curr counts from 1.
type DownloadListener func(metadata *dataset.Metadata, result core.Result, err error, curr, count int)

type DatasetDownloader interface {
	Add(metadata ...*dataset.Metadata) DatasetDownloader
	SetParallel(n int) DatasetDownloader
	Download(ctx context.Context, listener DownloadListener) error
	Count() int
	Folder() string
}

var doNothingListener DownloadListener = func(*dataset.Metadata, core.Result, error, int, int) {
	// Do nothing. This is a substitution when listener is passed as nil in Download
}

type downloaderImpl struct {
	folder     string
	baseURL    string
	downloader core.Downloader
	parallel   int
	datasets   []*dataset.Metadata
}

// NewDatasetDownloader fetches datasets from baseURL into folder, one at a time unless SetParallel says otherwise.
func NewDatasetDownloader(folder, baseURL string, d core.Downloader) DatasetDownloader {
	return &downloaderImpl{
		folder:     folder,
		baseURL:    baseURL,
		downloader: d,
		parallel:   1,
	}
}

func (d *downloaderImpl) Add(metadata ...*dataset.Metadata) DatasetDownloader {
	for _, m := range metadata {
		if m == nil || d.contains(m) {
			continue
		}
		d.datasets = append(d.datasets, m)
	}
	sort.SliceStable(d.datasets, func(i, j int) bool {
		return dataset.Index(d.datasets[i]) < dataset.Index(d.datasets[j])
	})
	return d
}

func (d *downloaderImpl) contains(m *dataset.Metadata) bool {
	for _, e := range d.datasets {
		if e.Name() == m.Name() {
			return true
		}
	}
	return false
}

func (d *downloaderImpl) SetParallel(n int) DatasetDownloader {
	if n < 1 {
		n = 1
	}
	d.parallel = n
	return d
}

func (d downloaderImpl) Count() int {
	return len(d.datasets)
}

func (d downloaderImpl) Folder() string {
	return d.folder
}

// Download creates the folder and fetches every added dataset. The first failure
// aborts the batch; files completed before it stay on disk.
func (d *downloaderImpl) Download(ctx context.Context, listener DownloadListener) error {
	if listener == nil {
		listener = doNothingListener
	}
	if err := misc.EnsureDir(d.folder); err != nil {
		return err
	}

	if d.parallel == 1 {
		for i, m := range d.datasets {
			if err := d.fetch(ctx, m, i+1, listener); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		mu       sync.Mutex
		progress int
	)
	report := func(m *dataset.Metadata, result core.Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		progress++
		listener(m, result, err, progress, len(d.datasets))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)
	for _, m := range d.datasets {
		m := m
		g.Go(func() error {
			result, err := d.downloadOne(gctx, m)
			report(m, result, err)
			return err
		})
	}
	return g.Wait()
}

func (d *downloaderImpl) fetch(ctx context.Context, m *dataset.Metadata, curr int, listener DownloadListener) error {
	result, err := d.downloadOne(ctx, m)
	listener(m, result, err, curr, len(d.datasets))
	return err
}

func (d *downloaderImpl) downloadOne(ctx context.Context, m *dataset.Metadata) (core.Result, error) {
	result, err := d.downloader.Download(ctx, m.URL(d.baseURL), filepath.Join(d.folder, m.Name()))
	if err != nil {
		err = errors.Wrap(err, "Failed to download dataset ["+m.Name()+"]")
	}
	return result, err
}
