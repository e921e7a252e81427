package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/edward-yakop/go-iotc/api/dataset"
	"github.com/edward-yakop/go-iotc/api/dataset/downloader"
	"github.com/edward-yakop/go-iotc/internal/archive"
	"github.com/edward-yakop/go-iotc/internal/check"
	"github.com/edward-yakop/go-iotc/internal/core"
	"github.com/edward-yakop/go-iotc/internal/misc"
)

var (
	log = misc.NewLogger("App", 2)
)

// ArgsList holds the raw command line and environment values.
type ArgsList struct {
	Output   string
	BaseURL  string
	Timeout  time.Duration
	Retries  int
	Parallel int
	Rate     int
	Datasets []string
}

// DefaultArgs fetches all six files into ./source-data.
func DefaultArgs() ArgsList {
	return ArgsList{
		Output:   dataset.DefaultFolder,
		BaseURL:  dataset.DefaultBaseURL,
		Timeout:  core.DefaultTimeout,
		Retries:  core.DefaultRetries,
		Parallel: 1,
	}
}

// AppOption validated options
type AppOption struct {
	Folder    string
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	Parallel  int
	Rate      int
	Datasets  []*dataset.Metadata
}

// ParseOption validates args. No dataset names means the whole catalog.
func ParseOption(args ArgsList) (*AppOption, error) {
	var err error
	opt := AppOption{
		Timeout:   args.Timeout,
		Retries:   args.Retries,
		RetryWait: core.DefaultRetryWait,
		Parallel:  args.Parallel,
		Rate:      args.Rate,
	}

	if strings.TrimSpace(args.Output) == "" {
		return nil, errors.New("output folder is required")
	}
	if opt.Folder, err = filepath.Abs(args.Output); err != nil {
		return nil, errors.Wrap(err, "invalid output folder")
	}

	if opt.BaseURL, err = parseBaseURL(args.BaseURL); err != nil {
		return nil, err
	}

	if opt.Timeout <= 0 {
		return nil, fmt.Errorf("invalid timeout %v", args.Timeout)
	}
	if opt.Retries < 0 {
		return nil, fmt.Errorf("invalid retries %d, should be 0 or more", args.Retries)
	}
	if opt.Parallel < 1 {
		return nil, fmt.Errorf("invalid parallel %d, should be 1 or more", args.Parallel)
	}
	if opt.Rate < 0 {
		return nil, fmt.Errorf("invalid rate %d, should be 0 (unlimited) or more", args.Rate)
	}

	if opt.Datasets, err = parseDatasets(args.Datasets); err != nil {
		return nil, err
	}
	return &opt, nil
}

func parseBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "", fmt.Errorf("invalid base url [%s], expected http(s)://", raw)
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw, nil
}

func parseDatasets(names []string) ([]*dataset.Metadata, error) {
	if len(names) == 0 {
		return dataset.All(), nil
	}
	r := make([]*dataset.Metadata, 0, len(names))
	for _, name := range names {
		m := dataset.GetMetadata(strings.TrimSpace(name))
		if m == nil {
			return nil, fmt.Errorf("unknown dataset [%s], expected one of %s", name, strings.Join(dataset.Names(), ", "))
		}
		r = append(r, m)
	}
	return r, nil
}

// App downloads, verifies and packs IOTC source data
type App struct {
	option     AppOption
	downloader core.Downloader
}

// NewApp create an application instance by input arguments
func NewApp(opt *AppOption) *App {
	return &App{
		option: *opt,
		downloader: core.NewDownloader(
			core.WithTimeout(opt.Timeout),
			core.WithRetries(opt.Retries),
			core.WithRetryWait(opt.RetryWait),
			core.WithRate(opt.Rate),
		),
	}
}

func (app *App) Option() AppOption {
	return app.option
}

// Execute downloads every selected dataset into the output folder
func (app *App) Execute(ctx context.Context) error {
	var (
		opt       = app.option
		startTime = time.Now()
		total     int64
	)

	d := downloader.NewDatasetDownloader(opt.Folder, opt.BaseURL, app.downloader).
		SetParallel(opt.Parallel).
		Add(opt.Datasets...)

	log.Info("Fetching %d file(s) from %s into %s.", d.Count(), opt.BaseURL, opt.Folder)
	err := d.Download(ctx, func(m *dataset.Metadata, result core.Result, err error, curr, count int) {
		if err != nil {
			log.Error("[%d/%d] %s failed: %v.", curr, count, m.Name(), err)
			return
		}
		total += result.Size
		log.Info("[%d/%d] %s (%s).", curr, count, m.Name(), humanize.Bytes(uint64(result.Size)))
	})
	if err != nil {
		return errors.Wrap(err, "Fetch aborted")
	}

	log.Info("Fetched %s in %v.", humanize.Bytes(uint64(total)), time.Since(startTime))
	return nil
}

// Verify checks the selected datasets already on disk
func (app *App) Verify() ([]check.Report, error) {
	reports := check.Folder(app.option.Folder, app.option.Datasets...)
	for _, r := range reports {
		if r.OK() {
			log.Trace("%s ok, %s, blake3 %s.", r.Name, humanize.Bytes(uint64(r.Size)), r.Digest)
		} else {
			log.Warn("%s invalid: %v.", r.Name, r.Err)
		}
	}
	if failed := check.Failed(reports); len(failed) > 0 {
		return reports, fmt.Errorf("%d of %d file(s) failed verification", len(failed), len(reports))
	}
	return reports, nil
}

// Pack verifies the datasets and snapshots them into dest
func (app *App) Pack(dest string) (*archive.Manifest, error) {
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return nil, errors.Wrap(err, "invalid archive path")
	}
	if isInside(app.option.Folder, absDest) {
		return nil, fmt.Errorf("archive [%s] must be outside the output folder [%s]", dest, app.option.Folder)
	}
	if _, err := app.Verify(); err != nil {
		return nil, errors.Wrap(err, "Refusing to pack")
	}
	return archive.Pack(app.option.Folder, dest, app.option.BaseURL, app.option.Datasets...)
}

// isInside reports whether path is folder itself or lies anywhere below it.
func isInside(folder, path string) bool {
	rel, err := filepath.Rel(folder, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
