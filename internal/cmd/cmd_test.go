package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edward-yakop/go-iotc/api/dataset"
)

func run(t *testing.T, args ...string) (string, error) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func pdfServer(t *testing.T, hits *int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if dataset.GetMetadata(filepath.Base(r.URL.Path)) == nil {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.4 " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRoot_noArgsFetchesEverything(t *testing.T) {
	srv := pdfServer(t, nil)
	out := filepath.Join(t.TempDir(), "source-data")

	_, err := run(t, "--output", out, "--base-url", srv.URL+"/wptt/", "--retries", "0")
	require.NoError(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 6)
}

func TestFetch_subset(t *testing.T) {
	srv := pdfServer(t, nil)
	out := t.TempDir()

	_, err := run(t, "fetch", "CAT_TROP13.pdf", "--output", out, "--base-url", srv.URL, "--retries", "0")
	require.NoError(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "CAT_TROP13.pdf", entries[0].Name())
}

func TestFetch_unknownDataset(t *testing.T) {
	_, err := run(t, "fetch", "YFT.zip", "--output", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YFT.zip")
}

func TestFetch_envConfiguresRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("IOTC_BASE_URL", srv.URL)
	t.Setenv("IOTC_OUTPUT", t.TempDir())
	t.Setenv("IOTC_RETRIES", "0")

	_, err := run(t, "fetch")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetch_configFile(t *testing.T) {
	srv := pdfServer(t, nil)
	out := filepath.Join(t.TempDir(), "from-config")
	cfg := filepath.Join(t.TempDir(), "iotc.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(
		"output: "+out+"\nbase-url: "+srv.URL+"\nretries: 0\nparallel: 3\n"), 0644))

	_, err := run(t, "--config", cfg, "fetch", "CEALL.zip", "FL_SKJ.zip")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "CEALL.zip"))
	assert.FileExists(t, filepath.Join(out, "FL_SKJ.zip"))
}

func TestVerify_reportsTable(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "CAT_TROP13.pdf"), []byte("%PDF-1.7"), 0644))

	stdout, err := run(t, "verify", "CAT_TROP13.pdf", "--output", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "CAT_TROP13.pdf")
	assert.Contains(t, stdout, "ok")

	stdout, err = run(t, "verify", "--output", out)
	require.Error(t, err)
	assert.Contains(t, stdout, "NCTROP.zip")
}

func TestPack_requiresArchiveArgument(t *testing.T) {
	_, err := run(t, "pack", "--output", t.TempDir())
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	stdout, err := run(t, "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "CAT_TROP13.pdf"))
	assert.Contains(t, lines[2], "All catch and effort data")
}

func TestRoot_rejectsPositionalArgs(t *testing.T) {
	_, err := run(t, "CEALL.zip")
	assert.Error(t, err)
}

func TestFetch_rateLimited(t *testing.T) {
	var hits int32
	srv := pdfServer(t, &hits)
	out := t.TempDir()

	start := time.Now()
	_, err := run(t, "fetch", "CAT_TROP13.pdf", "NCTROP.zip", "CEALL.zip",
		"--output", out, "--base-url", srv.URL, "--retries", "0", "--rate", "10")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRoot_verboseFlagStillFetches(t *testing.T) {
	srv := pdfServer(t, nil)
	out := t.TempDir()
	t.Setenv("IOTC_VERBOSE", "true")

	_, err := run(t, "fetch", "CEALL.zip", "-v", "--output", out, "--base-url", srv.URL, "--retries", "0")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "CEALL.zip"))
}
