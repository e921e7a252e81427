// Package archive snapshots a source-data folder into a single .tar.xz with a manifest.
package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/edward-yakop/go-iotc/api/dataset"
	"github.com/edward-yakop/go-iotc/internal/check"
	"github.com/edward-yakop/go-iotc/internal/misc"
)

const ManifestName = "MANIFEST.yaml"

var log = misc.NewLogger("Pack", 2)

type Entry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Size        int64  `yaml:"size"`
	BLAKE3      string `yaml:"blake3"`
}

type Manifest struct {
	BaseURL string  `yaml:"base_url"`
	Created string  `yaml:"created"`
	Files   []Entry `yaml:"files"`
}

// Pack writes dest as a tar.xz holding the manifest followed by every dataset from folder.
// dest only appears once it is complete.
func Pack(folder, dest, baseURL string, metadata ...*dataset.Metadata) (manifest *Manifest, err error) {
	manifest = &Manifest{
		BaseURL: baseURL,
		Created: time.Now().UTC().Format(time.RFC3339),
	}
	for _, m := range metadata {
		path := filepath.Join(folder, m.Name())
		size := misc.FileSize(path)
		if size < 0 {
			return nil, errors.New("Missing dataset [" + path + "]")
		}
		digest, derr := check.Digest(path)
		if derr != nil {
			return nil, derr
		}
		manifest.Files = append(manifest.Files, Entry{
			Name:        m.Name(),
			Description: m.Description(),
			Size:        size,
			BLAKE3:      digest,
		})
	}

	if err = misc.EnsureDir(filepath.Dir(dest)); err != nil {
		return nil, err
	}
	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return nil, errors.Wrap(err, "Create archive ["+part+"] failed")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(part)
			manifest = nil
		}
	}()

	err = write(f, folder, manifest)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		err = errors.Wrap(err, "Writing archive ["+dest+"] failed")
		return
	}
	if err = os.Rename(part, dest); err != nil {
		err = errors.Wrap(err, "Move ["+part+"] into place failed")
		return
	}

	log.Info("Packed %d file(s) into %s.", len(manifest.Files), dest)
	return
}

func write(w io.Writer, folder string, manifest *Manifest) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(xw)

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return errors.Wrap(err, "Encode manifest failed")
	}
	modTime := time.Now()
	if err = tw.WriteHeader(&tar.Header{
		Name:    ManifestName,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}); err != nil {
		return err
	}
	if _, err = tw.Write(data); err != nil {
		return err
	}

	for _, e := range manifest.Files {
		if err = addFile(tw, filepath.Join(folder, e.Name), e); err != nil {
			return err
		}
	}

	if err = tw.Close(); err != nil {
		return err
	}
	return xw.Close()
}

func addFile(tw *tar.Writer, path string, e Entry) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "Failed to open ["+path+"]")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() != e.Size {
		return errors.Errorf("dataset [%s] changed while packing", e.Name)
	}
	if err = tw.WriteHeader(&tar.Header{
		Name:    e.Name,
		Mode:    0644,
		Size:    e.Size,
		ModTime: info.ModTime(),
	}); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// ReadManifest returns the manifest stored at the head of a packed archive.
func ReadManifest(archivePath string) (*Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to open ["+archivePath+"]")
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "Not an xz archive ["+archivePath+"]")
	}
	tr := tar.NewReader(xr)
	hdr, err := tr.Next()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to read ["+archivePath+"]")
	}
	if hdr.Name != ManifestName {
		return nil, errors.New("Archive [" + archivePath + "] does not start with " + ManifestName)
	}

	var manifest Manifest
	if err = yaml.NewDecoder(tr).Decode(&manifest); err != nil {
		return nil, errors.Wrap(err, "Decode manifest failed")
	}
	return &manifest, nil
}
