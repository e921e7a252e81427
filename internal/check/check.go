// Package check validates downloaded datasets and fingerprints them.
package check

import (
	"bytes"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"lukechampine.com/blake3"

	"github.com/edward-yakop/go-iotc/api/dataset"
)

var pdfMagic = []byte("%PDF-")

// Report for one dataset file. Err is nil when the file looks sound.
type Report struct {
	Name   string
	Path   string
	Size   int64
	Digest string
	Err    error
}

func (r Report) OK() bool {
	return r.Err == nil
}

// Folder checks every dataset inside folder, in the given order.
func Folder(folder string, metadata ...*dataset.Metadata) []Report {
	reports := make([]Report, 0, len(metadata))
	for _, m := range metadata {
		reports = append(reports, File(filepath.Join(folder, m.Name()), m.Kind()))
	}
	return reports
}

// Failed returns the reports that did not pass.
func Failed(reports []Report) []Report {
	var failed []Report
	for _, r := range reports {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

func File(path string, kind dataset.Kind) Report {
	r := Report{Name: filepath.Base(path), Path: path}

	info, err := os.Stat(path)
	if err != nil {
		r.Err = errors.Wrap(err, "Missing ["+path+"]")
		return r
	}
	r.Size = info.Size()
	if r.Size == 0 {
		r.Err = errors.New("Empty file [" + path + "]")
		return r
	}

	if r.Digest, err = Digest(path); err != nil {
		r.Err = err
		return r
	}

	switch kind {
	case dataset.KindZIP:
		r.Err = checkZip(path)
	case dataset.KindPDF:
		r.Err = checkPDF(path)
	}
	return r
}

// Digest is the hex BLAKE3-256 sum of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "Failed to open ["+path+"]")
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err = io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "Failed to hash ["+path+"]")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func checkZip(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return errors.Wrap(err, "Not a zip archive ["+path+"]")
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return errors.New("Zip archive [" + path + "] has no entries")
	}
	return nil
}

func checkPDF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "Failed to open ["+path+"]")
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err = io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return errors.New("Not a PDF document [" + path + "]")
	}
	return nil
}
