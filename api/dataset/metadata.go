package dataset

import (
	"net/url"
	"strings"
)

// The files are listed at http://www.iotc.org/English/meetings/wp/wpttcurrent.php

const (
	DefaultBaseURL = "http://www.iotc.org/files/proceedings/2013/wptt/"
	DefaultFolder  = "source-data"
)

type Kind string

const (
	KindPDF Kind = "pdf"
	KindZIP Kind = "zip"
)

type Metadata struct {
	name        string
	description string
	kind        Kind
}

// Name is both the remote file name and the local one.
func (m Metadata) Name() string {
	return m.name
}

func (m Metadata) Description() string {
	return m.description
}

func (m Metadata) Kind() Kind {
	return m.kind
}

// URL resolves the dataset against base, which is expected to end with a slash.
func (m Metadata) URL(base string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(m.name)
}

var catalog = []*Metadata{
	{name: "CAT_TROP13.pdf", description: "Data catalogue", kind: KindPDF},
	{name: "NCTROP.zip", description: "Catch data sources and quality information", kind: KindZIP},
	{name: "CEALL.zip", description: "All catch and effort data", kind: KindZIP},
	{name: "CE_Reference.zip", description: "Information on catch and effort files", kind: KindZIP},
	{name: "FL_SKJ.zip", description: "Skipjack size frequency data", kind: KindZIP},
	{name: "SF_Reference.zip", description: "Information on size frequency files", kind: KindZIP},
}

var nameToDataset = func() map[string]*Metadata {
	m := make(map[string]*Metadata, len(catalog))
	for _, d := range catalog {
		m[strings.ToUpper(d.name)] = d
	}
	return m
}()

// All returns every dataset in catalog order.
func All() []*Metadata {
	r := make([]*Metadata, len(catalog))
	copy(r, catalog)
	return r
}

// GetMetadata returns the dataset with the requested file name, ignoring case.
// Returns nil if not found
func GetMetadata(name string) *Metadata {
	return nameToDataset[strings.ToUpper(name)]
}

func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, d := range catalog {
		names = append(names, d.name)
	}
	return names
}

// Index is the catalog position of m, or -1 for a dataset outside the catalog.
func Index(m *Metadata) int {
	for i, d := range catalog {
		if d == m {
			return i
		}
	}
	return -1
}
