package model

import "time"

// RemoteEntry is a discovered transfer candidate. Path is the absolute
// remote path and identifies the file across runs. Entries are immutable
// once discovered and rebuilt fresh on every pass.
type RemoteEntry struct {
	Path    string
	Dir     string
	Name    string
	Ext     string
	Size    int64
	ModTime time.Time
}

// CatalogEntry is the durable inventory snapshot of a remote file, keyed
// by its path in the catalog bucket.
type CatalogEntry struct {
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mtime,omitzero"`
	Ext       string    `json:"ext"`
	Dir       string    `json:"dir"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}
