// Package web embeds the browser demo served at the root of the HTTP server.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"sync"
)

//go:embed all:demo
var embeddedFS embed.FS

var (
	subFSOnce   sync.Once
	cachedSubFS fs.FS
)

// GetFS returns the embedded web assets rooted at the demo directory, or nil
// if the directory is missing from the binary.
func GetFS() fs.FS {
	return getEmbeddedFS()
}

// GetHTTPFS returns an http.FileSystem for use with http.FileServer.
// Returns nil if no embedded assets are available.
func GetHTTPFS() http.FileSystem {
	efs := GetFS()
	if efs == nil {
		return nil
	}
	return http.FS(efs)
}

// HasEmbeddedAssets returns true if the embedded assets contain index.html.
func HasEmbeddedAssets() bool {
	efs := GetFS()
	if efs == nil {
		return false
	}
	_, err := fs.Stat(efs, "index.html")
	return err == nil
}

// ListEmbeddedFiles returns a list of all embedded files for debugging.
// Returns nil if no embedded assets are available.
func ListEmbeddedFiles() []string {
	efs := GetFS()
	if efs == nil {
		return nil
	}

	var files []string
	_ = fs.WalkDir(efs, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

// The embed directive creates paths like "demo/index.html"; callers see
// "index.html".
func getEmbeddedFS() fs.FS {
	subFSOnce.Do(func() {
		sub, err := fs.Sub(embeddedFS, "demo")
		if err != nil {
			return
		}
		cachedSubFS = sub
	})
	return cachedSubFS
}
