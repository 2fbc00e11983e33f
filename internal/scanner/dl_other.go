//go:build !(darwin || freebsd || linux || windows) || android

package scanner

import (
	"errors"
	"log/slog"
	"runtime"
)

// SystemLoader cannot load native libraries on this platform.
type SystemLoader struct {
	Logger *slog.Logger
}

func (SystemLoader) Load(path string) (Library, error) {
	return nil, errors.New("native libraries are not supported on " + runtime.GOOS)
}

func (SystemLoader) AddSearchDir(string) error { return ErrSearchDirUnsupported }
