//go:build (darwin || freebsd || linux) && !android

package scanner

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ebitengine/purego"
)

// SystemLoader loads shared objects with dlopen.
type SystemLoader struct {
	Logger *slog.Logger
}

type sharedObject struct {
	path   string
	handle uintptr
}

// Load opens path with RTLD_NOW so missing dependencies fail here rather
// than on first call.
func (l SystemLoader) Load(path string) (Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}
	if l.Logger != nil {
		l.Logger.Debug("scanner.library.loaded", "path", path)
	}
	return &sharedObject{path: path, handle: h}, nil
}

// AddSearchDir is unsupported: the dynamic linker reads LD_LIBRARY_PATH
// only at process start.
func (SystemLoader) AddSearchDir(string) error { return ErrSearchDirUnsupported }

func (o *sharedObject) Path() string { return o.path }

func (o *sharedObject) Lookup(symbol string) (uintptr, error) {
	return purego.Dlsym(o.handle, symbol)
}

func (o *sharedObject) Close() error {
	if o.handle == 0 {
		return nil
	}
	h := o.handle
	o.handle = 0
	return purego.Dlclose(h)
}
