//go:build windows

package scanner

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/windows"
)

// SystemLoader loads DLLs with LoadLibrary.
type SystemLoader struct {
	Logger *slog.Logger
}

type dll struct {
	path string
	lib  *windows.DLL
}

func (l SystemLoader) Load(path string) (Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	d, err := windows.LoadDLL(path)
	if err != nil {
		return nil, fmt.Errorf("LoadLibrary %s: %w", path, err)
	}
	if l.Logger != nil {
		l.Logger.Debug("scanner.library.loaded", "path", path)
	}
	return &dll{path: path, lib: d}, nil
}

// AddSearchDir sets the DLL directory searched for the SDK's own
// dependencies. Windows keeps a single such directory.
func (SystemLoader) AddSearchDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return windows.SetDllDirectory(dir)
}

func (d *dll) Path() string { return d.path }

func (d *dll) Lookup(symbol string) (uintptr, error) {
	p, err := d.lib.FindProc(symbol)
	if err != nil {
		return 0, err
	}
	return p.Addr(), nil
}

func (d *dll) Close() error {
	if d.lib == nil {
		return nil
	}
	lib := d.lib
	d.lib = nil
	return lib.Release()
}
