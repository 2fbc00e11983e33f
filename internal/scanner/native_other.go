//go:build !(darwin || freebsd || linux || windows)

package scanner

import (
	"errors"
	"runtime"
)

// NativeBinder is unavailable where purego cannot call C functions.
func NativeBinder(EntryPoints) (Driver, error) {
	return nil, errors.New("vendor SDK binding is not supported on " + runtime.GOOS)
}
