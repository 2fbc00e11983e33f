//go:build !windows

package service

import "os"

func elevated() bool { return os.Geteuid() == 0 }
