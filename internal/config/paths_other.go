//go:build !windows

package config

import (
	"runtime"

	"github.com/jtejido/kioskscanner/internal/scanner"
)

const sdkRoot = "/opt/DigitalPersona/UareUSDK/Linux/lib/x64/"

func platformLibraries() scanner.LibraryPaths {
	ext := ".so"
	if runtime.GOOS == "darwin" {
		ext = ".dylib"
	}
	return scanner.LibraryPaths{
		DevicePrimary:      sdkRoot + "libdpfpdd" + ext,
		ProcessingPrimary:  sdkRoot + "libdpfj" + ext,
		DeviceFallback:     "sdk/x64/libdpfpdd" + ext,
		ProcessingFallback: "sdk/x64/libdpfj" + ext,
	}
}
