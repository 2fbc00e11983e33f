package config

import "github.com/jtejido/kioskscanner/internal/scanner"

const sdkRoot = `C:\Program Files\DigitalPersona\U.are.U SDK\Windows\Lib\x64\`

func platformLibraries() scanner.LibraryPaths {
	return scanner.LibraryPaths{
		DevicePrimary:      sdkRoot + "dpfpdd.dll",
		ProcessingPrimary:  sdkRoot + "dpfj.dll",
		DeviceFallback:     `sdk\x64\dpfpdd.dll`,
		ProcessingFallback: `sdk\x64\dpfj.dll`,
		RuntimeDirs:        []string{`sdk\RTE\x64`, `sdk\RTE\x86`},
	}
}
