//go:build !linux

package copier

import "errors"

// errReflinkUnsupported is returned on platforms with no wired
// copy-on-write clone syscall, forcing strategy selection to fall
// through to plain copy.
var errReflinkUnsupported = errors.New("copier: reflink not supported on this platform")

func reflinkSupported(sourceSample, probePath string) bool {
	return false
}

func reflinkCopy(src, dst string) (int64, error) {
	return 0, errReflinkUnsupported
}
