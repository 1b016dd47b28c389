//go:build linux

package copier

import (
	"os"

	"golang.org/x/sys/unix"
)

// reflinkSupported probes whether the filesystem backing probePath's
// directory supports copy-on-write clones by attempting a real clone
// of sourceSample. The probe clone is removed by the
// caller.
func reflinkSupported(sourceSample, probePath string) bool {
	_, err := reflinkCopy(sourceSample, probePath)
	return err == nil
}

// reflinkCopy clones src to dst via the Linux FICLONE ioctl and
// returns the number of bytes in the resulting file. Both files must
// reside on the same filesystem for the clone to succeed.
func reflinkCopy(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	if err := unix.IoctlFileClone(int(out.Fd()), int(in.Fd())); err != nil {
		return 0, err
	}

	info, err := out.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
