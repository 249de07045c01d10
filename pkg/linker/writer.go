package linker

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// WriteOutput replaces path with buf atomically. The image goes to a
// temporary file next to path which is synced and then renamed over it,
// so an existing file is either left alone or fully replaced.
func WriteOutput(path string, buf []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return outputFailure(path, err)
	}

	if err := writeTemp(tmp, buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return outputFailure(path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return outputFailure(path, err)
	}

	if err := syncDir(dir); err != nil {
		return outputFailure(path, err)
	}
	return nil
}

func writeTemp(f *os.File, buf []byte) error {
	if _, err := f.Write(buf); err != nil {
		return err
	}
	if err := f.Chmod(0755); err != nil {
		return err
	}
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	for {
		err = unix.Fsync(fd)
		if err != unix.EINTR {
			return err
		}
	}
}
