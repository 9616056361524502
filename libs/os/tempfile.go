package os

import (
	"os"
	"path/filepath"
)

const atomicWriteFilePrefix = "write-file-atomic-"

// Flushing hooks, replaced in tests.
var (
	syncFile = func(f *os.File) error { return f.Sync() }
	syncDir  = fsyncDir
)

// WriteFileAtomic creates a temporary file with data and provided perm and
// swaps it atomically with filename if successful. The temporary file is
// flushed to stable storage before the rename and the directory after it,
// so after a power loss filename holds either the old or the new data.
func WriteFileAtomic(filename string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(filename)

	f, err := os.CreateTemp(dir, atomicWriteFilePrefix+"*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err = f.Chmod(perm); err != nil {
		return err
	}
	if _, err = f.Write(data); err != nil {
		return err
	}
	if err = syncFile(f); err != nil {
		return err
	}
	// Close the file before renaming it, otherwise it will cause "The process
	// cannot access the file because it is being used by another process." on windows.
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, filename); err != nil {
		return err
	}
	return syncDir(dir)
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
