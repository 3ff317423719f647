// Package scriptfile writes a script body to a private temporary file for a
// single use. Callers must defer Remove immediately after a successful Write.
package scriptfile

import (
	"fmt"
	"os"
)

// File is one scoped temporary script.
type File struct {
	path string
}

// Write creates a 0600 file in dir (os.TempDir when empty) whose contents are
// exactly body. On any error nothing is left behind.
func Write(dir, body string) (*File, error) {
	f, err := os.CreateTemp(dir, "voxsh-*.sh")
	if err != nil {
		return nil, fmt.Errorf("create script file: %w", err)
	}
	path := f.Name()

	if _, err := f.WriteString(body); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close script file: %w", err)
	}
	return &File{path: path}, nil
}

func (f *File) Path() string { return f.path }

// Remove deletes the file. It is safe to call more than once.
func (f *File) Remove() error {
	if f == nil || f.path == "" {
		return nil
	}
	err := os.Remove(f.path)
	f.path = ""
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
