/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package storage

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cowdogmoo/skyforge/errors"
)

func (s *Store) storeLocal(names []string) error {
	if err := os.MkdirAll(s.remote, 0o755); err != nil {
		return errors.Wrap("create store directory", s.remote, err)
	}

	for _, name := range names {
		if err := copyFile(filepath.Join(s.Local, name), filepath.Join(s.remote, name)); err != nil {
			return errors.Wrap("store file", name, err)
		}
	}
	return nil
}

func (s *Store) retrieveLocal(names []string) error {
	for _, name := range names {
		s.log.Debug("Retrieving %s", filepath.Join(s.remote, name))
		if err := copyFile(filepath.Join(s.remote, name), filepath.Join(s.Local, name)); err != nil {
			return errors.Wrap("retrieve file", name, err)
		}
	}
	return nil
}

func (s *Store) listLocal(match string) ([]string, error) {
	if err := os.MkdirAll(s.remote, 0o755); err != nil {
		return nil, errors.Wrap("create store directory", s.remote, err)
	}

	matches, err := filepath.Glob(filepath.Join(s.remote, match))
	if err != nil {
		return nil, errors.Wrap("list store files", match, err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return mtime(matches[i]).After(mtime(matches[j]))
	})

	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	return names, nil
}

func (s *Store) removeLocal(names []string) error {
	for _, name := range names {
		path := filepath.Join(s.remote, name)
		s.log.Debug("Removing %s", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap("remove file", name, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func mtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
