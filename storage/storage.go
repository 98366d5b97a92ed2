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

// Package storage moves image artifacts and metadata between a per-cell
// local staging directory and an artifact store addressed by URL. The
// "file" scheme copies within the local filesystem; the "ssh" scheme
// operates on a remote host over SSH sessions.
package storage

import (
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cowdogmoo/skyforge/errors"
	"github.com/cowdogmoo/skyforge/logging"
)

// Store is an artifact store bound to one local staging directory.
type Store struct {
	// Local is the staging directory all file arguments are relative to.
	Local string

	// URL is the normalized storage URL (no trailing slash).
	URL string

	scheme string
	remote string
	host   string
	port   string
	user   string

	log *logging.Logger
	ssh *sshRunner
}

// New creates a store for a local staging directory and a storage URL
// with scheme file (or none) or ssh. Any other scheme is a configuration
// error.
func New(localDir, storageURL string, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NewLogger(slog.LevelInfo)
	}

	s := &Store{
		Local: localDir,
		URL:   strings.TrimSuffix(storageURL, "/"),
		log:   log,
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, errors.Wrap("parse storage URL", logging.RedactURL(storageURL), err)
	}

	switch u.Scheme {
	case "", "file":
		s.scheme = "file"
		s.remote = expandUser(u.Host + u.Path)
	case "ssh":
		s.scheme = "ssh"
		s.host = u.Hostname()
		s.port = u.Port()
		if u.User != nil {
			s.user = u.User.Username()
		}
		// a single leading / is relative to the login directory; use //
		// for an absolute remote path
		s.remote = strings.TrimPrefix(u.Path, "/")
	default:
		return nil, errors.Wrap("configure storage", u.Scheme, errors.ErrUnsupportedScheme)
	}

	return s, nil
}

// Scheme returns "file" or "ssh".
func (s *Store) Scheme() string {
	return s.scheme
}

// Store copies files (globs allowed) from the staging directory into the
// store.
func (s *Store) Store(files ...string) error {
	names, err := s.expand(files)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		s.log.Debug("No files to store")
		return nil
	}

	s.log.Info("Storing %v in %s", names, logging.RedactURL(s.URL))
	if s.scheme == "file" {
		return s.storeLocal(names)
	}
	return s.storeSSH(names)
}

// Retrieve copies files from the store into the staging directory.
func (s *Store) Retrieve(files ...string) error {
	if len(files) == 0 {
		s.log.Debug("No files to retrieve")
		return nil
	}

	if err := os.MkdirAll(s.Local, 0o755); err != nil {
		return errors.Wrap("create staging directory", s.Local, err)
	}

	if s.scheme == "file" {
		return s.retrieveLocal(files)
	}
	return s.retrieveSSH(files)
}

// List returns store entries matching the glob, newest first.
func (s *Store) List(match string) ([]string, error) {
	if match == "" {
		match = "*"
	}

	s.log.Debug("Listing %s files at %s", match, logging.RedactURL(s.URL))
	if s.scheme == "file" {
		return s.listLocal(match)
	}
	return s.listSSH(match)
}

// Remove deletes files from the store. Missing files are not an error.
func (s *Store) Remove(files ...string) error {
	if len(files) == 0 {
		s.log.Debug("No files to remove")
		return nil
	}

	s.log.Info("Removing %v from %s", files, logging.RedactURL(s.URL))
	if s.scheme == "file" {
		return s.removeLocal(files)
	}
	return s.removeSSH(files)
}

// expand resolves globs against the staging directory and returns bare
// file names.
func (s *Store) expand(files []string) ([]string, error) {
	var names []string
	for _, f := range files {
		matches, err := filepath.Glob(filepath.Join(s.Local, f))
		if err != nil {
			return nil, errors.Wrap("expand file glob", f, err)
		}
		for _, m := range matches {
			names = append(names, filepath.Base(m))
		}
	}
	return names, nil
}

func expandUser(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
