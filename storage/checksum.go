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
	"os"

	"github.com/opencontainers/go-digest"

	"github.com/cowdogmoo/skyforge/errors"
)

// Checksum computes the hex digest of a file with the given algorithm.
func Checksum(path string, algo digest.Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap("open file for checksum", path, err)
	}
	defer f.Close()

	d, err := algo.FromReader(f)
	if err != nil {
		return "", errors.Wrap("calculate checksum", path, err)
	}
	return d.Encoded(), nil
}

// SaveChecksums writes <path>.sha256 and <path>.sha512 beside the file.
// Sums are regenerated on every call so a re-store never ships a stale
// checksum.
func SaveChecksums(path string) error {
	for _, algo := range []digest.Algorithm{digest.SHA256, digest.SHA512} {
		sum, err := Checksum(path, algo)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path+"."+string(algo), []byte(sum+"\n"), 0o644); err != nil {
			return errors.Wrap("write checksum file", path+"."+string(algo), err)
		}
	}
	return nil
}

// VerifyChecksum compares a file against its stored .sha512 sum.
func VerifyChecksum(path string) (bool, error) {
	want, err := os.ReadFile(path + ".sha512")
	if err != nil {
		return false, errors.Wrap("read checksum file", path+".sha512", err)
	}

	got, err := Checksum(path, digest.SHA512)
	if err != nil {
		return false, err
	}
	return got == string(trimNewline(want)), nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
