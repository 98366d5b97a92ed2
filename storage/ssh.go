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
	"bytes"
	"fmt"
	"net"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/cowdogmoo/skyforge/errors"
)

const sshDialTimeout = 10 * time.Second

// sshRunner holds one SSH connection, established lazily and reused for
// the life of the store.
type sshRunner struct {
	client *ssh.Client
}

func (s *Store) runner() (*sshRunner, error) {
	if s.ssh != nil {
		return s.ssh, nil
	}

	username := s.user
	if username == "" {
		if u, err := user.Current(); err == nil {
			username = u.Username
		}
	}

	port := s.port
	if port == "" {
		port = "22"
	}

	cfg := &ssh.ClientConfig{
		User:    username,
		Auth:    sshAuthMethods(),
		Timeout: sshDialTimeout,
		// the artifact store host is operator-configured; host key
		// pinning is left to the ssh agent / known_hosts layer
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(s.host, port), cfg)
	if err != nil {
		return nil, errors.Wrap("connect to storage host", s.host, err)
	}

	s.ssh = &sshRunner{client: client}
	return s.ssh, nil
}

// sshAuthMethods prefers the SSH agent and falls back to the default
// private key files.
func sshAuthMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return methods
	}

	var signers []ssh.Signer
	for _, name := range []string{"id_ed25519", "id_rsa"} {
		key, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	return methods
}

// run executes one remote command and returns its stdout.
func (r *sshRunner) run(cmd string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	var out, stderr bytes.Buffer
	session.Stdout = &out
	session.Stderr = &stderr

	if err := session.Run(cmd); err != nil {
		return "", fmt.Errorf("%s: %w (%s)", cmd, err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}

func (s *Store) storeSSH(names []string) error {
	r, err := s.runner()
	if err != nil {
		return err
	}

	if _, err := r.run("mkdir -p " + shellQuote(s.remote)); err != nil {
		return errors.Wrap("ensure existence of store path", s.remote, err)
	}

	for _, name := range names {
		if err := s.pushFile(r, name); err != nil {
			return errors.Wrap("store file", name, err)
		}
	}
	return nil
}

func (s *Store) pushFile(r *sshRunner, name string) error {
	session, err := r.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	local, err := os.Open(filepath.Join(s.Local, name))
	if err != nil {
		return err
	}
	defer local.Close()

	session.Stdin = local
	return session.Run("cat > " + shellQuote(path.Join(s.remote, name)))
}

func (s *Store) retrieveSSH(names []string) error {
	r, err := s.runner()
	if err != nil {
		return err
	}

	for _, name := range names {
		out, err := r.run("cat " + shellQuote(path.Join(s.remote, name)))
		if err != nil {
			return errors.Wrap("retrieve file", name, err)
		}
		if err := os.WriteFile(filepath.Join(s.Local, name), []byte(out), 0o644); err != nil {
			return errors.Wrap("write retrieved file", name, err)
		}
	}
	return nil
}

func (s *Store) listSSH(match string) ([]string, error) {
	r, err := s.runner()
	if err != nil {
		return nil, err
	}

	if _, err := r.run("mkdir -p " + shellQuote(s.remote)); err != nil {
		return nil, errors.Wrap("ensure existence of store path", s.remote, err)
	}

	// -t sorts oldest-last with -r, so reverse for newest-first; the glob
	// stays unquoted on purpose
	out, err := r.run("ls -1drt " + shellQuote(s.remote) + "/" + match + " 2>/dev/null || true")
	if err != nil {
		return nil, errors.Wrap("list store files", match, err)
	}

	var names []string
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			names = append(names, path.Base(line))
		}
	}
	return names, nil
}

func (s *Store) removeSSH(names []string) error {
	r, err := s.runner()
	if err != nil {
		return err
	}

	args := make([]string, len(names))
	for i, name := range names {
		args[i] = shellQuote(path.Join(s.remote, name))
	}

	if _, err := r.run("rm -f " + strings.Join(args, " ")); err != nil {
		return errors.Wrap("remove store files", strings.Join(names, " "), err)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
