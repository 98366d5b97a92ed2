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

package image

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/skyforge/errors"
	"github.com/cowdogmoo/skyforge/storage"
)

// Steps is the release pipeline in execution order.
var Steps = []string{"local", "upload", "import", "publish", "release"}

// Meta-targets accepted by RefreshState alongside the step names.
const (
	// StepState computes pending actions without side effects.
	StepState = "state"

	// StepRollback reverses completed steps up to the publish boundary.
	StepRollback = "rollback"

	// StepFinal saves state at the end of a run; remote metadata
	// discovery is skipped since local state is authoritative by then.
	StepFinal = "final"
)

// isStepOrEarlier reports whether s is at or before the target step.
// StepState considers every step; unknown targets match nothing.
func isStepOrEarlier(s, step string) bool {
	if step == StepState {
		return true
	}

	target := -1
	for i, name := range Steps {
		if name == step {
			target = i
		}
	}
	if target < 0 {
		return false
	}

	for i, name := range Steps {
		if name == s {
			return i <= target
		}
	}
	return false
}

// metadataRevisionRe extracts the revision from a stored metadata file
// name, e.g. "alpine-3.18.4-x86_64-bios-tiny-r3.yaml".
var metadataRevisionRe = regexp.MustCompile(`-r(\d+)\.ya?ml$`)

// RefreshState reconciles this cell's lifecycle against stored metadata,
// handles the rollback and revise paths, computes the pending action list
// for the target step and executes any queued undos. Policy violations
// (rollback past the publish boundary) are logged and skipped; failures
// of destructive operations are fatal since in-memory state would
// otherwise diverge from reality.
func (c *Config) RefreshState(ctx context.Context, step string, revise bool) error {
	stepState := step == StepState

	if err := c.LoadMetadata(step); err != nil {
		return err
	}

	undo := map[string]bool{}
	undoImportID := ""

	if step == StepRollback {
		if c.Published != "" || c.Released != "" {
			c.log.Warn("%s: rollback refused, image is already published or released", c.ImageKey)
		} else {
			// queue-and-clear in reverse pipeline order
			if c.cloudHas("import") && c.Imported != "" {
				undo["import"] = true
				undoImportID = c.ImportID
				c.Imported, c.ImportID, c.ImportRegion = "", "", ""
			}
			if c.Uploaded != "" {
				undo["upload"] = true
				c.Uploaded = ""
			}
			if c.Built != "" && dirExists(c.LocalDir()) {
				undo["local"] = true
				c.Built = ""
			}
		}
	}

	if revise && (c.Published != "" || c.Released != "") {
		if stepState {
			c.log.Warn("Would remove %s", c.MetadataPath())
		} else if err := os.Remove(c.MetadataPath()); err != nil && !os.IsNotExist(err) {
			return errors.Wrap("remove stale metadata", c.MetadataPath(), err)
		}

		c.log.Warn("Bumping %s to revision %d", c.ImageKey, c.Revision+1)
		c.Revision++
		c.resetLifecycle()

		// a partial prior attempt may have built this revision already
		if fileExists(c.ImagePath()) {
			if err := c.loadLocalMetadata(); err != nil {
				c.log.Warn("%s: %v", c.ImageKey, err)
			}
		}
	}

	pending := map[string]bool{}
	for _, s := range Steps {
		if isStepOrEarlier(s, step) {
			pending[s] = true
		}
	}
	if c.Built != "" {
		delete(pending, "local")
	}
	if c.Uploaded != "" {
		delete(pending, "upload")
	}
	if c.Imported != "" || !c.cloudHas("import") {
		delete(pending, "import")
	}
	// re-publishing an already-published image can extend region
	// availability, so publish only drops out when the target is release
	if !c.cloudHas("publish") || (step == "release" && c.Published != "") {
		delete(pending, "publish")
	}
	// releasing only stamps the release date, so a completed release is
	// never redone
	if c.Released != "" {
		delete(pending, "release")
	}

	if !stepState {
		if err := c.executeUndo(ctx, undo, undoImportID); err != nil {
			return err
		}
	}

	c.Actions = c.Actions[:0]
	for _, s := range Steps {
		if pending[s] {
			c.Actions = append(c.Actions, s)
		}
	}
	c.StateUpdated = c.timestamp()
	c.log.Info("%s/%s = %v", c.Cloud, c.ImageName(), c.Actions)

	return nil
}

// executeUndo performs the queued rollback deletions, remote first.
func (c *Config) executeUndo(ctx context.Context, undo map[string]bool, importID string) error {
	if undo["import"] {
		c.log.Warn("Removing imported image %s", importID)
		adapter := c.Adapter()
		if adapter == nil {
			return fmt.Errorf("no cloud adapter for %s", c.Cloud)
		}
		if err := adapter.DeleteImage(ctx, importID); err != nil {
			return errors.Wrap("delete imported image", importID, err)
		}
	}

	if undo["upload"] {
		c.log.Warn("Removing uploaded artifacts for %s", c.ImageKey)
		if err := c.RemoveImage(); err != nil {
			return err
		}
	}

	if undo["local"] {
		c.log.Warn("Removing local image dir %s", c.LocalDir())
		if err := os.RemoveAll(c.LocalDir()); err != nil {
			return errors.Wrap("remove local image dir", c.LocalDir(), err)
		}
	}

	return nil
}

// resetLifecycle returns every downstream lifecycle field to pending.
func (c *Config) resetLifecycle() {
	c.Built = ""
	c.Uploaded = ""
	c.Imported = ""
	c.ImportID = ""
	c.ImportRegion = ""
	c.Published = ""
	c.Released = ""
	c.Artifacts = nil
}

// LoadMetadata reconciles revision and lifecycle state from stored
// metadata. Transport failures degrade the cell to brand-new rather than
// aborting; only configuration errors are fatal.
func (c *Config) LoadMetadata(step string) error {
	if step != StepFinal {
		store, err := c.Storage()
		if err != nil {
			return err
		}

		names, err := store.List(c.metadataGlob())
		if err != nil {
			c.log.Warn("%s: unable to list stored metadata: %v", c.ImageKey, err)
			names = nil
		}

		latest := -1
		for _, name := range names {
			m := metadataRevisionRe.FindStringSubmatch(name)
			if m == nil {
				continue
			}
			if rev, err := strconv.Atoi(m[1]); err == nil && rev > latest {
				latest = rev
			}
		}

		if latest < 0 {
			c.Revision = 0
		} else {
			c.Revision = latest
			if !fileExists(c.MetadataPath()) {
				if err := store.Retrieve(c.MetadataFile()); err != nil {
					c.log.Warn("%s: unable to retrieve metadata, treating as new: %v", c.ImageKey, err)
					c.Revision = 0
				}
			}
		}
	}

	return c.loadLocalMetadata()
}

// loadLocalMetadata overlays the local metadata file, when present, onto
// the config. The templated name field is dropped so stored values never
// clobber the authoring template.
func (c *Config) loadLocalMetadata() error {
	data, err := os.ReadFile(c.MetadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap("read metadata", c.MetadataPath(), err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return errors.Wrap("parse metadata", c.MetadataPath(), err)
	}

	delete(m, "name")
	delete(m, "Name")
	c.applyMap(m)
	return nil
}

// convertArgs maps a cloud image format to the qemu-img arguments that
// produce it from the qcow2 base image. qcow2 itself is a hard link.
var convertArgs = map[string][]string{
	"qcow2": nil,
	"vhd":   {"convert", "-f", "qcow2", "-O", "vpc", "-o", "force_size=on"},
}

// ConvertImage transforms the locally built image into the cloud's
// format, checksums the result, and marks the cell built.
func (c *Config) ConvertImage(ctx context.Context) error {
	src, dst := c.LocalImage(), c.ImagePath()
	c.log.Info("Converting %s to %s", src, dst)

	args, ok := convertArgs[c.ImageFormat]
	if !ok {
		return fmt.Errorf("unsupported image format %q", c.ImageFormat)
	}

	if args == nil {
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return errors.Wrap("remove stale image", dst, err)
		}
		if err := os.Link(src, dst); err != nil {
			return errors.Wrap("link image", dst, err)
		}
	} else {
		cmd := exec.CommandContext(ctx, "qemu-img", append(append([]string{}, args...), src, dst)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errors.Wrap("convert image", strings.TrimSpace(string(out)), err)
		}
	}

	if err := storage.SaveChecksums(dst); err != nil {
		return err
	}

	c.Built = c.timestamp()
	return nil
}

// UploadImage pushes the converted artifact and its checksums to the
// artifact store.
func (c *Config) UploadImage() error {
	store, err := c.Storage()
	if err != nil {
		return err
	}

	name := c.ImageFile()
	if err := store.Store(name, name+".sha256", name+".sha512"); err != nil {
		return err
	}

	c.Uploaded = c.timestamp()
	return nil
}

// RetrieveImage fetches the artifact and its checksums from the store
// and verifies the download.
func (c *Config) RetrieveImage() error {
	store, err := c.Storage()
	if err != nil {
		return err
	}

	name := c.ImageFile()
	if err := store.Retrieve(name, name+".sha256", name+".sha512"); err != nil {
		return err
	}

	ok, err := storage.VerifyChecksum(c.ImagePath())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("checksum mismatch for %s", c.ImagePath())
	}
	return nil
}

// RemoveImage deletes the artifact, its metadata and all checksums from
// the store.
func (c *Config) RemoveImage() error {
	store, err := c.Storage()
	if err != nil {
		return err
	}

	img, meta := c.ImageFile(), c.MetadataFile()
	return store.Remove(
		img, img+".sha256", img+".sha512",
		meta, meta+".sha256", meta+".sha512",
	)
}

// ImportImage imports the uploaded artifact through the cloud adapter.
func (c *Config) ImportImage(ctx context.Context) error {
	adapter := c.Adapter()
	if adapter == nil {
		return fmt.Errorf("no cloud adapter for %s", c.Cloud)
	}

	id, region, err := adapter.ImportImage(ctx, c)
	if err != nil {
		return err
	}

	c.ImportID = id
	c.ImportRegion = region
	c.Imported = c.timestamp()
	return nil
}

// PublishImage makes the imported image available through the cloud
// adapter and records the resulting region artifacts.
func (c *Config) PublishImage(ctx context.Context) error {
	adapter := c.Adapter()
	if adapter == nil {
		return fmt.Errorf("no cloud adapter for %s", c.Cloud)
	}

	artifacts, err := adapter.PublishImage(ctx, c)
	if err != nil {
		return err
	}

	c.Artifacts = artifacts
	c.Published = c.timestamp()
	return nil
}

// ReleaseImage marks the cell released. Publication to downstream
// channels is driven externally; this records the fact.
func (c *Config) ReleaseImage() {
	c.Released = c.timestamp()
}

// SaveMetadata writes the metadata file (tags + artifacts) with
// checksums, and stores it unless the action is purely local.
func (c *Config) SaveMetadata(action string) error {
	if err := os.MkdirAll(c.LocalDir(), 0o755); err != nil {
		return errors.Wrap("create local image dir", c.LocalDir(), err)
	}

	c.log.Info("Saving image metadata for %s", c.ImageKey)
	c.MetadataUpdated = c.timestamp()

	m := map[string]any{}
	for k, v := range c.Tags() {
		m[k] = v
	}
	if c.Artifacts != nil {
		m["artifacts"] = toAnyMap(c.Artifacts)
	} else {
		m["artifacts"] = nil
	}
	m["metadata_updated"] = c.MetadataUpdated

	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap("serialize metadata", c.ImageKey, err)
	}
	if err := os.WriteFile(c.MetadataPath(), data, 0o644); err != nil {
		return errors.Wrap("write metadata", c.MetadataPath(), err)
	}
	if err := storage.SaveChecksums(c.MetadataPath()); err != nil {
		return err
	}

	if action == "local" {
		return nil
	}

	store, err := c.Storage()
	if err != nil {
		return err
	}
	name := c.MetadataFile()
	return store.Store(name, name+".sha256", name+".sha512")
}

func (c *Config) timestamp() string {
	return c.now().Format(TimeLayout)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
