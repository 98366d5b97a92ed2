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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullAdapter() *fakeAdapter {
	return &fakeAdapter{actions: []string{"import", "publish"}}
}

func TestIsStepOrEarlier(t *testing.T) {
	tests := []struct {
		s, step  string
		expected bool
	}{
		{"local", "local", true},
		{"upload", "local", false},
		{"release", "local", false},
		{"local", "release", true},
		{"publish", "release", true},
		{"upload", "import", true},
		{"import", "upload", false},
		{"local", StepState, true},
		{"release", StepState, true},
		{"local", StepFinal, false},
		{"local", StepRollback, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, isStepOrEarlier(tt.s, tt.step), "%s vs %s", tt.s, tt.step)
	}
}

func TestRefreshStateLocalTarget(t *testing.T) {
	c, _ := testConfig(t, Registry{"aws": fullAdapter()})

	require.NoError(t, c.RefreshState(context.Background(), "local", false))

	// local never drags later steps in
	assert.Equal(t, []string{"local"}, c.Actions)
	assert.NotEmpty(t, c.StateUpdated)
}

func TestRefreshStateUploadTarget(t *testing.T) {
	c, _ := testConfig(t, Registry{"aws": fullAdapter()})

	require.NoError(t, c.RefreshState(context.Background(), "upload", false))
	assert.Equal(t, []string{"local", "upload"}, c.Actions)
}

func TestRefreshStateSkipsCompletedSteps(t *testing.T) {
	c, _ := testConfig(t, Registry{"aws": fullAdapter()})
	c.Built = "2024-06-01T00:00:00"
	c.Uploaded = "2024-06-01T01:00:00"

	require.NoError(t, c.RefreshState(context.Background(), "release", false))
	assert.Equal(t, []string{"import", "publish", "release"}, c.Actions)
}

func TestRefreshStateCapabilityGaps(t *testing.T) {
	// provider can import but not publish
	c, _ := testConfig(t, Registry{"aws": &fakeAdapter{actions: []string{"import"}}})
	c.Built = "2024-06-01T00:00:00"

	require.NoError(t, c.RefreshState(context.Background(), "release", false))
	assert.Equal(t, []string{"upload", "import", "release"}, c.Actions)
}

func TestRefreshStateNoAdapter(t *testing.T) {
	// a cloud with no adapter has no import or publish capability
	c, _ := testConfig(t, nil)

	require.NoError(t, c.RefreshState(context.Background(), "release", false))
	assert.Equal(t, []string{"local", "upload", "release"}, c.Actions)
}

func TestRefreshStateRepublish(t *testing.T) {
	adapter := fullAdapter()
	c, _ := testConfig(t, Registry{"aws": adapter})
	c.Built = "2024-06-01T00:00:00"
	c.Uploaded = "2024-06-01T01:00:00"
	c.Imported = "2024-06-01T02:00:00"
	c.Published = "2024-06-01T03:00:00"

	// an explicit publish target re-publishes to pick up new regions
	require.NoError(t, c.RefreshState(context.Background(), "publish", false))
	assert.Equal(t, []string{"publish"}, c.Actions)

	// but a release target treats publish as done
	require.NoError(t, c.RefreshState(context.Background(), "release", false))
	assert.Equal(t, []string{"release"}, c.Actions)
}

func TestRefreshStateRollback(t *testing.T) {
	adapter := fullAdapter()
	c, _ := testConfig(t, Registry{"aws": adapter})
	c.Built = "2024-06-01T00:00:00"
	c.Uploaded = "2024-06-01T01:00:00"
	c.Imported = "2024-06-01T02:00:00"
	c.ImportID = "ami-dead"
	c.ImportRegion = "us-west-2"
	require.NoError(t, os.MkdirAll(c.LocalDir(), 0o755))

	require.NoError(t, c.RefreshState(context.Background(), StepRollback, false))

	assert.Equal(t, []string{"ami-dead"}, adapter.deleted)
	assert.Equal(t, "", c.Built)
	assert.Equal(t, "", c.Uploaded)
	assert.Equal(t, "", c.Imported)
	assert.Equal(t, "", c.ImportID)
	assert.Equal(t, "", c.ImportRegion)
	assert.NoDirExists(t, c.LocalDir())
	assert.Empty(t, c.Actions)
}

func TestRefreshStateRollbackBlockedWhenPublished(t *testing.T) {
	adapter := fullAdapter()
	c, _ := testConfig(t, Registry{"aws": adapter})
	c.Built = "2024-06-01T00:00:00"
	c.Uploaded = "2024-06-01T01:00:00"
	c.Imported = "2024-06-01T02:00:00"
	c.ImportID = "ami-live"
	c.Published = "2024-06-01T03:00:00"
	require.NoError(t, os.MkdirAll(c.LocalDir(), 0o755))

	require.NoError(t, c.RefreshState(context.Background(), StepRollback, false))

	// past the publish boundary nothing is undone
	assert.Empty(t, adapter.deleted)
	assert.Equal(t, "2024-06-01T00:00:00", c.Built)
	assert.Equal(t, "2024-06-01T02:00:00", c.Imported)
	assert.Equal(t, "ami-live", c.ImportID)
	assert.DirExists(t, c.LocalDir())
}

func TestRefreshStateRevisePublished(t *testing.T) {
	c, storeDir := testConfig(t, Registry{"aws": fullAdapter()})

	meta := `revision: 1
built: "2024-06-01T00:00:00"
uploaded: "2024-06-01T01:00:00"
imported: "2024-06-01T02:00:00"
import_id: ami-old
import_region: us-west-2
published: "2024-06-01T03:00:00"
released: "2024-06-01T04:00:00"
artifacts:
  us-west-2: ami-old
`
	require.NoError(t, os.WriteFile(filepath.Join(storeDir, "alpine-3.18.6-x86_64-r1.yaml"), []byte(meta), 0o644))

	require.NoError(t, c.RefreshState(context.Background(), StepState, true))

	assert.Equal(t, 2, c.Revision)
	assert.Equal(t, "", c.Built)
	assert.Equal(t, "", c.Uploaded)
	assert.Equal(t, "", c.Imported)
	assert.Equal(t, "", c.ImportID)
	assert.Equal(t, "", c.ImportRegion)
	assert.Equal(t, "", c.Published)
	assert.Equal(t, "", c.Released)
	assert.Nil(t, c.Artifacts)

	// the bumped revision starts from the top
	assert.Equal(t, []string{"local", "upload", "import", "publish", "release"}, c.Actions)
}

func TestRefreshStateReviseIgnoresUnpublished(t *testing.T) {
	c, _ := testConfig(t, Registry{"aws": fullAdapter()})
	c.Built = "2024-06-01T00:00:00"

	require.NoError(t, c.RefreshState(context.Background(), StepState, true))

	// a cell that never published is not revised
	assert.Equal(t, 0, c.Revision)
	assert.Equal(t, "2024-06-01T00:00:00", c.Built)
	assert.NotContains(t, c.Actions, "local")
}

func TestLoadMetadataNewCell(t *testing.T) {
	c, _ := testConfig(t, Registry{"aws": fullAdapter()})
	c.Revision = 7

	require.NoError(t, c.LoadMetadata(StepState))
	assert.Equal(t, 0, c.Revision)
}

func TestLoadMetadataDiscoversLatestRevision(t *testing.T) {
	c, storeDir := testConfig(t, Registry{"aws": fullAdapter()})

	meta := "revision: 3\nbuilt: \"2024-05-30T00:00:00\"\nuploaded: \"2024-05-30T01:00:00\"\nname: stored-name\n"
	require.NoError(t, os.WriteFile(filepath.Join(storeDir, "alpine-3.18.6-x86_64-r1.yaml"), []byte("revision: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(storeDir, "alpine-3.18.6-x86_64-r3.yaml"), []byte(meta), 0o644))

	require.NoError(t, c.LoadMetadata(StepState))

	assert.Equal(t, 3, c.Revision)
	assert.Equal(t, "2024-05-30T00:00:00", c.Built)
	assert.Equal(t, "2024-05-30T01:00:00", c.Uploaded)

	// the stored name never clobbers the authoring template
	assert.Equal(t, "alpine-{release}-{arch}-r{revision}", c.Name)

	// the metadata file was pulled into the staging area
	assert.FileExists(t, c.MetadataPath())
}

func TestLoadMetadataFinalSkipsRemote(t *testing.T) {
	c, storeDir := testConfig(t, Registry{"aws": fullAdapter()})

	require.NoError(t, os.WriteFile(filepath.Join(storeDir, "alpine-3.18.6-x86_64-r5.yaml"), []byte("revision: 5\n"), 0o644))

	require.NoError(t, c.LoadMetadata(StepFinal))

	// local state is authoritative at the end of a run
	assert.Equal(t, 0, c.Revision)
	assert.NoFileExists(t, c.MetadataPath())
}

func TestConvertImageQcow2(t *testing.T) {
	c, _ := testConfig(t, Registry{"aws": fullAdapter()})
	require.NoError(t, os.MkdirAll(c.LocalDir(), 0o755))
	require.NoError(t, os.WriteFile(c.LocalImage(), []byte("fake qcow2 payload"), 0o644))

	require.NoError(t, c.ConvertImage(context.Background()))

	assert.FileExists(t, c.ImagePath())
	assert.FileExists(t, c.ImagePath()+".sha256")
	assert.FileExists(t, c.ImagePath()+".sha512")
	assert.Equal(t, "2024-06-01T12:00:00", c.Built)
}

func TestConvertImageUnsupportedFormat(t *testing.T) {
	c, _ := testConfig(t, Registry{"aws": fullAdapter()})
	c.ImageFormat = "vmdk"

	err := c.ConvertImage(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "vmdk")
}

func TestUploadRetrieveRemoveImage(t *testing.T) {
	c, storeDir := testConfig(t, Registry{"aws": fullAdapter()})
	require.NoError(t, os.MkdirAll(c.LocalDir(), 0o755))
	require.NoError(t, os.WriteFile(c.LocalImage(), []byte("fake qcow2 payload"), 0o644))
	require.NoError(t, c.ConvertImage(context.Background()))

	require.NoError(t, c.UploadImage())
	assert.Equal(t, "2024-06-01T12:00:00", c.Uploaded)
	assert.FileExists(t, filepath.Join(storeDir, c.ImageFile()))
	assert.FileExists(t, filepath.Join(storeDir, c.ImageFile()+".sha512"))

	// retrieval re-downloads and verifies against the stored sum
	require.NoError(t, os.Remove(c.ImagePath()))
	require.NoError(t, c.RetrieveImage())
	assert.FileExists(t, c.ImagePath())

	require.NoError(t, c.RemoveImage())
	assert.NoFileExists(t, filepath.Join(storeDir, c.ImageFile()))
}

func TestImportAndPublishImage(t *testing.T) {
	adapter := fullAdapter()
	c, _ := testConfig(t, Registry{"aws": adapter})

	require.NoError(t, c.ImportImage(context.Background()))
	assert.Equal(t, 1, adapter.imports)
	assert.Equal(t, "ami-0123456789", c.ImportID)
	assert.Equal(t, "us-west-2", c.ImportRegion)
	assert.Equal(t, "2024-06-01T12:00:00", c.Imported)

	require.NoError(t, c.PublishImage(context.Background()))
	assert.Equal(t, 1, adapter.publishes)
	assert.Equal(t, map[string]string{"us-west-2": "ami-0123456789"}, c.Artifacts)
	assert.Equal(t, "2024-06-01T12:00:00", c.Published)

	c.ReleaseImage()
	assert.Equal(t, "2024-06-01T12:00:00", c.Released)
}

func TestImportImageNoAdapter(t *testing.T) {
	c, _ := testConfig(t, nil)

	err := c.ImportImage(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "no cloud adapter")
}

func TestSaveMetadata(t *testing.T) {
	c, storeDir := testConfig(t, Registry{"aws": fullAdapter()})
	c.Built = "2024-06-01T00:00:00"
	c.Artifacts = map[string]string{"us-west-2": "ami-1"}

	require.NoError(t, c.SaveMetadata("upload"))

	assert.FileExists(t, c.MetadataPath())
	assert.FileExists(t, c.MetadataPath()+".sha256")
	assert.FileExists(t, filepath.Join(storeDir, c.MetadataFile()))
	assert.Equal(t, "2024-06-01T12:00:00", c.MetadataUpdated)
}

func TestSaveMetadataLocalStaysLocal(t *testing.T) {
	c, storeDir := testConfig(t, Registry{"aws": fullAdapter()})

	require.NoError(t, c.SaveMetadata("local"))

	assert.FileExists(t, c.MetadataPath())
	assert.NoFileExists(t, filepath.Join(storeDir, c.MetadataFile()))
}
