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

package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/skyforge/release"
)

func testVersions() *release.StaticResolver {
	return &release.StaticResolver{
		Versions: map[string]release.Info{
			"318":  {Release: "3.18", EndOfLife: "9999-12-31"},
			"3.18": {Release: "3.18.6", EndOfLife: "9999-12-31", Notes: "https://example.com/notes/3.18"},
			"3.19": {Release: "3.19.1", EndOfLife: "9999-12-31"},
			"3.12": {Release: "3.12.12", EndOfLife: "2022-05-01"},
		},
		InstallerTemplate: "https://mirror.test/installer-{arch}.iso",
	}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	now, err := time.Parse("2006-01-02", "2024-06-01")
	require.NoError(t, err)
	return NewEngine(testVersions(), now, nil)
}

func mustParse(t *testing.T, doc string) *Spec {
	t.Helper()
	spec, err := ParseSpec([]byte(doc))
	require.NoError(t, err)
	return spec
}

func TestResolveEndToEnd(t *testing.T) {
	spec := mustParse(t, `
Dimensions:
  version:
    "318":
  arch:
    x86_64:
  cloud:
    nocloud:
`)

	result, err := testEngine(t).Resolve(spec)
	require.NoError(t, err)

	require.Equal(t, []string{"318-x86_64-nocloud"}, result.Keys)

	cfg := result.Configs["318-x86_64-nocloud"]
	require.NotNil(t, cfg)
	assert.Equal(t, "3.18-x86_64-nocloud", cfg["image_key"])
	assert.Equal(t, "318", cfg["version"])
	assert.Equal(t, "3.18", cfg["release"])
	assert.Equal(t, "x86_64", cfg["arch"])
	assert.Equal(t, "nocloud", cfg["cloud"])
}

func TestResolveDeterministic(t *testing.T) {
	doc := `
project: testproj
Default:
  firmware_name: BIOS
Dimensions:
  version:
    "3.18":
    "3.19":
  arch:
    x86_64:
    aarch64:
  cloud:
    aws:
    nocloud:
Mandatory:
  encrypted: false
`

	first, err := testEngine(t).Resolve(mustParse(t, doc))
	require.NoError(t, err)
	second, err := testEngine(t).Resolve(mustParse(t, doc))
	require.NoError(t, err)

	require.Equal(t, first.Keys, second.Keys)
	assert.Len(t, first.Keys, 8)
	for _, key := range first.Keys {
		assert.Equal(t, first.Configs[key], second.Configs[key], key)
	}
}

func TestResolveEnumerationOrder(t *testing.T) {
	spec := mustParse(t, `
Dimensions:
  version:
    "3.18":
    "3.19":
  cloud:
    aws:
    nocloud:
`)

	result, err := testEngine(t).Resolve(spec)
	require.NoError(t, err)

	// rightmost dimension varies fastest
	assert.Equal(t, []string{
		"3.18-aws", "3.18-nocloud",
		"3.19-aws", "3.19-nocloud",
	}, result.Keys)
}

func TestResolveExclude(t *testing.T) {
	spec := mustParse(t, `
Dimensions:
  version:
    "3.18":
  arch:
    x86_64:
    aarch64:
  cloud:
    aws:
    nocloud:
      EXCLUDE:
        - aarch64
`)

	result, err := testEngine(t).Resolve(spec)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"3.18-x86_64-aws", "3.18-x86_64-nocloud",
		"3.18-aarch64-aws",
	}, result.Keys)
	assert.NotContains(t, result.Configs, "3.18-aarch64-nocloud")

	// the EXCLUDE operator never leaks into resolved output
	for key, cfg := range result.Configs {
		assert.NotContains(t, cfg, "EXCLUDE", key)
	}
}

func TestResolveEndOfLifePruning(t *testing.T) {
	spec := mustParse(t, `
Dimensions:
  version:
    "3.12":
    "3.18":
  cloud:
    nocloud:
`)

	result, err := testEngine(t).Resolve(spec)
	require.NoError(t, err)

	// 3.12 passed end-of-life before the engine's reference instant
	assert.Equal(t, []string{"3.18-nocloud"}, result.Keys)
}

func TestResolveWhenOrWithinTokenList(t *testing.T) {
	doc := `
Default:
  WHEN:
    aws nocloud:
      tagged: yes-it-is
Dimensions:
  version:
    "3.18":
  cloud:
    aws:
    nocloud:
    oci:
`

	result, err := testEngine(t).Resolve(mustParse(t, doc))
	require.NoError(t, err)

	assert.Equal(t, "yes-it-is", result.Configs["3.18-aws"]["tagged"])
	assert.Equal(t, "yes-it-is", result.Configs["3.18-nocloud"]["tagged"])
	assert.NotContains(t, result.Configs["3.18-oci"], "tagged")

	for key, cfg := range result.Configs {
		assert.NotContains(t, cfg, "WHEN", key)
	}
}

func TestResolveWhenNestedAnd(t *testing.T) {
	doc := `
Default:
  WHEN:
    aws:
      WHEN:
        aarch64:
          both: present
Dimensions:
  version:
    "3.18":
  arch:
    x86_64:
    aarch64:
  cloud:
    aws:
    nocloud:
`

	result, err := testEngine(t).Resolve(mustParse(t, doc))
	require.NoError(t, err)

	assert.Equal(t, "present", result.Configs["3.18-aarch64-aws"]["both"])
	assert.NotContains(t, result.Configs["3.18-x86_64-aws"], "both")
	assert.NotContains(t, result.Configs["3.18-aarch64-nocloud"], "both")
	assert.NotContains(t, result.Configs["3.18-x86_64-nocloud"], "both")
}

func TestResolveWhenDepthLimit(t *testing.T) {
	// re-arm WHEN each pass by nesting beyond the depth bound
	merged := Fragment{}
	deep := map[string]any{"leaf": true}
	for i := 0; i < maxWhenDepth+2; i++ {
		deep = map[string]any{"WHEN": map[string]any{"a": deep}}
	}
	merged["WHEN"] = deep["WHEN"]

	err := resolveWhen(merged, map[string]bool{"a": true}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "depth limit")
}

func TestResolveWhenAuthoringOrder(t *testing.T) {
	doc := `
Default:
  WHEN:
    nocloud aws:
      flavor: generic
    aws:
      flavor: aws-tuned
Dimensions:
  version:
    "3.18":
  cloud:
    aws:
`

	result, err := testEngine(t).Resolve(mustParse(t, doc))
	require.NoError(t, err)

	// both token lists match the aws cell; the later-authored entry wins
	// the tie, as sorted evaluation would reverse it
	assert.Equal(t, "aws-tuned", result.Configs["3.18-aws"]["flavor"])
}

func TestResolveAuthoringOrder(t *testing.T) {
	doc := `
Default:
  motd:
    welcome: Welcome to {release}!
    release_notes: "Release notes: {release_notes}"
  repos:
    "https://mirror.test/{version}/main": true
    "https://mirror.test/{version}/community": edge
  packages:
    vim: true
    curl: true
Dimensions:
  version:
    "3.18":
  cloud:
    nocloud:
`

	result, err := testEngine(t).Resolve(mustParse(t, doc))
	require.NoError(t, err)
	cfg := result.Configs["3.18-nocloud"]
	require.NotNil(t, cfg)

	// sections come out as authored, welcome before release notes
	assert.Equal(t,
		"Welcome to 3.18.6!\n\nRelease notes: https://example.com/notes/3.18",
		cfg["motd"])

	assert.Equal(t,
		"https://mirror.test/3.18/main\n@edge https://mirror.test/3.18/community",
		cfg["repos"])

	pkgs, ok := cfg["packages"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "vim curl", pkgs["add"])
}

func TestResolveInstallerURL(t *testing.T) {
	spec := mustParse(t, `
Default:
  qemu:
    machine_type: q35
Dimensions:
  version:
    "3.18":
  arch:
    aarch64:
  cloud:
    nocloud:
`)

	result, err := testEngine(t).Resolve(spec)
	require.NoError(t, err)

	qemu, ok := result.Configs["3.18-aarch64-nocloud"]["qemu"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://mirror.test/installer-aarch64.iso", qemu["iso_url"])
	assert.Equal(t, "q35", qemu["machine_type"])
}

func TestResolveMergePrecedence(t *testing.T) {
	doc := `
Default:
  description:
    - base
  encrypted: true
  qemu:
    firmware: bios
Dimensions:
  version:
    "3.18":
  arch:
    x86_64:
      qemu:
        arch_tuning: kvm
  cloud:
    nocloud:
      encrypted: false
Mandatory:
  builder: qemu
`

	result, err := testEngine(t).Resolve(mustParse(t, doc))
	require.NoError(t, err)

	cfg := result.Configs["3.18-x86_64-nocloud"]
	require.NotNil(t, cfg)

	// later fragments replace scalars, nested maps merge key by key
	assert.Equal(t, false, cfg["encrypted"])
	assert.Equal(t, "qemu", cfg["builder"])
	qemu, ok := cfg["qemu"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bios", qemu["firmware"])
	assert.Equal(t, "kvm", qemu["arch_tuning"])
}

func TestResolveVersionInjection(t *testing.T) {
	spec := mustParse(t, `
Dimensions:
  version:
    "3.18":
  cloud:
    nocloud:
`)

	result, err := testEngine(t).Resolve(spec)
	require.NoError(t, err)

	cfg := result.Configs["3.18-nocloud"]
	assert.Equal(t, "3.18.6", cfg["release"])
	assert.Equal(t, "9999-12-31", cfg["end_of_life"])
	assert.Equal(t, "https://example.com/notes/3.18", cfg["release_notes"])
	assert.Equal(t, "3.18.6-nocloud", cfg["image_key"])
}

func TestResolveUnknownVersion(t *testing.T) {
	spec := mustParse(t, `
Dimensions:
  version:
    "9.99":
  cloud:
    nocloud:
`)

	_, err := testEngine(t).Resolve(spec)
	require.Error(t, err)
	assert.ErrorContains(t, err, "9.99")
}

func TestDequote(t *testing.T) {
	assert.Equal(t, "3.18", Dequote(`"3.18"`))
	assert.Equal(t, "edge", Dequote("edge"))
	assert.Equal(t, "3.18", Dequote("3.18"))
}

func TestParseSpecErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty document", doc: ""},
		{name: "not a mapping", doc: "- a\n- b\n"},
		{name: "no dimensions", doc: "Default:\n  x: 1\n"},
		{name: "dimension not a mapping", doc: "Dimensions:\n  version:\n    - a\n"},
		{name: "dimension with no keys", doc: "Dimensions:\n  arch:\n    x86_64:\n  cloud: {}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSpec([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseSpecEmptyDimension(t *testing.T) {
	_, err := ParseSpec([]byte("Dimensions:\n  arch:\n    x86_64:\n  cloud: {}\n"))
	require.Error(t, err)
	assert.ErrorContains(t, err, `dimension "cloud" has no keys`)
}

func TestParseSpecOrderPreserved(t *testing.T) {
	spec := mustParse(t, `
project: ordered
Dimensions:
  version:
    "3.19":
    "3.18":
    edge:
  cloud:
    nocloud:
`)

	assert.Equal(t, "ordered", spec.Project)
	require.Len(t, spec.Dimensions, 2)

	dim := spec.Dimension("version")
	require.NotNil(t, dim)
	names := make([]string, len(dim.Keys))
	for i, k := range dim.Keys {
		names[i] = k.Name
	}
	assert.Equal(t, []string{"3.19", "3.18", "edge"}, names)

	assert.Nil(t, spec.Dimension("missing"))
	assert.NotNil(t, dim.Key("edge"))
	assert.Nil(t, dim.Key("missing"))
}
