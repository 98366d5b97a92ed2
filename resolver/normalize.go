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
	"fmt"
	"sort"
	"strings"
)

// Normalize compiles a cell's authoring-friendly nested fields into the
// exact flat strings the downstream build tool consumes. Order-sensitive
// mapping fields (motd, repos, packages) are emitted in the authoring
// order recorded by the spec parse; keys the order never saw sort last,
// keeping the output deterministic either way.
func Normalize(f Fragment, order KeyOrder) error {
	joinList(f, "name", "-")
	joinList(f, "description", " ")
	joinList(f, "repo_keys", " ")

	if err := resolveMOTD(f, order); err != nil {
		return err
	}
	if err := resolveURLs(f); err != nil {
		return err
	}
	if err := stringifyRepos(f, order); err != nil {
		return err
	}
	stringifyPackages(f, order)
	stringifyServices(f)
	stringifyBoolKeys(f, "kernel_modules", ",")
	stringifyBoolKeys(f, "kernel_options", " ")
	stringifyBoolKeys(f, "initfs_features", " ")

	return nil
}

// VVersion is the version as it appears in mirror paths: "v3.18" for
// numbered versions, "edge" verbatim.
func VVersion(version string) string {
	if version == "edge" {
		return "edge"
	}
	return "v" + version
}

func joinList(f Fragment, key, sep string) {
	raw, ok := f[key].([]any)
	if !ok {
		return
	}

	parts := make([]string, len(raw))
	for i, v := range raw {
		parts[i] = fmt.Sprint(v)
	}
	f[key] = strings.Join(parts, sep)
}

// resolveMOTD drops null sections (and release_notes when the cell has
// none), joins list values with newlines and sections with blank lines,
// then interpolates the result against the cell's own fields.
func resolveMOTD(f Fragment, order KeyOrder) error {
	raw, ok := f["motd"].(map[string]any)
	if !ok {
		return nil
	}

	if notes, _ := f["release_notes"].(string); notes == "" {
		delete(raw, "release_notes")
	}

	var parts []string
	for _, section := range order.orderedKeys("motd", raw) {
		v := raw[section]
		if v == nil {
			continue
		}

		if list, ok := v.([]any); ok {
			lines := make([]string, len(list))
			for i, l := range list {
				lines[i] = fmt.Sprint(l)
			}
			parts = append(parts, strings.Join(lines, "\n"))
			continue
		}

		parts = append(parts, fmt.Sprint(v))
	}

	motd, err := Interpolate(strings.Join(parts, "\n\n"), ScalarVars(f))
	if err != nil {
		return err
	}
	f["motd"] = motd

	return nil
}

func resolveURLs(f Fragment) error {
	vars := ScalarVars(f)
	if version, ok := f["version"].(string); ok {
		vars["v_version"] = VVersion(version)
	}

	for _, key := range []string{"storage_url", "download_url"} {
		tmpl, ok := f[key].(string)
		if !ok {
			continue
		}

		resolved, err := Interpolate(tmpl, vars)
		if err != nil {
			return err
		}
		f[key] = resolved
	}

	return nil
}

// stringifyRepos flattens the repos map into the build tool's repository
// list format, one line per non-null entry:
//
//	<repo>: <tag>   ->  @<tag> <repo>
//	<repo>: false   ->  #<repo>
//	<repo>: true    ->  <repo>
//	<repo>: null    ->  (skipped)
//
// then interpolates {version}.
func stringifyRepos(f Fragment, order KeyOrder) error {
	raw, ok := f["repos"].(map[string]any)
	if !ok {
		return nil
	}

	var lines []string
	for _, repo := range order.orderedKeys("repos", raw) {
		switch v := raw[repo].(type) {
		case string:
			lines = append(lines, "@"+v+" "+repo)
		case bool:
			if v {
				lines = append(lines, repo)
			} else {
				lines = append(lines, "#"+repo)
			}
		}
	}

	version, _ := f["version"].(string)
	repos, err := Interpolate(strings.Join(lines, "\n"), map[string]string{"version": version})
	if err != nil {
		return err
	}
	f["repos"] = repos

	return nil
}

// stringifyPackages splits the packages map into space-joined add, del and
// noscripts lists:
//
//	<pkg>: true                 add <pkg>
//	<pkg>: <tag>                add <pkg>@<tag>
//	<pkg>: --no-scripts         noscripts <pkg>
//	<pkg>: --no-scripts <tag>   noscripts <pkg>@<tag>
//	<pkg>: false                del <pkg>
//	<pkg>: null                 (skipped)
func stringifyPackages(f Fragment, order KeyOrder) {
	raw, ok := f["packages"].(map[string]any)
	if !ok {
		return
	}

	pkgs := map[string]string{"add": "", "del": "", "noscripts": ""}
	for _, pkg := range order.orderedKeys("packages", raw) {
		entry := pkg
		kind := "add"

		switch v := raw[pkg].(type) {
		case string:
			if strings.Contains(v, "--no-scripts") {
				kind = "noscripts"
				v = strings.Replace(v, "--no-scripts", "", 1)
			}
			if v = strings.TrimSpace(v); v != "" {
				entry += "@" + v
			}
		case bool:
			if !v {
				kind = "del"
			}
		default:
			continue
		}

		if pkgs[kind] == "" {
			pkgs[kind] = entry
		} else {
			pkgs[kind] += " " + entry
		}
	}

	f["packages"] = map[string]any{
		"add":       pkgs["add"],
		"del":       pkgs["del"],
		"noscripts": pkgs["noscripts"],
	}
}

// stringifyServices flattens the per-runlevel service map into "enable"
// and "disable" strings of <level>=<svc>,<svc> entries. Levels with no
// matching services are dropped from that string.
func stringifyServices(f Fragment) {
	raw, ok := f["services"].(map[string]any)
	if !ok {
		return
	}

	pick := func(want bool) string {
		var entries []string
		for _, level := range sortedKeys(raw) {
			svcs, ok := raw[level].(map[string]any)
			if !ok {
				continue
			}

			var names []string
			for _, svc := range sortedKeys(svcs) {
				if v, ok := svcs[svc].(bool); ok && v == want {
					names = append(names, svc)
				}
			}
			if len(names) > 0 {
				entries = append(entries, level+"="+strings.Join(names, ","))
			}
		}
		return strings.Join(entries, " ")
	}

	f["services"] = map[string]any{
		"enable":  pick(true),
		"disable": pick(false),
	}
}

// stringifyBoolKeys joins the keys with true values using sep.
func stringifyBoolKeys(f Fragment, key, sep string) {
	raw, ok := f[key].(map[string]any)
	if !ok {
		return
	}

	var names []string
	for _, name := range sortedKeys(raw) {
		if v, ok := raw[name].(bool); ok && v {
			names = append(names, name)
		}
	}
	f[key] = strings.Join(names, sep)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
