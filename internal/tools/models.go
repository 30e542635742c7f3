// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Libvmaf model discovery.

package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// DefaultVMAFModel is resolved when no model is configured explicitly.
	DefaultVMAFModel = "vmaf_v0.6.1.json"
	// A list of known locations where various distributions of ffmpeg may
	// put libvmaf models.
	vmafModelLocations = []string{
		"/usr/local/share/model",
		"/usr/share/model",
		"/opt/ffmpeg-static/model",
	}
)

// VMAFModelDirs returns existing model directories. Directories given as
// extraDirs take precedence over the known system locations.
func VMAFModelDirs(extraDirs ...string) []string {
	candidates := make([]string, 0, len(extraDirs)+len(vmafModelLocations))
	candidates = append(candidates, extraDirs...)
	candidates = append(candidates, vmafModelLocations...)

	var dirs []string
	for _, d := range candidates {
		if d == "" {
			continue
		}
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// ListVMAFModels returns model files found in given directories.
func ListVMAFModels(dirs ...string) []string {
	var models []string
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			models = append(models, filepath.Join(d, e.Name()))
		}
	}
	return models
}

// FindVMAFModel resolves a model reference to a model file path. The
// reference is either a path to a model file or a bare model name searched
// for in extraDirs and the known system locations. The .json extension may
// be omitted from a bare name. An empty reference resolves the default
// model.
func FindVMAFModel(nameOrPath string, extraDirs ...string) (string, error) {
	if nameOrPath == "" {
		nameOrPath = DefaultVMAFModel
	}
	if strings.ContainsRune(nameOrPath, os.PathSeparator) {
		if _, err := os.Stat(nameOrPath); err != nil {
			return "", fmt.Errorf("libvmaf model not found: %w", err)
		}
		return nameOrPath, nil
	}

	name := nameOrPath
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	// A bare name may still refer to a file in the working directory.
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	for _, d := range VMAFModelDirs(extraDirs...) {
		p := filepath.Join(d, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	searched := make([]string, 0, len(extraDirs)+len(vmafModelLocations))
	searched = append(searched, extraDirs...)
	searched = append(searched, vmafModelLocations...)
	return "", fmt.Errorf("libvmaf model %s not found in any of %s", name, strings.Join(searched, ", "))
}
