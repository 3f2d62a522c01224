// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
)

// Invalid describes a file that failed validation.
type Invalid struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// DirectoryResult summarizes validation of every definition in a directory.
type DirectoryResult struct {
	// Valid lists the files that passed.
	Valid []string `json:"valid"`
	// Invalid lists the files that failed, with their errors.
	Invalid []Invalid `json:"invalid"`
	// Total is the number of files examined.
	Total int `json:"total"`
}

// ValidateBytes decodes data as a JSON object and validates it.
func ValidateBytes(data []byte, kind Kind) Result {
	var def map[string]any
	if err := json.Unmarshal(data, &def); err != nil {
		return Result{Error: fmt.Sprintf("Invalid JSON: %v", err)}
	}
	return Validate(def, kind)
}

// ValidateFile reads name from fsys and validates it. The returned Result
// always has File set to name.
func ValidateFile(fsys fs.FS, name string, kind Kind) Result {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return Result{File: name, Error: fmt.Sprintf("Failed to read file: %v", err)}
	}
	res := ValidateBytes(data, kind)
	res.File = name
	return res
}

// ValidateDirectory validates every *.json file directly inside dir, in
// lexical order. Per-file failures are collected, never returned; a missing
// directory yields an empty result.
func ValidateDirectory(fsys fs.FS, dir string, kind Kind) DirectoryResult {
	res := DirectoryResult{Valid: []string{}, Invalid: []Invalid{}}
	files, err := JSONFiles(fsys, dir)
	if err != nil {
		res.Invalid = append(res.Invalid, Invalid{File: dir, Error: fmt.Sprintf("Failed to read directory: %v", err)})
		return res
	}
	for _, f := range files {
		res.Total++
		r := ValidateFile(fsys, f, kind)
		if r.Valid {
			res.Valid = append(res.Valid, f)
			continue
		}
		res.Invalid = append(res.Invalid, Invalid{File: f, Error: r.Error})
	}
	return res
}

// JSONFiles returns the *.json files directly inside dir, sorted. A missing
// directory is not an error.
func JSONFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, path.Join(dir, e.Name()))
	}
	return files, nil
}
