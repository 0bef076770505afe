// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"
	"path/filepath"
	"strings"
)

// decodeSuffixes lists the suffixes whose presence lets the decompress
// path recover an output name by stripping it. ".gz" is checked first
// since it is by far the common case.
var decodeSuffixes = []string{".gz", "-gz", ".zz", "-zz", ".z", "-z", "_z", ".Z", ".zip", ".ZIP"}

// stripSuffix removes a recognized compressed-file suffix from path, or
// reports ok=false if path carries none of them.
func stripSuffix(path string) (stripped string, ok bool) {
	for _, sfx := range decodeSuffixes {
		if strings.HasSuffix(path, sfx) {
			return strings.TrimSuffix(path, sfx), true
		}
	}
	return path, false
}

// expandRecursive walks each directory in paths, replacing it with the
// regular files found beneath it; plain file paths pass through
// unchanged. This backs the "-r" directory-tree mode.
func expandRecursive(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.Walk(p, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
