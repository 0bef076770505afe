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
	"fmt"
	"os"
	"time"

	"github.com/rodaine/table"

	"github.com/mvarela/pargz"
)

// lister implements "-l": a table of per-file summaries built from the
// header-only [pargz.List]; verbose mode narrows the name column from 48
// to 16 characters.
type lister struct {
	path string

	verbose bool
}

var listTable *table.Table

func (l *lister) Run() error {
	var f *os.File
	var err error
	if l.path == "-" {
		f = os.Stdin
	} else {
		f, err = os.Open(l.path)
		if err != nil {
			return fmt.Errorf("%w: opening file: %w", ErrPargz, err)
		}
		defer f.Close()
	}

	e, err := pargz.List(f, l.path)
	if err != nil {
		return fmt.Errorf("%w: listing %q: %w", ErrPargz, l.path, err)
	}

	if listTable == nil {
		listTable = table.New("method", "check", "date/time", "compressed", "uncompressed", "ratio", "name")
	}

	width := 48
	if l.verbose {
		width = 16
	}

	listTable.AddRow(
		e.Method,
		e.Check,
		formatModTime(e.ModTime),
		e.Compressed,
		e.Uncompressed,
		fmt.Sprintf("%.1f%%", e.ReductionPercent()),
		pargz.AbbreviateName(e.Name, width),
	)
	listTable.Print()

	return nil
}

func formatModTime(t time.Time) string {
	return pargz.FormatModTime(t, time.Now())
}
