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

// Command pargz is a parallel, streaming gzip/zlib/zip compressor and
// decompressor, with read-only support for the legacy Unix LZW (.Z)
// format.
package main

import "os"

func main() {
	app := newApp()
	if err := app.Run(envArgs(os.Args)); err != nil {
		os.Exit(ExitCodeUnknownError)
	}
}
