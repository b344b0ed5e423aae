// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
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
	"runtime/debug"

	"github.com/jrz1977/pgdbfs/cmd"
)

func main() {
	defer recoverAndLogCrash()
	cmd.Execute()
}

// recoverAndLogCrash appends a stack trace to a crash log before re-raising
// the panic, so a daemonized mount (stdout/stderr detached) still leaves a
// trail of why it died.
func recoverAndLogCrash() {
	r := recover()
	if r == nil {
		return
	}

	if path := os.Getenv("PGDBFS_CRASH_LOG"); path != "" {
		w := &cmd.CrashWriter{}
		cmd.SetCrashWriterFile(w, path)
		fmt.Fprintf(w, "panic: %v\n%s\n", r, debug.Stack())
	}

	panic(r)
}
