// Copyright 2025 Google LLC
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

package coordinator

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jrz1977/pgdbfs/internal/metastore"
)

// entryTTL is how long the kernel may cache a lookup/mkdir/mknod result
// before revalidating it with us.
const entryTTL = time.Second

// fixedMode is the permission bits every Entry reports, regardless of
// directory-vs-file. Only the type bit (os.ModeDir) varies.
const fixedMode = os.FileMode(0644)

// Blocks computes the 512-byte block count for a file of the given size:
// ceil(size/1024) rounded up to the next multiple of four, doubled.
// attrsFor does not set a block count, so this value is not reported to
// the kernel.
func Blocks(size int64) uint64 {
	if size <= 0 {
		return 0
	}
	units := (size + 1023) / 1024
	rounded := ((units + 3) / 4) * 4
	return uint64(rounded * 2)
}

func (c *Coordinator) attrsFor(e metastore.Entry) fuseops.InodeAttributes {
	mode := fixedMode
	if e.IsDir {
		mode |= os.ModeDir
	}
	return fuseops.InodeAttributes{
		Size:   uint64(e.Size),
		Nlink:  uint64(e.NLink),
		Mode:   mode,
		Atime:  e.UpdateTs,
		Mtime:  e.UpdateTs,
		Ctime:  e.UpdateTs,
		Crtime: e.CreateTs,
		Uid:    c.uid,
		Gid:    c.gid,
	}
}
