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

// Package registry is the Cache Registry: it maps a (mount, inode) key to
// the Segment Cache currently serving that open.
//
// jacobsa/fuse dispatches each kernel op on its own goroutine, so unlike
// the single-threaded event loop the reference model assumes, this
// registry must actually serialize access. It does so with one
// syncutil.InvariantMutex, the same way the teacher's fileSystem serializes
// its inode table and re-checks its invariants on every unlock.
package registry

import (
	"fmt"

	"github.com/jacobsa/syncutil"
	"github.com/jrz1977/pgdbfs/internal/metastore"
	"github.com/jrz1977/pgdbfs/internal/segcache"
)

// Registry is the Cache Registry.
type Registry struct {
	// GUARDED_BY(mu)
	mu syncutil.InvariantMutex
	// GUARDED_BY(mu)
	caches map[string]*segcache.Cache

	ms *metastore.Store
}

// New constructs an empty Cache Registry.
func New(ms *metastore.Store) *Registry {
	r := &Registry{
		caches: make(map[string]*segcache.Cache),
		ms:     ms,
	}
	r.mu = syncutil.NewInvariantMutex(r.checkInvariants)
	return r
}

// checkInvariants panics if caches is left nil, which would make every
// subsequent lookup panic instead of reporting a clean miss. Run by
// syncutil.InvariantMutex on every Unlock.
//
// INVARIANT: caches != nil
func (r *Registry) checkInvariants() {
	if r.caches == nil {
		panic("registry: caches is nil")
	}
}

// makeKey joins mount and inode the way the reference implementation's own
// make_key does: mount, a hyphen, then the inode.
func makeKey(mount string, inode int64) string {
	return fmt.Sprintf("%s-%d", mount, inode)
}

// Init idempotently creates an empty Segment Cache entry for (mount, inode).
func (r *Registry) Init(mount string, inode, fileID int64, flags uint32, segmentLen int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := makeKey(mount, inode)
	if _, ok := r.caches[key]; ok {
		return
	}
	r.caches[key] = segcache.New(r.ms, fileID, segmentLen, flags)
}

// GetOrLoad returns the Segment Cache for (mount, inode), creating one from
// the Metadata Store's record if none is registered yet. ok is false only
// if the inode does not exist.
func (r *Registry) GetOrLoad(mount string, inode int64, flags uint32) (*segcache.Cache, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := makeKey(mount, inode)
	if c, ok := r.caches[key]; ok {
		return c, true, nil
	}

	entry, ok, err := r.ms.LookupByInode(mount, inode)
	if err != nil {
		return nil, false, fmt.Errorf("get_or_load mount=%s inode=%d: %w", mount, inode, err)
	}
	if !ok {
		return nil, false, nil
	}

	c := segcache.New(r.ms, entry.ID, entry.SegmentLen, flags)
	r.caches[key] = c
	return c, true, nil
}

// Get returns the Segment Cache for (mount, inode) without creating one.
func (r *Registry) Get(mount string, inode int64) (*segcache.Cache, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caches[makeKey(mount, inode)]
	return c, ok
}

// Remove evicts and returns the Segment Cache for (mount, inode), if any.
func (r *Registry) Remove(mount string, inode int64) (*segcache.Cache, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := makeKey(mount, inode)
	c, ok := r.caches[key]
	if ok {
		delete(r.caches, key)
	}
	return c, ok
}
