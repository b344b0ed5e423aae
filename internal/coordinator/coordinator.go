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

// Package coordinator implements the Filesystem Coordinator: the kernel
// operation set, speaking fuseutil.FileSystem on one side and the Metadata
// Store / Cache Registry on the other. Each operation runs to completion
// and emits exactly one reply, per the jacobsa/fuse contract.
package coordinator

import (
	"fmt"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jrz1977/pgdbfs/internal/fserrors"
	"github.com/jrz1977/pgdbfs/internal/logger"
	"github.com/jrz1977/pgdbfs/internal/metastore"
	"github.com/jrz1977/pgdbfs/internal/metrics"
	"github.com/jrz1977/pgdbfs/internal/registry"
)

// Coordinator is the single Filesystem Coordinator for one mount. The
// process owns exactly one of these per mount, constructed once in
// cmd/mount.go and living for the process's lifetime. It speaks to a
// single Metadata Store and a single Cache Registry, both concrete types
// rather than interfaces: there is no plugin surface here.
type Coordinator struct {
	fuseutil.NotImplementedFileSystem

	mount string
	ms    *metastore.Store
	cr    *registry.Registry
	mh    metrics.OpsMetricHandle

	uid, gid   uint32
	segmentLen int64
}

var _ fuseutil.FileSystem = (*Coordinator)(nil)

// New constructs a Coordinator for the named mount. mh may be nil, in which
// case ops run uninstrumented.
func New(mount string, ms *metastore.Store, cr *registry.Registry, mh metrics.OpsMetricHandle, uid, gid uint32, segmentLen int64) *Coordinator {
	return &Coordinator{
		mount:      mount,
		ms:         ms,
		cr:         cr,
		mh:         mh,
		uid:        uid,
		gid:        gid,
		segmentLen: segmentLen,
	}
}

// track records a count, an error count on non-nil *err, and the elapsed
// latency for op once the caller's deferred call fires. Called as
// `defer c.track("lookup", time.Now(), &err)()` at the top of each handler,
// mirroring the teacher's OpsMetricHandle instrumentation around its own
// FUSE op dispatch.
func (c *Coordinator) track(op string, start time.Time, err *error) func() {
	return func() {
		if c.mh == nil {
			return
		}
		c.mh.OpsCount(op)
		if err != nil && *err != nil {
			c.mh.OpsErrorCount(op)
		}
		c.mh.OpsLatency(op, time.Since(start))
	}
}

// Init is called once when mounting the file system. There is nothing to
// initialize beyond what New already did.
func (c *Coordinator) Init(op *fuseops.InitOp) {
	defer c.track("init", time.Now(), nil)()
	op.Respond(nil)
}

// LookUpInode resolves a child by name within a parent directory.
func (c *Coordinator) LookUpInode(op *fuseops.LookUpInodeOp) {
	var err error
	defer c.track("lookup", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	entry, ok, err := c.ms.Lookup(c.mount, int64(op.Parent), op.Name)
	if err != nil {
		logger.Errorf("lookup %s/%s: %v", c.mount, op.Name, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		err = fserrors.ENOENT
		return
	}

	op.Entry.Child = fuseops.InodeID(entry.Inode)
	op.Entry.Attributes = c.attrsFor(entry)
	op.Entry.AttributesExpiration = time.Now().Add(entryTTL)
	op.Entry.EntryExpiration = time.Now().Add(entryTTL)
}

// GetInodeAttributes refreshes the cached attributes for an inode.
func (c *Coordinator) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	var err error
	defer c.track("getattr", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	entry, ok, err := c.ms.LookupByInode(c.mount, int64(op.Inode))
	if err != nil {
		logger.Errorf("getattr inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		// Tolerated: the kernel may ask about an inode we've already
		// forgotten about on our side. No reply contract beyond this error.
		err = fserrors.ENOENT
		return
	}

	op.Attributes = c.attrsFor(entry)
	op.AttributesExpiration = time.Now().Add(entryTTL)
}

// SetInodeAttributes merges the requested fields over the stored entry.
func (c *Coordinator) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	var err error
	defer c.track("setattr", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	entry, ok, err := c.ms.LookupByInode(c.mount, int64(op.Inode))
	if err != nil {
		logger.Errorf("setattr inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		err = fserrors.Fatal("setattr", fmt.Errorf("inode %d vanished before setattr", op.Inode))
		return
	}

	size := entry.Size
	if op.Size != nil {
		size = int64(*op.Size)
	}
	updateTs := entry.UpdateTs
	if op.Mtime != nil {
		updateTs = *op.Mtime
	}
	createTs := entry.CreateTs
	if op.Atime != nil {
		createTs = *op.Atime
	}

	if _, err = c.ms.Setattr(c.mount, int64(op.Inode), size, createTs, updateTs); err != nil {
		logger.Errorf("setattr inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
		return
	}

	entry.Size = size
	entry.CreateTs = createTs
	entry.UpdateTs = updateTs
	op.Attributes = c.attrsFor(entry)
	op.AttributesExpiration = time.Now().Add(entryTTL)
}

// ForgetInode releases the kernel's reference; there is no per-inode
// in-memory state here to release in response.
func (c *Coordinator) ForgetInode(op *fuseops.ForgetInodeOp) {
	defer c.track("forget", time.Now(), nil)()
	op.Respond(nil)
}

// MkDir creates a directory inode as a child of an existing one.
func (c *Coordinator) MkDir(op *fuseops.MkDirOp) {
	var err error
	defer c.track("mkdir", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	inode, err := c.ms.Mkdir(c.mount, int64(op.Parent), op.Name)
	if err != nil {
		logger.Errorf("mkdir %s/%s: %v", c.mount, op.Name, err)
		err = fserrors.EIO
		return
	}

	entry, ok, err := c.ms.LookupByInode(c.mount, inode)
	if err != nil || !ok {
		err = fserrors.Fatal("mkdir", fmt.Errorf("newly-created directory %s/%s missing", c.mount, op.Name))
		return
	}

	op.Entry.Child = fuseops.InodeID(inode)
	op.Entry.Attributes = c.attrsFor(entry)
	op.Entry.AttributesExpiration = time.Now().Add(entryTTL)
	op.Entry.EntryExpiration = time.Now().Add(entryTTL)
}

// CreateFile creates a file inode and exposes it as open for business; the
// Coordinator does not expose a separate MkNod on the kernel-facing
// interface, so creation happens here directly (see mknod, exposed as an
// ordinary Go method for callers that don't go through CreateFile).
func (c *Coordinator) CreateFile(op *fuseops.CreateFileOp) {
	var err error
	defer c.track("create", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	inode, err := c.Mknod(int64(op.Parent), op.Name, c.segmentLen)
	if err != nil {
		logger.Errorf("create %s/%s: %v", c.mount, op.Name, err)
		err = fserrors.EIO
		return
	}

	entry, ok, err := c.ms.LookupByInode(c.mount, inode)
	if err != nil || !ok {
		err = fserrors.Fatal("create", fmt.Errorf("newly-created file %s/%s missing", c.mount, op.Name))
		return
	}

	op.Entry.Child = fuseops.InodeID(inode)
	op.Entry.Attributes = c.attrsFor(entry)
	op.Entry.AttributesExpiration = time.Now().Add(entryTTL)
	op.Entry.EntryExpiration = time.Now().Add(entryTTL)
	op.Handle = fuseops.HandleID(inode)
}

// Mknod inserts a file row with the given segment length (CreateFile
// passes the coordinator's configured one). Exposed as an ordinary method: the pinned fuseops package in
// this dependency graph has no MkNodOp for the kernel to dispatch.
func (c *Coordinator) Mknod(parentInode int64, name string, segmentLen int64) (int64, error) {
	defer c.track("mknod", time.Now(), nil)()
	return c.ms.Mkfile(c.mount, parentInode, name, segmentLen)
}

// RmDir removes an empty directory.
func (c *Coordinator) RmDir(op *fuseops.RmDirOp) {
	var err error
	defer c.track("rmdir", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	entry, ok, err := c.ms.Lookup(c.mount, int64(op.Parent), op.Name)
	if err != nil {
		logger.Errorf("rmdir %s/%s: %v", c.mount, op.Name, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		err = fserrors.ENOENT
		return
	}
	if !entry.IsDir {
		err = fserrors.ENOTDIR
		return
	}

	hasChildren, err := c.ms.HasChildren(c.mount, entry.Inode)
	if err != nil {
		logger.Errorf("rmdir %s/%s: %v", c.mount, op.Name, err)
		err = fserrors.EIO
		return
	}
	if hasChildren {
		err = fserrors.ENOTEMPTY
		return
	}

	if err = c.ms.DeleteEntity(entry.ID); err != nil {
		logger.Errorf("rmdir %s/%s: %v", c.mount, op.Name, err)
		err = fserrors.EIO
	}
}

// Unlink removes a file from its parent directory.
func (c *Coordinator) Unlink(op *fuseops.UnlinkOp) {
	var err error
	defer c.track("unlink", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	entry, ok, err := c.ms.Lookup(c.mount, int64(op.Parent), op.Name)
	if err != nil {
		logger.Errorf("unlink %s/%s: %v", c.mount, op.Name, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		err = fserrors.ENOENT
		return
	}
	if entry.IsDir {
		err = fserrors.EISDIR
		return
	}

	// Note: the file's segment rows are intentionally left in place. See
	// the design notes on preserved reference behavior.
	if err = c.ms.DeleteEntity(entry.ID); err != nil {
		logger.Errorf("unlink %s/%s: %v", c.mount, op.Name, err)
		err = fserrors.EIO
	}
}

// Rename moves an entry between directories, replacing any existing
// destination. Exposed as an ordinary method, for the same reason as
// Mknod: there is no RenameOp in this dependency graph's fuseops package.
func (c *Coordinator) Rename(srcParent int64, srcName string, dstParent int64, dstName string) error {
	defer c.track("rename", time.Now(), nil)()

	dstDir, ok, err := c.ms.LookupByInode(c.mount, dstParent)
	if err != nil {
		return fmt.Errorf("rename: resolving destination parent: %w", err)
	}
	if !ok {
		return fserrors.ENOENT
	}
	if !dstDir.IsDir {
		return fserrors.ENOTDIR
	}

	src, ok, err := c.ms.Lookup(c.mount, srcParent, srcName)
	if err != nil {
		return fmt.Errorf("rename: resolving source: %w", err)
	}
	if !ok {
		return fserrors.ENOENT
	}

	if existing, ok, err := c.ms.Lookup(c.mount, dstParent, dstName); err != nil {
		return fmt.Errorf("rename: checking destination name: %w", err)
	} else if ok {
		if err := c.ms.DeleteEntity(existing.ID); err != nil {
			return fmt.Errorf("rename: replacing destination: %w", err)
		}
	}

	if err := c.ms.UpdateParent(src.ID, dstParent); err != nil {
		return fmt.Errorf("rename: updating parent: %w", err)
	}
	if err := c.ms.UpdateName(src.ID, dstName); err != nil {
		return fmt.Errorf("rename: updating name: %w", err)
	}
	return nil
}

// OpenDir confirms the inode is a directory and mints a handle for it. The
// handle is the inode itself: ReadDir and ReleaseDirHandle need no other
// per-handle state.
func (c *Coordinator) OpenDir(op *fuseops.OpenDirOp) {
	var err error
	defer c.track("opendir", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	entry, ok, err := c.ms.LookupByInode(c.mount, int64(op.Inode))
	if err != nil {
		logger.Errorf("opendir inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		err = fserrors.ENOENT
		return
	}
	if !entry.IsDir {
		err = fserrors.ENOTDIR
		return
	}

	op.Handle = fuseops.HandleID(op.Inode)
}

// ReadDir lists children at a caller-supplied offset, page size 100,
// presenting each at position offset+i+1 per the FUSE readdir convention.
func (c *Coordinator) ReadDir(op *fuseops.ReadDirOp) {
	var err error
	defer c.track("readdir", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	entries, err := c.ms.Ls(c.mount, int64(op.Inode), int(op.Offset))
	if err != nil {
		logger.Errorf("readdir inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
		return
	}

	for i, e := range entries {
		dType := fuseops.DT_File
		if e.IsDir {
			dType = fuseops.DT_Directory
		}
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseops.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  fuseops.InodeID(e.Inode),
			Name:   e.Name,
			Type:   dType,
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
}

// ReleaseDirHandle releases a handle minted by OpenDir. There is nothing
// to clean up: directory listings carry no per-handle state here.
func (c *Coordinator) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	defer c.track("release_dir_handle", time.Now(), nil)()
	op.Respond(nil)
}

// OpenFile confirms the inode exists, truncates on open-for-write without
// append, and registers a Segment Cache for the open.
func (c *Coordinator) OpenFile(op *fuseops.OpenFileOp) {
	var err error
	defer c.track("open", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	entry, ok, err := c.ms.LookupByInode(c.mount, int64(op.Inode))
	if err != nil {
		logger.Errorf("open inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		err = fserrors.ENOENT
		return
	}

	if writesWithoutAppend(uint32(op.Flags)) {
		if err = c.ms.ClearFileData(entry.ID); err != nil {
			logger.Errorf("open inode=%d: truncating: %v", op.Inode, err)
			err = fserrors.EIO
			return
		}
	}

	c.cr.Init(c.mount, int64(op.Inode), entry.ID, uint32(op.Flags), entry.SegmentLen)
	op.Handle = fuseops.HandleID(op.Inode)
}

// writesWithoutAppend reports whether flags grant write access without
// O_APPEND, the condition under which open truncates existing content.
func writesWithoutAppend(flags uint32) bool {
	accmode := flags & syscall.O_ACCMODE
	writes := accmode == syscall.O_WRONLY || accmode == syscall.O_RDWR
	return writes && flags&syscall.O_APPEND == 0
}

// opensForWriting reports whether flags grant any write access, append
// included. Used at flush time: append-only opens still need a write-through.
func opensForWriting(flags uint32) bool {
	accmode := flags & syscall.O_ACCMODE
	return accmode == syscall.O_WRONLY || accmode == syscall.O_RDWR
}

// ReadFile delegates to the Segment Cache registered for this inode.
func (c *Coordinator) ReadFile(op *fuseops.ReadFileOp) {
	var err error
	defer c.track("read", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	sc, ok, err := c.cr.GetOrLoad(c.mount, int64(op.Inode), 0)
	if err != nil {
		logger.Errorf("read inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		err = fserrors.ENOENT
		return
	}

	data, ok, err := sc.Read(op.Offset, int64(op.Size))
	if err != nil {
		logger.Errorf("read inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		err = fserrors.ENOENT
		return
	}
	op.BytesRead = len(data)
	copy(op.Dst, data)
}

// WriteFile delegates to the Segment Cache registered for this inode.
func (c *Coordinator) WriteFile(op *fuseops.WriteFileOp) {
	var err error
	defer c.track("write", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	sc, ok, err := c.cr.GetOrLoad(c.mount, int64(op.Inode), 0)
	if err != nil {
		logger.Errorf("write inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		err = fserrors.ENOENT
		return
	}

	if err = sc.Add(op.Offset, op.Data); err != nil {
		logger.Errorf("write inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
	}
}

// SyncFile writes through the resident segments without releasing the
// cache entry.
func (c *Coordinator) SyncFile(op *fuseops.SyncFileOp) {
	var err error
	defer c.track("fsync", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	sc, ok := c.cr.Get(c.mount, int64(op.Inode))
	if !ok {
		return
	}
	if err = sc.Save(); err != nil {
		logger.Errorf("fsync inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
	}
}

// FlushFile persists any dirty segments and retires the Segment Cache for
// this open.
func (c *Coordinator) FlushFile(op *fuseops.FlushFileOp) {
	var err error
	defer c.track("flush", time.Now(), &err)()
	defer fuseutil.RespondToOp(op, &err)

	_, ok, err := c.ms.LookupByInode(c.mount, int64(op.Inode))
	if err != nil {
		logger.Errorf("flush inode=%d: %v", op.Inode, err)
		err = fserrors.EIO
		return
	}
	if !ok {
		err = fserrors.ENOENT
		return
	}

	sc, ok := c.cr.Remove(c.mount, int64(op.Inode))
	if !ok {
		return
	}
	if opensForWriting(sc.Flags) {
		if err = sc.Save(); err != nil {
			logger.Errorf("flush inode=%d: %v", op.Inode, err)
			err = fserrors.EIO
		}
	}
}

// ReleaseFileHandle releases a handle minted by OpenFile or CreateFile.
// Any unsaved state should already have been flushed via FlushFile.
func (c *Coordinator) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	defer c.track("release_file_handle", time.Now(), nil)()
	op.Respond(nil)
}
