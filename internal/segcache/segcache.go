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

// Package segcache implements the open-file Buffer: a small ordered window
// of resident Segment copies that absorbs a kernel handle's arbitrarily
// offset, arbitrarily sized I/Os and translates them into segment-aligned
// Metadata Store reads and writes.
package segcache

import (
	"fmt"

	"github.com/jrz1977/pgdbfs/internal/metastore"
)

// residentLimit is the most segments that may stay resident; once more are
// resident, trim spills all but the final two.
const residentLimit = 3

type residentSegment struct {
	no   int64
	data []byte
}

// Cache is one Segment Cache, serving a single (mount, inode) open.
type Cache struct {
	ms         *metastore.Store
	FileID     int64
	SegmentLen int64
	Flags      uint32

	resident []residentSegment
}

// New constructs an empty Segment Cache for an open file.
func New(ms *metastore.Store, fileID, segmentLen int64, flags uint32) *Cache {
	return &Cache{ms: ms, FileID: fileID, SegmentLen: segmentLen, Flags: flags}
}

func (c *Cache) indexOf(segNo int64) int {
	for i, s := range c.resident {
		if s.no == segNo {
			return i
		}
	}
	return -1
}

// faultIn ensures segment segNo is resident, loading it from the Metadata
// Store if necessary. eof reports that the segment does not exist and its
// implied range lies at or beyond the file's current size, i.e. the
// requested range simply ends there rather than being an error.
func (c *Cache) faultIn(segNo int64) (eof bool, err error) {
	if c.indexOf(segNo) >= 0 {
		return false, nil
	}

	exists, err := c.ms.CheckSegmentExists(c.FileID, segNo)
	if err != nil {
		return false, fmt.Errorf("checking segment %d of file %d: %w", segNo, c.FileID, err)
	}
	if !exists {
		size, err := c.ms.FileSize(c.FileID)
		if err != nil {
			return false, fmt.Errorf("reading size of file %d: %w", c.FileID, err)
		}
		if segNo*c.SegmentLen >= size {
			return true, nil
		}
		return false, fmt.Errorf("segment %d of file %d missing before end of file (size=%d)", segNo, c.FileID, size)
	}

	data, ok, err := c.ms.LoadSegment(c.FileID, segNo)
	if err != nil {
		return false, fmt.Errorf("loading segment %d of file %d: %w", segNo, c.FileID, err)
	}
	if !ok {
		return false, fmt.Errorf("file %d vanished while loading segment %d", c.FileID, segNo)
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	c.resident = append(c.resident, residentSegment{no: segNo, data: cp})
	return false, nil
}

// Add absorbs a write at offset, filling and appending resident segments as
// needed, then trims the resident window.
func (c *Cache) Add(offset int64, data []byte) error {
	s := offset / c.SegmentLen
	if _, err := c.faultIn(s); err != nil {
		return err
	}

	if len(c.resident) == 0 {
		c.resident = append(c.resident, residentSegment{no: s, data: []byte{}})
	} else if last := &c.resident[len(c.resident)-1]; int64(len(last.data)) == c.SegmentLen {
		c.resident = append(c.resident, residentSegment{no: last.no + 1, data: []byte{}})
	}

	tail := &c.resident[len(c.resident)-1]
	room := c.SegmentLen - int64(len(tail.data))
	take := int64(len(data))
	if take > room {
		take = room
	}
	tail.data = append(tail.data, data[:take]...)
	rest := data[take:]

	for int64(len(rest)) > 0 {
		chunk := int64(len(rest))
		if chunk > c.SegmentLen {
			chunk = c.SegmentLen
		}
		nextNo := c.resident[len(c.resident)-1].no + 1
		seg := make([]byte, chunk)
		copy(seg, rest[:chunk])
		c.resident = append(c.resident, residentSegment{no: nextNo, data: seg})
		rest = rest[chunk:]
	}

	return c.Trim()
}

// Read returns up to size bytes starting at offset. ok is false only when
// the range begins at or beyond the file's current end.
func (c *Cache) Read(offset, size int64) (out []byte, ok bool, err error) {
	if size <= 0 {
		return []byte{}, true, nil
	}

	first := offset / c.SegmentLen
	last := (offset + size) / c.SegmentLen

	for s := first; s <= last; s++ {
		eof, err := c.faultIn(s)
		if err != nil {
			return nil, false, err
		}
		if eof {
			break
		}
	}

	remaining := size
	cur := offset
	for remaining > 0 {
		s := cur / c.SegmentLen
		idx := c.indexOf(s)
		if idx < 0 {
			break
		}
		seg := c.resident[idx]
		segStart := s * c.SegmentLen
		within := cur - segStart
		if within >= int64(len(seg.data)) {
			break
		}
		avail := int64(len(seg.data)) - within
		take := avail
		if take > remaining {
			take = remaining
		}
		out = append(out, seg.data[within:within+take]...)
		cur += take
		remaining -= take
	}

	if out == nil {
		if len(c.resident) == 0 {
			return []byte{}, false, nil
		}
		return []byte{}, true, nil
	}
	return out, true, nil
}

// Trim writes through and releases all but the last two resident segments,
// once more than three are resident.
func (c *Cache) Trim() error {
	if len(c.resident) <= residentLimit {
		return nil
	}
	cut := len(c.resident) - 2
	for _, seg := range c.resident[:cut] {
		if err := c.ms.WriteSegment(c.FileID, seg.no, seg.data); err != nil {
			return fmt.Errorf("trimming segment %d of file %d: %w", seg.no, c.FileID, err)
		}
	}
	c.resident = c.resident[cut:]
	return nil
}

// Save writes through every resident segment, without releasing it. Called
// at flush.
func (c *Cache) Save() error {
	for _, seg := range c.resident {
		if err := c.ms.WriteSegment(c.FileID, seg.no, seg.data); err != nil {
			return fmt.Errorf("saving segment %d of file %d: %w", seg.no, c.FileID, err)
		}
	}
	return nil
}
