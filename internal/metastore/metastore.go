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

// Package metastore is the only component that issues database statements.
// It is a small, strictly-typed surface over the entries and segments
// tables, built on gorm.io/gorm over a *gorm.DB handed in at construction.
package metastore

import (
	"errors"
	"fmt"
	"time"

	"github.com/jrz1977/pgdbfs/clock"
	"github.com/jrz1977/pgdbfs/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pageSize = 100

// Entry is the caller-facing view of a store.Entry, with NLink computed the
// way GetInodeAttributes needs it: 2 + child directory count for
// directories, 1 for files.
type Entry struct {
	ID          int64
	Mount       string
	Inode       int64
	ParentInode int64
	Name        string
	IsDir       bool
	Size        int64
	SegmentLen  int64
	CreateTs    time.Time
	UpdateTs    time.Time
	NLink       uint32
}

// Store is the Metadata Store.
type Store struct {
	db  *gorm.DB
	clk clock.Clock
}

// New wraps an opened *gorm.DB as a Metadata Store, stamping new rows with
// clk.Now(). Passing nil defaults to the wall clock.
func New(db *gorm.DB, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{db: db, clk: clk}
}

func nextInode(db *gorm.DB) (int64, error) {
	var inode int64
	if err := db.Raw(`SELECT nextval('inode_seq')`).Scan(&inode).Error; err != nil {
		return 0, fmt.Errorf("allocating inode: %w", err)
	}
	return inode, nil
}

// Mkdir inserts a directory row and returns its freshly allocated inode.
func (s *Store) Mkdir(mount string, parentInode int64, name string) (int64, error) {
	inode, err := nextInode(s.db)
	if err != nil {
		return 0, err
	}
	now := s.clk.Now()
	row := store.Entry{
		Mount: mount, Inode: inode, ParentInode: parentInode, Name: name,
		IsDir: true, Size: 0, SegmentLen: 0, CreateTs: now, UpdateTs: now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("mkdir %s/%s: %w", mount, name, err)
	}
	return inode, nil
}

// Mkfile inserts a file row with size 0 and returns its freshly allocated
// inode.
func (s *Store) Mkfile(mount string, parentInode int64, name string, segmentLen int64) (int64, error) {
	inode, err := nextInode(s.db)
	if err != nil {
		return 0, err
	}
	now := s.clk.Now()
	row := store.Entry{
		Mount: mount, Inode: inode, ParentInode: parentInode, Name: name,
		IsDir: false, Size: 0, SegmentLen: segmentLen, CreateTs: now, UpdateTs: now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("mkfile %s/%s: %w", mount, name, err)
	}
	return inode, nil
}

// Setattr updates size and timestamps for the row identified by
// (mount, inode). It is best effort: a missing row is not an error, it
// simply reports zero rows updated.
func (s *Store) Setattr(mount string, inode int64, size int64, createTs, updateTs time.Time) (int64, error) {
	result := s.db.Model(&store.Entry{}).
		Where("mount = ? AND inode = ?", mount, inode).
		Updates(map[string]any{"size": size, "create_ts": createTs, "update_ts": updateTs})
	if result.Error != nil {
		return 0, fmt.Errorf("setattr mount=%s inode=%d: %w", mount, inode, result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) toEntry(row store.Entry) (Entry, error) {
	e := Entry{
		ID: row.ID, Mount: row.Mount, Inode: row.Inode, ParentInode: row.ParentInode,
		Name: row.Name, IsDir: row.IsDir, Size: row.Size, SegmentLen: row.SegmentLen,
		CreateTs: row.CreateTs, UpdateTs: row.UpdateTs,
	}
	if row.IsDir {
		var childDirs int64
		if err := s.db.Model(&store.Entry{}).
			Where("mount = ? AND parent_inode = ? AND is_dir = ?", row.Mount, row.Inode, true).
			Count(&childDirs).Error; err != nil {
			return Entry{}, fmt.Errorf("counting child directories of inode %d: %w", row.Inode, err)
		}
		e.NLink = uint32(2 + childDirs)
	} else {
		e.NLink = 1
	}
	return e, nil
}

// Lookup resolves (mount, parent_inode, name) to an Entry.
func (s *Store) Lookup(mount string, parentInode int64, name string) (Entry, bool, error) {
	var row store.Entry
	err := s.db.Where("mount = ? AND parent_inode = ? AND name = ?", mount, parentInode, name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s/%s: %w", mount, name, err)
	}
	e, err := s.toEntry(row)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// LookupByInode resolves (mount, inode) to an Entry.
func (s *Store) LookupByInode(mount string, inode int64) (Entry, bool, error) {
	var row store.Entry
	err := s.db.Where("mount = ? AND inode = ?", mount, inode).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup_by_inode mount=%s inode=%d: %w", mount, inode, err)
	}
	e, err := s.toEntry(row)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Ls lists the children of parent_inode, ordered by id, skipping the first
// offset rows and returning at most pageSize of them.
func (s *Store) Ls(mount string, parentInode int64, offset int) ([]Entry, error) {
	var rows []store.Entry
	err := s.db.Where("mount = ? AND parent_inode = ?", mount, parentInode).
		Order("id").
		Offset(offset).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ls mount=%s parent_inode=%d offset=%d: %w", mount, parentInode, offset, err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := s.toEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LoadSegment returns the bytes of (file_id, segment_no). It returns
// (nil, false) only when the owning Entry does not exist; an empty,
// present-but-absent segment comes back as ([]byte{}, true).
func (s *Store) LoadSegment(fileID, segmentNo int64) ([]byte, bool, error) {
	var exists int64
	if err := s.db.Model(&store.Entry{}).Where("id = ?", fileID).Count(&exists).Error; err != nil {
		return nil, false, fmt.Errorf("checking entry %d exists: %w", fileID, err)
	}
	if exists == 0 {
		return nil, false, nil
	}

	var seg store.Segment
	err := s.db.Where("file_id = ? AND segment_no = ?", fileID, segmentNo).First(&seg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []byte{}, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load_segment file_id=%d segment_no=%d: %w", fileID, segmentNo, err)
	}
	return seg.Data, true, nil
}

// WriteSegment upserts (file_id, segment_no, data) and increments the
// owning Entry's size by len(data). The increment fires even on an
// overwrite, matching the reference implementation's documented behavior
// (see the design notes on size accounting).
func (s *Store) WriteSegment(fileID, segmentNo int64, data []byte) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		seg := store.Segment{FileID: fileID, SegmentNo: segmentNo, Data: data}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}, {Name: "segment_no"}},
			DoUpdates: clause.AssignmentColumns([]string{"data"}),
		}).Create(&seg).Error
		if err != nil {
			return fmt.Errorf("write_segment file_id=%d segment_no=%d: %w", fileID, segmentNo, err)
		}

		err = tx.Model(&store.Entry{}).Where("id = ?", fileID).
			Update("size", gorm.Expr("size + ?", len(data))).Error
		if err != nil {
			return fmt.Errorf("incrementing size for entry %d: %w", fileID, err)
		}
		return nil
	})
}

// CheckSegmentExists reports whether (file_id, segment_no) has a row.
func (s *Store) CheckSegmentExists(fileID, segmentNo int64) (bool, error) {
	var count int64
	err := s.db.Model(&store.Segment{}).Where("file_id = ? AND segment_no = ?", fileID, segmentNo).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check_segment_exists file_id=%d segment_no=%d: %w", fileID, segmentNo, err)
	}
	return count > 0, nil
}

// ClearFileData deletes every segment row belonging to file_id. It does not
// touch the Entry row itself.
func (s *Store) ClearFileData(fileID int64) error {
	if err := s.db.Where("file_id = ?", fileID).Delete(&store.Segment{}).Error; err != nil {
		return fmt.Errorf("clear_file_data file_id=%d: %w", fileID, err)
	}
	return nil
}

// HasChildren reports whether parent_inode has any children, for rmdir's
// emptiness check.
func (s *Store) HasChildren(mount string, parentInode int64) (bool, error) {
	var count int64
	err := s.db.Model(&store.Entry{}).Where("mount = ? AND parent_inode = ?", mount, parentInode).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("has_children mount=%s parent_inode=%d: %w", mount, parentInode, err)
	}
	return count > 0, nil
}

// UpdateParent rewrites an Entry's parent_inode, for rename.
func (s *Store) UpdateParent(id, newParentInode int64) error {
	if err := s.db.Model(&store.Entry{}).Where("id = ?", id).Update("parent_inode", newParentInode).Error; err != nil {
		return fmt.Errorf("update_parent id=%d: %w", id, err)
	}
	return nil
}

// UpdateName rewrites an Entry's name, for rename.
func (s *Store) UpdateName(id int64, newName string) error {
	if err := s.db.Model(&store.Entry{}).Where("id = ?", id).Update("name", newName).Error; err != nil {
		return fmt.Errorf("update_name id=%d: %w", id, err)
	}
	return nil
}

// DeleteEntity removes one Entry row. The caller is responsible for
// ensuring children and segments are handled appropriately first.
func (s *Store) DeleteEntity(id int64) error {
	if err := s.db.Delete(&store.Entry{ID: id}).Error; err != nil {
		return fmt.Errorf("delete_entity id=%d: %w", id, err)
	}
	return nil
}

// FileSize returns the current size column for entry id.
func (s *Store) FileSize(id int64) (int64, error) {
	var row store.Entry
	if err := s.db.Select("size").Where("id = ?", id).First(&row).Error; err != nil {
		return 0, fmt.Errorf("file_size id=%d: %w", id, err)
	}
	return row.Size, nil
}
