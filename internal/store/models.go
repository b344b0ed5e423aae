// Package store holds the gorm models and connection wiring for the two
// tables the Metadata Store reads and writes: entries and segments.
package store

import "time"

// Entry is one row per directory or file. The root directory is a
// well-known inode (cfg.RootInode) rather than a row the store ever
// creates; every other Entry has a ParentInode that is either
// cfg.RootInode or the inode of a row with IsDir true.
type Entry struct {
	ID          int64 `gorm:"primaryKey"`
	Mount       string
	Inode       int64
	ParentInode int64
	Name        string
	IsDir       bool
	Size        int64
	SegmentLen  int64
	CreateTs    time.Time
	UpdateTs    time.Time
}

func (Entry) TableName() string { return "entries" }

// Segment is a fixed-size byte run of a file's content. The byte range it
// covers is [SegmentNo*segment_len, SegmentNo*segment_len+len(Data)); only
// the highest-numbered segment of a file may be shorter than segment_len.
type Segment struct {
	ID        int64 `gorm:"primaryKey"`
	FileID    int64
	SegmentNo int64
	Data      []byte
}

func (Segment) TableName() string { return "segments" }
