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

package metastore

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return New(db, nil), mock
}

func TestMkdirAllocatesInodeAndInserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT nextval\('inode_seq'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(7)))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "entries"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	inode, err := s.Mkdir("m1", 1, "d")
	require.NoError(t, err)
	require.Equal(t, int64(7), inode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupNotFoundReturnsAbsent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "entries"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mount", "inode", "parent_inode", "name", "is_dir", "size", "segment_len", "create_ts", "update_ts"}))

	_, ok, err := s.Lookup("m1", 1, "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteSegmentUpsertsAndIncrementsSize(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "segments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`UPDATE "entries" SET "size"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WriteSegment(1, 0, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSegmentAbsentEntryReturnsFalse(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "entries"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	data, ok, err := s.LoadSegment(99, 0)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSegmentPresentEntryMissingSegmentReturnsEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "entries"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT \* FROM "segments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_id", "segment_no", "data"}))

	data, ok, err := s.LoadSegment(1, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{}, data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasChildrenCountsRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "entries"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	has, err := s.HasChildren("m1", 5)
	require.NoError(t, err)
	require.True(t, has)
	require.NoError(t, mock.ExpectationsWereMet())
}
