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

package segcache

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jrz1977/pgdbfs/internal/metastore"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockCache(t *testing.T, segmentLen int64) (*Cache, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	ms := metastore.New(db, nil)
	return New(ms, 1, segmentLen, 0), mock
}

func TestAddFillsNewFileFromOffsetZero(t *testing.T) {
	c, mock := newMockCache(t, 8)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "segments"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`SELECT "size" FROM "entries"`).
		WillReturnRows(sqlmock.NewRows([]string{"size"}).AddRow(int64(0)))

	err := c.Add(0, []byte("hello worl"))
	require.NoError(t, err)
	require.Len(t, c.resident, 2)
	require.Equal(t, []byte("hello wo"), c.resident[0].data)
	require.Equal(t, []byte("rl"), c.resident[1].data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddTrimsWhenMoreThanThreeSegmentsResident(t *testing.T) {
	c, mock := newMockCache(t, 4)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "segments"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`SELECT "size" FROM "entries"`).
		WillReturnRows(sqlmock.NewRows([]string{"size"}).AddRow(int64(0)))

	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "segments"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(i + 1)))
		mock.ExpectExec(`UPDATE "entries" SET "size"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	err := c.Add(0, []byte("01234567890123456789"))
	require.NoError(t, err)
	require.Len(t, c.resident, 2)
	require.Equal(t, int64(3), c.resident[0].no)
	require.Equal(t, int64(4), c.resident[1].no)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadConcatenatesAcrossSegments(t *testing.T) {
	c, _ := newMockCache(t, 4)
	c.resident = []residentSegment{
		{no: 0, data: []byte("0123")},
		{no: 1, data: []byte("4567")},
		{no: 2, data: []byte("89")},
	}

	out, ok, err := c.Read(2, 6)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("234567"), out)
}

func TestSaveWritesThroughAllResidentSegments(t *testing.T) {
	c, mock := newMockCache(t, 4)
	c.resident = []residentSegment{{no: 0, data: []byte("abcd")}}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "segments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`UPDATE "entries" SET "size"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := c.Save()
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
