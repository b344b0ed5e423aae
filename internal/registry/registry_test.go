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

package registry

import (
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jrz1977/pgdbfs/internal/metastore"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return New(metastore.New(db, nil)), mock
}

func TestInitIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Init("m", 5, 1, 0, 8)
	c1, ok := r.Get("m", 5)
	require.True(t, ok)

	r.Init("m", 5, 999, 0, 999)
	c2, ok := r.Get("m", 5)
	require.True(t, ok)
	require.Same(t, c1, c2)
}

func TestGetOrLoadLoadsFromMetadataStoreOnce(t *testing.T) {
	r, mock := newTestRegistry(t)

	rows := sqlmock.NewRows([]string{"id", "mount", "inode", "parent_inode", "name", "is_dir", "size", "segment_len", "create_ts", "update_ts"}).
		AddRow(int64(1), "m", int64(5), int64(1), "f", false, int64(0), int64(8), nil, nil)
	mock.ExpectQuery(`SELECT \* FROM "entries"`).WillReturnRows(rows)

	c, ok, err := r.GetOrLoad("m", 5, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), c.FileID)

	c2, ok, err := r.GetOrLoad("m", 5, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, c, c2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrLoadAbsentInodeReturnsFalse(t *testing.T) {
	r, mock := newTestRegistry(t)

	mock.ExpectQuery(`SELECT \* FROM "entries"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mount", "inode", "parent_inode", "name", "is_dir", "size", "segment_len", "create_ts", "update_ts"}))

	_, ok, err := r.GetOrLoad("m", 42, 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveDeletesEntry(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Init("m", 5, 1, 0, 8)

	c, ok := r.Remove("m", 5)
	require.True(t, ok)
	require.NotNil(t, c)

	_, ok = r.Get("m", 5)
	require.False(t, ok)
}

func TestConcurrentInitIsSafe(t *testing.T) {
	r, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.Init("m", int64(n%5), int64(n), 0, 8)
		}(i)
	}
	wg.Wait()
}
