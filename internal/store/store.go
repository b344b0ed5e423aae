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

package store

import (
	"fmt"
	"time"

	"github.com/jrz1977/pgdbfs/cfg"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open dials the Postgres backend named by config, applies the connection
// pool bound, and auto-migrates the two tables the Metadata Store owns.
func Open(config cfg.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		config.Host, config.Port, config.User, config.Pass, config.Name,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrapping *sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxConns)
	sqlDB.SetMaxIdleConns(config.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Entry{}, &Segment{}); err != nil {
		return nil, fmt.Errorf("auto-migrating schema: %w", err)
	}

	// inode_seq backs inode allocation (internal/metastore.Mkdir/Mkfile);
	// it starts past cfg.RootInode, which is never a row the store creates.
	if err := db.Exec(`CREATE SEQUENCE IF NOT EXISTS inode_seq START WITH 2`).Error; err != nil {
		return nil, fmt.Errorf("creating inode_seq: %w", err)
	}

	return db, nil
}
