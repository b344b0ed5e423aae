// Copyright 2024 Google Inc. All Rights Reserved.
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

package cfg

import "fmt"

func isValidLogRotateConfig(config *LogRotateConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be at least 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	return nil
}

func isValidDBConfig(config *DBConfig) error {
	if config.Host == "" {
		return fmt.Errorf("db.host must not be empty")
	}
	if config.SegmentLen <= 0 {
		return fmt.Errorf("db.segment-len must be positive, got %d", config.SegmentLen)
	}
	if config.MaxConns <= 0 {
		return fmt.Errorf("db.max-conns must be positive, got %d", config.MaxConns)
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	if config.MountPoint == "" {
		return fmt.Errorf("mount point must not be empty")
	}

	if err := isValidDBConfig(&config.DB); err != nil {
		return fmt.Errorf("error parsing db config: %w", err)
	}

	if err := isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}

	return nil
}
