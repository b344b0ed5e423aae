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

const (
	// DefaultSegmentLen is the segment size, in bytes, used when a file is
	// created without an explicit override.
	DefaultSegmentLen int64 = 1048576

	// DefaultDBPort is the Postgres port used when none is configured.
	DefaultDBPort int = 5432

	// DefaultDBConnPoolSize bounds the number of open connections the
	// Metadata Store keeps checked out of the driver at once.
	DefaultDBConnPoolSize int = 15

	// RootInode is the well-known inode of the mount's root directory.
	RootInode int64 = 1
)
