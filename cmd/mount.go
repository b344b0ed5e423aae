// Copyright 2024 Google LLC
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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jacobsa/fuse"
	"github.com/jrz1977/pgdbfs/cfg"
	"github.com/jrz1977/pgdbfs/internal/coordinator"
	"github.com/jrz1977/pgdbfs/internal/logger"
	"github.com/jrz1977/pgdbfs/internal/metastore"
	"github.com/jrz1977/pgdbfs/internal/metrics"
	"github.com/jrz1977/pgdbfs/internal/mount"
	"github.com/jrz1977/pgdbfs/internal/registry"
	"github.com/jrz1977/pgdbfs/internal/store"
)

// runMount wires the Metadata Store, Cache Registry, and Filesystem
// Coordinator together, attaches to the kernel, and blocks until unmounted.
func runMount(ctx context.Context, config *cfg.Config) error {
	if err := logger.InitLogFile(config.Logging); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logger.Close()

	logger.Infof("opening database %s@%s:%d/%s", config.DB.User, config.DB.Host, config.DB.Port, config.DB.Name)
	db, err := store.Open(config.DB)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	ms := metastore.New(db, nil)
	cr := registry.New(ms)

	mh, err := metrics.New()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	if config.MetricsAddr != "" {
		go func() {
			logger.Infof("serving metrics on %s", config.MetricsAddr)
			if err := metrics.Serve(config.MetricsAddr); err != nil {
				logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	uid, gid := mount.MyUserAndGroup()
	if uid == 0 {
		fmt.Fprintln(os.Stdout, `
WARNING: pgdbfs invoked as root. This will cause all files to be owned by
root. If this is not what you intended, invoke pgdbfs as the user that will
be interacting with the file system.`)
	}

	c := coordinator.New(config.MountPoint, ms, cr, mh, uid, gid, config.DB.SegmentLen)

	logger.Infof("mounting file system %q...", config.MountPoint)
	mfs, err := mount.Mount(config, c)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	registerUnmountOnSignal(config.MountPoint)

	if err := mfs.Join(ctx); err != nil {
		return fmt.Errorf("MountedFileSystem.Join: %w", err)
	}
	return nil
}

// registerUnmountOnSignal unmounts in response to SIGINT. It keeps listening
// after a failed attempt: the kernel may briefly report the mount point as
// busy while in-flight ops drain.
func registerUnmountOnSignal(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			logger.Infof("received SIGINT, attempting to unmount %s", mountPoint)
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("failed to unmount in response to SIGINT: %v", err)
				continue
			}
			logger.Infof("successfully unmounted %s", mountPoint)
			return
		}
	}()
}
