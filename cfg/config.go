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

// GENERATED CODE - DO NOT EDIT MANUALLY.

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of configuration consumed by the core: the
// database connection parameters, the default segment length, and the
// ambient logging knobs.
type Config struct {
	// MountPoint is the path at which the filesystem is attached, and also
	// the tenant key (Entry.Mount) distinguishing this mount's rows from
	// any others sharing the same database.
	MountPoint string `yaml:"mount-point"`

	DB DBConfig `yaml:"db"`

	Logging LoggingConfig `yaml:"logging"`

	// MetricsAddr is the listen address for the Prometheus scrape endpoint
	// exposing per-op counts and latencies. Empty disables it.
	MetricsAddr string `yaml:"metrics-addr"`
}

// DBConfig names the SQL backend the Metadata Store connects to.
type DBConfig struct {
	Host string `yaml:"host"`

	Port int `yaml:"port"`

	User string `yaml:"user"`

	Pass string `yaml:"pass"`

	Name string `yaml:"name"`

	// SegmentLen is the segment size, in bytes, assigned to files created by
	// this mount.
	SegmentLen int64 `yaml:"segment-len"`

	MaxConns int `yaml:"max-conns"`
}

// LoggingConfig controls the severity, format, and destination of emitted
// log records.
type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	Format LogFormat `yaml:"format"`

	FilePath string `yaml:"file-path"`

	LogRotate LogRotateConfig `yaml:"log-rotate"`
}

// LogRotateConfig configures lumberjack-backed log file rotation.
type LogRotateConfig struct {
	MaxFileSizeMb int `yaml:"max-file-size-mb"`

	BackupFileCount int `yaml:"backup-file-count"`

	Compress bool `yaml:"compress"`
}

// BindFlags registers the command-line flags backing Config and binds each
// one to its viper key.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("mount-point", "", "", "Path at which the filesystem is attached.")
	if err = viper.BindPFlag("mount-point", flagSet.Lookup("mount-point")); err != nil {
		return err
	}

	flagSet.StringP("db-host", "", "localhost", "Hostname of the Postgres server backing the mount.")
	if err = viper.BindPFlag("db.host", flagSet.Lookup("db-host")); err != nil {
		return err
	}

	flagSet.IntP("db-port", "", DefaultDBPort, "Port of the Postgres server backing the mount.")
	if err = viper.BindPFlag("db.port", flagSet.Lookup("db-port")); err != nil {
		return err
	}

	flagSet.StringP("db-user", "", "pgdbfs", "Postgres user.")
	if err = viper.BindPFlag("db.user", flagSet.Lookup("db-user")); err != nil {
		return err
	}

	flagSet.StringP("db-pass", "", "", "Postgres password.")
	if err = viper.BindPFlag("db.pass", flagSet.Lookup("db-pass")); err != nil {
		return err
	}

	flagSet.StringP("db-name", "", "pgdbfs", "Postgres database name.")
	if err = viper.BindPFlag("db.name", flagSet.Lookup("db-name")); err != nil {
		return err
	}

	flagSet.Int64P("db-segment-len", "", DefaultSegmentLen, "Segment size, in bytes, assigned to newly created files.")
	if err = viper.BindPFlag("db.segment-len", flagSet.Lookup("db-segment-len")); err != nil {
		return err
	}

	flagSet.IntP("db-max-conns", "", DefaultDBConnPoolSize, "Maximum number of open connections to the database.")
	if err = viper.BindPFlag("db.max-conns", flagSet.Lookup("db-max-conns")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", string(InfoLogSeverity), "Logging severity: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", string(TextLogFormat), "Logging format: json or text.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path to a log file. If unset, logs are written to stderr.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.StringP("metrics-addr", "", "", "Listen address for the Prometheus metrics endpoint (e.g. :9100). If unset, metrics are not served.")
	if err = viper.BindPFlag("metrics-addr", flagSet.Lookup("metrics-addr")); err != nil {
		return err
	}

	return nil
}
