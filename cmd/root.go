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

// Package cmd assembles the mount: it parses configuration, builds the
// cache and its collaborators, and serves the filesystem until the mount
// is interrupted or unmounted.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jokalee/zero/cfg"
)

var cfgFile string

// NewRootCmd builds the command tree. Split from Execute so tests can run
// commands with their own argv.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zerofuse [flags] bucket mount_point",
		Short: "Mount a remote object-store bucket as a local filesystem",
		Long: `zerofuse mounts a remote bucket onto a local directory, keeping file
contents cached on demand: every file is visible immediately, bytes are
downloaded on first access, and a background ranker evicts cold files back
to lightweight placeholders to reclaim space.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := cfg.Load(cmd.Flags(), cfgFile)
			if err != nil {
				return err
			}
			if err := populateArgs(&config, args); err != nil {
				return err
			}
			if err := config.Validate(); err != nil {
				return err
			}
			if config.RemoteEndpoint == "" {
				return fmt.Errorf("--remote-endpoint (or ZEROFUSE_REMOTE_ENDPOINT) is required")
			}
			return runMount(cmd.Context(), config)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to a YAML config file")
	cfg.BindFlags(rootCmd.Flags())
	return rootCmd
}

// populateArgs resolves the two positional arguments into config. The
// mount point is made absolute up front so later chdirs can't change what
// it refers to.
func populateArgs(config *cfg.Config, args []string) error {
	config.Bucket = args[0]

	mountPoint, err := filepath.Abs(args[1])
	if err != nil {
		return fmt.Errorf("canonicalizing mount point: %w", err)
	}
	config.MountPoint = cfg.ResolvedPath(mountPoint)

	if config.CacheDir == "" {
		cacheHome, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("choosing a default cache dir: %w", err)
		}
		config.CacheDir = cfg.ResolvedPath(filepath.Join(cacheHome, "zerofuse", config.Bucket))
	}
	return nil
}

// Execute runs the root command and exits nonzero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
