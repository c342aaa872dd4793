/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package main

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/arapat/sparrow-sub000/internal/config"
	"github.com/arapat/sparrow-sub000/pkg/transport"
	"github.com/dc0d/onexit"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train <config.yaml>",
		Short: "run a head or scanner process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			switch cfg.Role {
			case "head":
				return runHead(cfg)
			case "scanner":
				return runScanner(cfg)
			default:
				return fmt.Errorf("unknown role %q", cfg.Role)
			}
		},
	}
	return cmd
}

// buildEngine constructs the transport.Engine a config's storage section
// describes.
func buildEngine(cfg config.Config) (transport.Engine, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		return transport.NewLocalEngine(cfg.Storage.Path)
	case "s3":
		return transport.NewS3Engine(transport.S3Config{
			AccessKeyID:     cfg.Storage.S3AccessKeyID,
			SecretAccessKey: cfg.Storage.S3SecretAccess,
			Region:          cfg.Storage.S3Region,
			Endpoint:        cfg.Storage.S3Endpoint,
			Bucket:          cfg.Storage.S3Bucket,
			Prefix:          cfg.Storage.S3Prefix,
			ForcePathStyle:  cfg.Storage.S3ForcePathStyle,
		}), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// registerShutdownHook arranges for running to be cleared, and any
// finalizer to run, when the process receives an exit signal — mirroring
// the teacher's storage.onexit.Register cleanup convention.
func registerShutdownHook(running *atomic.Bool, finalize func()) {
	running.Store(true)
	onexit.Register(func() {
		running.Store(false)
		if finalize != nil {
			finalize()
		}
	})
}

// watchStatusFile clears running as soon as path's contents become "0",
// the same sentinel-file convention the original sampler controller used
// for an out-of-band stop signal. Failure to create the watcher is logged;
// if the status file does not exist when the watch starts, nothing is
// watched and a file created later is not noticed.
func watchStatusFile(path string, running *atomic.Bool) {
	if path == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("status watch: %v", err)
		return
	}
	if err := watcher.Add(path); err != nil {
		// the file may not exist yet; that's fine, nothing to watch
		watcher.Close()
		return
	}
	go func() {
		defer watcher.Close()
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if string(data) == "0" || string(data) == "0\n" {
				running.Store(false)
				return
			}
		}
	}()
}
