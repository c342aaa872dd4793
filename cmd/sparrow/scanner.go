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
	"sync/atomic"

	"github.com/arapat/sparrow-sub000/internal/config"
	"github.com/arapat/sparrow-sub000/pkg/scanner"
	"github.com/arapat/sparrow-sub000/pkg/transport"
	"github.com/arapat/sparrow-sub000/pkg/tree"
	"github.com/google/uuid"
)

// runScanner starts a scanner process: dial the head, load bins, and drive
// the booster loop until the connection ends or shutdown is requested.
func runScanner(cfg config.Config) error {
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	b, err := transport.ReadBins(engine)
	if err != nil {
		return fmt.Errorf("scanner: read bins: %w", err)
	}

	running := &atomic.Bool{}
	registerShutdownHook(running, nil)
	running.Store(true)
	watchStatusFile(cfg.StatusFile, running)

	loader := scanner.NewBufferLoader(engine)
	model := tree.NewModel()
	scannerID := uuid.New().String()

	conn, err := transport.DialScanner(cfg.HeadAddress)
	if err != nil {
		return fmt.Errorf("scanner: dial head: %w", err)
	}
	defer conn.Close()

	booster := scanner.NewBooster(scannerID, b, loader, model, conn, running, scanner.WithMinEffSize(cfg.MinEffSize))
	log.Printf("scanner: %s connected to %s", scannerID, cfg.HeadAddress)
	return booster.Run()
}
