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
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arapat/sparrow-sub000/internal/config"
	"github.com/arapat/sparrow-sub000/pkg/diskblock"
	"github.com/arapat/sparrow-sub000/pkg/example"
	"github.com/arapat/sparrow-sub000/pkg/head"
	"github.com/arapat/sparrow-sub000/pkg/stratum"
	"github.com/arapat/sparrow-sub000/pkg/transport"
	"github.com/arapat/sparrow-sub000/pkg/tree"
	"github.com/google/uuid"
)

// runHead starts the coordinating process: strata map, assigner and
// sampler pools, gatherer, model-sync, and the websocket endpoint scanners
// connect to for tasks/packets.
func runHead(cfg config.Config) error {
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	disk, err := diskblock.Open(cfg.Storage.Path+"/strata.blocks", 1<<20)
	if err != nil {
		return fmt.Errorf("head: open disk block buffer: %w", err)
	}
	defer disk.Close()

	running := &atomic.Bool{}
	registerShutdownHook(running, nil)
	running.Store(true)
	watchStatusFile(cfg.StatusFile, running)

	strata := stratum.NewMap(cfg.BlockCapacity, disk, running)
	weights := stratum.NewWeightTable()
	assigner := head.NewAssigner(strata, weights, cfg.NumWorkers)
	defer assigner.Close()

	model := tree.NewModel()
	grid := head.NewGrid()
	scheduler := head.NewScheduler(cfg.MaxDepth, cfg.MaxNumTrees, grid)
	gamma := head.NewGamma(cfg.InitialGamma, cfg.GammaTheta, cfg.GammaWindow)
	modelSync := head.NewModelSync(model, scheduler, gamma, cfg.MinEffSize)

	sampled := make(chan example.SampleEntry, cfg.SampleCapacity)
	gatherer := head.NewGatherer(engine, cfg.SampleCapacity, func(version uint32) {
		log.Printf("head: flushed sample batch version=%d", version)
	})
	go gatherer.Drain(sampled)

	const numSamplers = 4
	var samplerWG sync.WaitGroup
	for i := 0; i < numSamplers; i++ {
		s := head.NewSampler(strata, weights, grid, sampled, running)
		samplerWG.Add(1)
		go func() {
			defer samplerWG.Done()
			s.Run()
		}()
	}

	log.Printf("head: listening on %s", cfg.ListenAddr)
	mux := http.NewServeMux()
	mux.Handle("/packets", transport.ServeHead(func(conn *transport.PacketConn) {
		serveScanner(conn, modelSync, scheduler, gamma)
	}))
	mux.HandleFunc("/model", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model)
	})

	return http.ListenAndServe(cfg.ListenAddr, mux)
}

// serveScanner hands one connected scanner tasks as the scheduler frees
// them and feeds its returned packets through model-sync. The scanner's
// bookkeeping id is assigned here rather than trusted from the client, so
// a reconnect never collides with a stale assignment slot.
func serveScanner(conn *transport.PacketConn, modelSync *head.ModelSync, scheduler *head.Scheduler, gamma *head.Gamma) {
	scannerID := uuid.New().String()
	defer scheduler.Release(scannerID)

	for {
		task, ok := scheduler.Assign(scannerID, gamma.Value())
		if !ok {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if err := conn.SendTask(task); err != nil {
			return
		}
		packet, err := conn.ReadPacket()
		if err != nil {
			return
		}
		packet.ScannerID = scannerID
		classification := modelSync.Handle(packet)
		log.Printf("head: scanner=%s classification=%s", scannerID, classification)
	}
}
