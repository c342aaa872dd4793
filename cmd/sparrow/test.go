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
	"os"

	"github.com/arapat/sparrow-sub000/internal/config"
	"github.com/arapat/sparrow-sub000/pkg/example"
	"github.com/arapat/sparrow-sub000/pkg/transport"
	"github.com/arapat/sparrow-sub000/pkg/tree"
	"github.com/spf13/cobra"
)

func testCmd() *cobra.Command {
	var modelPath string
	cmd := &cobra.Command{
		Use:   "test <config.yaml>",
		Short: "score a held-out libSVM file against a trained model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			return runTest(cfg, modelPath)
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "model.json", "blob name of the trained model under the run's storage")
	return cmd
}

// runTest loads a model and bins, evaluates every example in the config's
// training_data file, and reports accuracy. Reading stops at the first line
// the libSVM reader cannot parse; no rank statistic such as AUC is computed.
// This is intentionally a standalone CLI evaluation loop, not a component
// exercised by the head or scanner at training time; the spec treats
// held-out validation as an external collaborator's responsibility, wired
// in here only far enough to make the trained model checkable end to end.
func runTest(cfg config.Config, modelPath string) error {
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	b, err := transport.ReadBins(engine)
	if err != nil {
		return fmt.Errorf("test: read bins: %w", err)
	}

	modelData, err := engine.ReadBlob(modelPath)
	if err != nil {
		return fmt.Errorf("test: read model: %w", err)
	}
	var m tree.Model
	if err := json.Unmarshal(modelData, &m); err != nil {
		return fmt.Errorf("test: unmarshal model: %w", err)
	}

	f, err := os.Open(cfg.TrainingData)
	if err != nil {
		return fmt.Errorf("test: open %s: %w", cfg.TrainingData, err)
	}
	defer f.Close()

	reader := example.NewLibSVMReader(f, cfg.NumFeatures, func(feature int, value float64) uint16 {
		if feature >= len(b.Features) {
			return 0
		}
		return b.Features[feature].SplitIndex(value)
	})

	var total, correct int
	for {
		ex, err := reader.Next()
		if err != nil {
			break
		}
		score := m.Predict(ex.Features)
		predicted := int8(1)
		if score < 0 {
			predicted = -1
		}
		total++
		if predicted == ex.Label {
			correct++
		}
	}
	if total == 0 {
		return fmt.Errorf("test: no examples read from %s", cfg.TrainingData)
	}
	fmt.Printf("accuracy: %.4f (%d/%d)\n", float64(correct)/float64(total), correct, total)
	return nil
}
