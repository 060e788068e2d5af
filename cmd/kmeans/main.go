// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviszhen/udo/pkg/csvx"
	"github.com/daviszhen/udo/pkg/operators"
	"github.com/daviszhen/udo/pkg/storage"
	"github.com/daviszhen/udo/pkg/udo"
	"github.com/daviszhen/udo/pkg/util"
)

var (
	benchmark  bool
	fullOutput bool
	numThreads int
)

func bindPoint(s *csvx.FieldScanner, tuple *operators.KMeansInput) {
	tuple.X = csvx.ParseFloat64(s.Next())
	tuple.Y = csvx.ParseFloat64(s.Next())
	tuple.Payload = csvx.ParseUint64(s.Next())
}

func parseInput(fileName string, threads int) *storage.ParallelChunkedStorage[operators.KMeansInput] {
	input, err := csvx.Parse(fileName, threads, bindPoint)
	if err != nil {
		util.Fatal("reading input failed", zap.Error(err))
	}
	return input
}

func run(cmd *cobra.Command, args []string) error {
	cfg := util.LoadConfig()
	threads := numThreads
	if threads == 0 {
		threads = cfg.Runtime.NumThreads
	}
	if threads == 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	fileName := args[0]

	startParse := time.Now()
	input := parseInput(fileName, threads)
	parseDuration := time.Since(startParse)

	if benchmark {
		// Discard the input that was just parsed so the operating system
		// has a chance to cache the file before the measurements start.
		input.Clear()

		for i := 0; i < cfg.Benchmark.Passes; i++ {
			startParse := time.Now()
			input := parseInput(fileName, threads)
			fmt.Printf("parse:%d\n", time.Since(startParse).Nanoseconds())

			for j := 0; j < cfg.Benchmark.RunsPerPass; j++ {
				standalone := udo.NewStandalone[operators.KMeansInput, operators.KMeansOutput](threads, cfg.Runtime.MorselSize)
				op := operators.NewKMeans()

				start := time.Now()
				standalone.Run(op, input)
				durationNs := time.Since(start).Nanoseconds()
				// The first runs warm up and are not measured.
				if j >= cfg.Benchmark.DiscardedRuns {
					fmt.Printf("exec:%d\n", durationNs)
				}
			}
		}
		return nil
	}

	fmt.Printf("Parsing: %d ms, %d tuples\n", parseDuration.Milliseconds(), input.Size())

	standalone := udo.NewStandalone[operators.KMeansInput, operators.KMeansOutput](threads, cfg.Runtime.MorselSize)
	op := operators.NewKMeans()
	output := standalone.Run(op, input)

	if fullOutput {
		output.ForEach(func(tuple *operators.KMeansOutput) {
			fmt.Printf("%v,%v,%d,%d\n", tuple.X, tuple.Y, tuple.Payload, tuple.ClusterId)
		})
	} else {
		clusterCounts := make([]uint64, 8)
		output.ForEach(func(tuple *operators.KMeansOutput) {
			clusterCounts[tuple.ClusterId]++
		})
		for i, count := range clusterCounts {
			fmt.Printf("%d: %d\n", i, count)
		}
	}
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "kmeans [--benchmark] [--full-output] <input.csv>",
		Short:         "Cluster 2D points from a CSV file with parallel k-means",
		Args:          cobra.ExactArgs(1),
		RunE:          run,
		SilenceErrors: true,
	}
	rootCmd.Flags().BoolVar(&benchmark, "benchmark", false, "print parse/exec timings")
	rootCmd.Flags().BoolVar(&fullOutput, "full-output", false, "print every labeled tuple")
	rootCmd.Flags().IntVar(&numThreads, "threads", 0, "number of worker threads (0 = all cpus)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = rootCmd.Usage()
		os.Exit(2)
	}
}
