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
	numThreads int
)

func bindPoint(s *csvx.FieldScanner, tuple *operators.RegressionInput) {
	tuple.X = csvx.ParseFloat64(s.Next())
	tuple.Y = csvx.ParseFloat64(s.Next())
}

func parseInput(fileName string, threads int) *storage.ParallelChunkedStorage[operators.RegressionInput] {
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
		input.Clear()

		for i := 0; i < cfg.Benchmark.Passes; i++ {
			startParse := time.Now()
			input := parseInput(fileName, threads)
			fmt.Printf("parse:%d\n", time.Since(startParse).Nanoseconds())

			for j := 0; j < cfg.Benchmark.RunsPerPass; j++ {
				standalone := udo.NewStandalone[operators.RegressionInput, operators.RegressionOutput](threads, cfg.Runtime.MorselSize)
				op := operators.NewLinearRegression()

				start := time.Now()
				standalone.Run(op, input)
				durationNs := time.Since(start).Nanoseconds()
				if j >= cfg.Benchmark.DiscardedRuns {
					fmt.Printf("exec:%d\n", durationNs)
				}
			}
		}
		return nil
	}

	fmt.Printf("Parsing: %d ms, %d tuples\n", parseDuration.Milliseconds(), input.Size())

	standalone := udo.NewStandalone[operators.RegressionInput, operators.RegressionOutput](threads, cfg.Runtime.MorselSize)
	op := operators.NewLinearRegression()
	output := standalone.Run(op, input)

	it := output.Iter()
	if !it.Valid() {
		util.Fatal("regression produced no output")
	}
	params := it.Value()
	fmt.Printf("a = %v\n", params.A)
	fmt.Printf("b = %v\n", params.B)
	fmt.Printf("c = %v\n", params.C)
	fmt.Printf("-> y = %v + %vx + %vx^2\n", params.A, params.B, params.C)
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "regression [--benchmark] <input.csv>",
		Short:         "Fit y = a + bx + cx^2 over CSV points by least squares",
		Args:          cobra.ExactArgs(1),
		RunE:          run,
		SilenceErrors: true,
	}
	rootCmd.Flags().BoolVar(&benchmark, "benchmark", false, "print parse/exec timings")
	rootCmd.Flags().IntVar(&numThreads, "threads", 0, "number of worker threads (0 = all cpus)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = rootCmd.Usage()
		os.Exit(2)
	}
}
