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

// wordgen runs the data generator operators and writes their output as
// CSV, for feeding the kmeans and regression binaries.
package main

import (
	"bufio"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/daviszhen/udo/pkg/common"
	"github.com/daviszhen/udo/pkg/operators"
	"github.com/daviszhen/udo/pkg/storage"
	"github.com/daviszhen/udo/pkg/udo"
	"github.com/daviszhen/udo/pkg/util"
)

var (
	numTuples  uint64
	numThreads int
	regA       float64
	regB       float64
	regC       float64
)

func workerCount() int {
	if numThreads > 0 {
		return numThreads
	}
	if cfg := util.LoadConfig(); cfg.Runtime.NumThreads > 0 {
		return cfg.Runtime.NumThreads
	}
	return runtime.GOMAXPROCS(0)
}

// generate runs op over an empty input and prints one line per output.
func generate[O any](op udo.Operator[common.EmptyTuple, O], header string, format func(w *bufio.Writer, tuple *O)) {
	input := &storage.ParallelChunkedStorage[common.EmptyTuple]{}
	standalone := udo.NewStandalone[common.EmptyTuple, O](workerCount(), 10000)
	output := standalone.Run(op, input)

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	fmt.Fprintln(w, header)
	output.ForEach(func(tuple *O) {
		format(w, tuple)
	})
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "wordgen",
		Short:         "Generate CSV test data with the generator operators",
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Uint64VarP(&numTuples, "num", "n", 1000000, "number of tuples to generate")
	rootCmd.PersistentFlags().IntVar(&numThreads, "threads", 0, "number of worker threads (0 = all cpus)")

	pointsCmd := &cobra.Command{
		Use:   "points",
		Short: "2D points around the fixed cluster centers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			generate(operators.NewCreatePoints(numTuples), "x,y,clusterId",
				func(w *bufio.Writer, tuple *operators.PointTuple) {
					fmt.Fprintf(w, "%v,%v,%d\n", tuple.X, tuple.Y, tuple.ClusterId)
				})
			return nil
		},
	}

	wordsCmd := &cobra.Command{
		Use:   "words",
		Short: "random words",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			generate(operators.NewCreateWords(numTuples), "word",
				func(w *bufio.Writer, tuple *operators.WordTuple) {
					fmt.Fprintf(w, "%s\n", tuple.Word.String())
				})
			return nil
		},
	}

	arraysCmd := &cobra.Command{
		Use:   "arrays",
		Short: "name plus comma separated values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			generate(operators.NewCreateArrays(numTuples), "name,values",
				func(w *bufio.Writer, tuple *operators.ArrayTuple) {
					fmt.Fprintf(w, "%s,\"%s\"\n", tuple.Name.String(), tuple.Values.String())
				})
			return nil
		},
	}

	regPointsCmd := &cobra.Command{
		Use:   "regpoints",
		Short: "points on y = a + bx + cx^2 + e",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			generate(operators.NewCreateRegressionPoints(regA, regB, regC, numTuples), "x,y",
				func(w *bufio.Writer, tuple *operators.RegressionInput) {
					fmt.Fprintf(w, "%v,%v\n", tuple.X, tuple.Y)
				})
			return nil
		},
	}
	regPointsCmd.Flags().Float64Var(&regA, "a", 2.0, "parameter a")
	regPointsCmd.Flags().Float64Var(&regB, "b", 3.0, "parameter b")
	regPointsCmd.Flags().Float64Var(&regC, "c", 0.5, "parameter c")

	rootCmd.AddCommand(pointsCmd, wordsCmd, arraysCmd, regPointsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
