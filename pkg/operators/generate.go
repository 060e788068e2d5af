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

package operators

import (
	"math"
	"math/rand/v2"
	"strconv"
	"sync/atomic"

	"github.com/daviszhen/udo/pkg/common"
	"github.com/daviszhen/udo/pkg/udo"
)

// generatorBatchSize is how many tuples one Process call produces.
const generatorBatchSize = 10000

type Point2D struct {
	X float64
	Y float64
}

type PointTuple struct {
	X         float64
	Y         float64
	ClusterId uint32
}

// The fixed cluster centers for CreatePoints. Eight of the ten slots
// are populated; the tail slots generate no points.
var pointClusterCenters = [10]Point2D{
	{0.0, 0.0},
	{40.0, 0.0},
	{0.0, -40.0},
	{-40.0, 0.0},
	{0.0, 40.0},
	{50.0, 44.0},
	{40.0, -80.0},
	{-30.0, -50.0},
}

var pointStdDevs = [10]float64{
	5.0,
	5.0,
	5.0,
	5.0,
	5.0,
	7.0,
	8.0,
	1.0,
}

var pointProportions = [10]float64{
	1.0 / 8,
	1.0 / 8,
	1.0 / 8,
	1.0 / 8,
	1.0 / 8,
	1.0 / 64,
	1.0 / 64 * 15,
	1.0 / 8,
}

// CreatePoints generates random 2D points around the fixed cluster
// centers, one cluster per Process claim.
type CreatePoints struct {
	numPoints     uint64
	nextClusterId atomic.Uint32
}

func NewCreatePoints(numPoints uint64) *CreatePoints {
	return &CreatePoints{numPoints: numPoints}
}

func (op *CreatePoints) Accept(exec *udo.ExecutionState[PointTuple], input *common.EmptyTuple) {
}

func (op *CreatePoints) Process(exec *udo.ExecutionState[PointTuple]) bool {
	clusterId := op.nextClusterId.Add(1) - 1
	if clusterId >= uint32(len(pointClusterCenters)) {
		return true
	}

	seed := 42 + uint64(clusterId)
	gen := rand.New(rand.NewPCG(seed, seed))

	center := pointClusterCenters[clusterId]
	stdDev := pointStdDevs[clusterId]

	numClusterPoints := uint64(math.Ceil(float64(op.numPoints) * pointProportions[clusterId]))

	for i := uint64(0); i < numClusterPoints; i++ {
		exec.Emit(PointTuple{
			X:         gen.NormFloat64()*stdDev + center.X,
			Y:         gen.NormFloat64()*stdDev + center.Y,
			ClusterId: clusterId,
		})
	}

	return false
}

// CreateRegressionPoints generates points on y = a + bx + cx^2 + e with
// a normally distributed error e and x uniform in [0, 100].
type CreateRegressionPoints struct {
	a             float64
	b             float64
	c             float64
	numPoints     uint64
	pointsCounter atomic.Uint64
}

func NewCreateRegressionPoints(a, b, c float64, numPoints uint64) *CreateRegressionPoints {
	return &CreateRegressionPoints{a: a, b: b, c: c, numPoints: numPoints}
}

func (op *CreateRegressionPoints) Accept(exec *udo.ExecutionState[RegressionInput], input *common.EmptyTuple) {
}

func (op *CreateRegressionPoints) Process(exec *udo.ExecutionState[RegressionInput]) bool {
	firstIndex := op.pointsCounter.Add(generatorBatchSize) - generatorBatchSize
	if firstIndex >= op.numPoints {
		return true
	}

	seed := 42 + firstIndex
	gen := rand.New(rand.NewPCG(seed, seed))
	stddev := op.a + op.b + op.c

	for i := uint64(0); i < generatorBatchSize && firstIndex+i < op.numPoints; i++ {
		x := gen.Float64() * 100.0
		e := gen.NormFloat64() * stddev
		y := op.a + op.b*x + op.c*x*x + e
		exec.Emit(RegressionInput{X: x, Y: y})
	}

	return false
}

// The words that will be selected randomly. Words are taken from "Topics
// of Interest" at http://vldb.org/pvldb/vol15-contributions/
var generatorWords = []string{
	"Data Mining and Analytics",
	"Data Warehousing, OLAP, Parallel and Distributed Data Mining",
	"Mining and Analytics for Scientific and Business data, Social Networks, Time Series, Streams, Text, Web, Graphs, Rules, Patterns, Logs, and Spatio-temporal Data",
	"Data Privacy and Security",
	"Blockchain",
	"Access Control and Privacy",
	"Database Engines",
	"Access Methods, Concurrency Control, Recovery and Transactions",
	"Hardware Accelerators",
	"Query Processing and Optimization",
	"Storage Management, Multi-core Databases, In-memory Data Management",
	"Views, Indexing and Search",
	"Database Performance",
	"Tuning, Benchmarking and Performance Measurement",
	"Administration and Manageability",
	"Distributed Database Systems",
	"Content Delivery Networks, Database-as-a-service, and Resource Management",
	"Cloud Data Management",
	"Distributed Analytics",
	"Distributed Transactions",
	"Graphs, Networks, and Semistructured Data",
	"Graph Data Management, Recommendation Systems, Social Networks",
	"Hierarchical, Non-relational, and other Modern Data Models",
	"Information Integration and Data Quality",
	"Data Cleaning, Data Discovery and Data Exploration",
	"Heterogeneous and Federated DBMS, Metadata Management",
	"Web Data Management and Semantic Web",
	"Knowledge Graphs and Knowledge Management",
	"Languages",
	"Data Models and Query Languages",
	"Schema Management and Design",
	"Machine Learning, AI and Databases",
	"Data Management Issues and Support for Machine Learning and AI",
	"Machine Learning and Applied AI for Data Management",
	"Novel DB Architectures",
	"Embedded and Mobile Databases",
	"Data management on novel hardware",
	"Real-time databases, Sensors and IoT, Stream Databases",
	"Crowd-sourcing",
	"Provenance and Workflows",
	"Profile-based and Context-Aware Data Management",
	"Process Mining",
	"Provenance analytics",
	"Debugging",
	"Specialized and Domain-Specific Data Management",
	"Spatial Databases and Temporal Databases",
	"Crowdsourcing",
	"Ethical Data Management",
	"Fuzzy, Probabilistic and Approximate Data",
	"Image and Multimedia Databases",
	"Scientific and Medical Data Management",
	"Text, Semi-Structured Data, and IR",
	"Information Retrieval",
	"Text in Databases",
	"Data Extraction",
	"User Interfaces",
	"Database Usability",
	"Database support for Visual Analytics",
	"Visualization",
}

// CreateWords generates random word tuples in batches of 10000.
type CreateWords struct {
	numWords  uint64
	wordCount atomic.Uint64
}

func NewCreateWords(numWords uint64) *CreateWords {
	return &CreateWords{numWords: numWords}
}

func (op *CreateWords) Accept(exec *udo.ExecutionState[WordTuple], input *common.EmptyTuple) {
}

func (op *CreateWords) Process(exec *udo.ExecutionState[WordTuple]) bool {
	localWordCount := op.wordCount.Add(generatorBatchSize) - generatorBatchSize
	if localWordCount >= op.numWords {
		return true
	}

	seed := 42 + localWordCount
	gen := rand.New(rand.NewPCG(seed, seed))

	for i := uint64(0); i < generatorBatchSize && localWordCount+i < op.numWords; i++ {
		baseWord := generatorWords[gen.IntN(len(generatorWords))]
		// Add a random number as prefix and suffix so the words are not
		// just a bunch of identical strings.
		word := strconv.FormatUint(uint64(gen.Uint32()), 10) +
			" " + baseWord + " " +
			strconv.FormatUint(uint64(gen.Uint32()), 10)

		exec.Emit(WordTuple{Word: common.MakeStringFrom(word)})
	}

	return false
}

// The names that are randomly selected for the name attribute.
var arrayNames = []string{
	"DuckDB",
	"Hyper",
	"MSSQL",
	"MonetDB",
	"Peloton",
	"Postgres",
	"Umbra",
	"Vectorwise",
}

// The strings that are used for "invalid" values.
var arrayInvalidValues = []string{
	"",
	"F",
	"FALSE",
	"N/A",
	"NaN",
	"f",
	"false",
	"n/a",
	"nan",
}

// CreateArrays generates name plus comma-separated-values tuples where
// roughly every tenth field is an unparseable marker value.
type CreateArrays struct {
	numTuples  uint64
	tupleCount atomic.Uint64
}

func NewCreateArrays(numTuples uint64) *CreateArrays {
	return &CreateArrays{numTuples: numTuples}
}

func (op *CreateArrays) Accept(exec *udo.ExecutionState[ArrayTuple], input *common.EmptyTuple) {
}

// binomial draws the number of successes of n trials with probability p.
func binomial(gen *rand.Rand, n int, p float64) int {
	successes := 0
	for i := 0; i < n; i++ {
		if gen.Float64() < p {
			successes++
		}
	}
	return successes
}

func (op *CreateArrays) Process(exec *udo.ExecutionState[ArrayTuple]) bool {
	localTupleCount := op.tupleCount.Add(generatorBatchSize) - generatorBatchSize
	if localTupleCount >= op.numTuples {
		return true
	}

	seed := 42 + localTupleCount
	gen := rand.New(rand.NewPCG(seed, seed))

	for i := uint64(0); i < generatorBatchSize && localTupleCount+i < op.numTuples; i++ {
		name := arrayNames[gen.IntN(len(arrayNames))]

		var values []byte
		numValues := binomial(gen, 50, 0.2)
		for j := 0; j < numValues; j++ {
			if j > 0 {
				values = append(values, ',')
			}
			if gen.Float64() < 0.9 {
				values = strconv.AppendInt(values, int64(gen.IntN(1000001)), 10)
			} else {
				values = append(values, arrayInvalidValues[gen.IntN(len(arrayInvalidValues))]...)
			}
		}

		exec.Emit(ArrayTuple{
			Name:   common.MakeStringFrom(name),
			Values: common.MakeString(values),
		})
	}

	return false
}
