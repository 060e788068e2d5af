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

package util

import (
	"path/filepath"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

type RuntimeOptions struct {
	NumThreads int `toml:"numThreads"`
	MorselSize int `toml:"morselSize"`
}

type BenchmarkOptions struct {
	Passes        int `toml:"passes"`
	RunsPerPass   int `toml:"runsPerPass"`
	DiscardedRuns int `toml:"discardedRuns"`
}

type Config struct {
	Runtime   RuntimeOptions   `toml:"runtime"`
	Benchmark BenchmarkOptions `toml:"benchmark"`
}

// DefaultConfig returns the configuration used when no udo.toml exists.
func DefaultConfig() Config {
	return Config{
		Runtime: RuntimeOptions{
			NumThreads: 0,
			MorselSize: 10000,
		},
		Benchmark: BenchmarkOptions{
			Passes:        3,
			RunsPerPass:   6,
			DiscardedRuns: 1,
		},
	}
}

var defCfgFilePaths = []string{".", "etc"}

const cfgFileName = "udo.toml"

// LoadConfig reads udo.toml from the known locations. A missing file is
// not an error; the defaults apply.
func LoadConfig() Config {
	cfg := DefaultConfig()
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if FileIsValid(fpath) {
			if _, err := toml.DecodeFile(fpath, &cfg); err != nil {
				Error("load config file failed",
					zap.String("fpath", fpath),
					zap.Error(err))
				continue
			}
			break
		}
	}
	return cfg
}
