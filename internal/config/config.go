// Package config loads the engine's tunable knobs from a TOML file with
// CLI-flag overrides: the file supplies defaults, later flags win.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/arnavk/pqgraph/internal/graph"
	"github.com/arnavk/pqgraph/internal/pq"
	"github.com/arnavk/pqgraph/internal/simdkernel"
)

// Config holds every builder/search/PQ/cache tunable knob.
type Config struct {
	M                int     `toml:"m"`
	BeamWidth        int     `toml:"beam-width"`
	Alpha            float64 `toml:"alpha"`
	NeighborOverflow float64 `toml:"neighbor-overflow"`
	AddHierarchy     bool    `toml:"add-hierarchy"`

	SubspaceCount        int     `toml:"subspace-count"`
	ClusterCount         int     `toml:"cluster-count"`
	AnisotropicThreshold float32 `toml:"anisotropic-threshold"`

	RerankK   int     `toml:"rerank-k"`
	Threshold float32 `toml:"threshold"`

	ThresholdWindow int     `toml:"threshold-window"`
	MinSamples      int     `toml:"min-samples"`
	StopProbability float64 `toml:"stop-probability"`

	CacheDepth int `toml:"cache-depth"`

	Metric string `toml:"metric"`
}

// Default returns reasonable typical values.
func Default() Config {
	gc := graph.DefaultConfig()
	return Config{
		M:                    gc.M,
		BeamWidth:            gc.BeamWidth,
		Alpha:                gc.Alpha,
		NeighborOverflow:     gc.NeighborOverflow,
		AddHierarchy:         gc.AddHierarchy,
		SubspaceCount:        8,
		ClusterCount:         256,
		AnisotropicThreshold: 0,
		RerankK:              0,
		Threshold:            0,
		ThresholdWindow:      128,
		MinSamples:           32,
		StopProbability:      0.1,
		CacheDepth:           1,
		Metric:               "euclidean",
	}
}

// Load reads path (if it exists; a missing file is not an error — Default
// is returned unchanged) and overlays it onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// GraphConfig projects the shared builder knobs into a graph.Config.
func (c Config) GraphConfig() graph.Config {
	return graph.Config{
		M:                c.M,
		BeamWidth:        c.BeamWidth,
		Alpha:            c.Alpha,
		NeighborOverflow: c.NeighborOverflow,
		AddHierarchy:     c.AddHierarchy,
	}
}

// PQTrainConfig projects the PQ knobs into a pq.TrainConfig.
func (c Config) PQTrainConfig(seed int64) pq.TrainConfig {
	return pq.TrainConfig{
		SubspaceCount:        c.SubspaceCount,
		ClusterCount:         c.ClusterCount,
		Metric:               c.MetricValue(),
		Seed:                 seed,
		AnisotropicThreshold: c.AnisotropicThreshold,
	}
}

// MetricValue parses the configured metric name, defaulting to Euclidean
// on an unrecognized or empty value.
func (c Config) MetricValue() simdkernel.Metric {
	switch c.Metric {
	case "dot_product", "dot":
		return simdkernel.DotProduct
	case "cosine":
		return simdkernel.Cosine
	default:
		return simdkernel.Euclidean
	}
}
