package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/arnavk/pqgraph/internal/config"
	"github.com/arnavk/pqgraph/internal/engine"
	"github.com/arnavk/pqgraph/internal/tui"
)

var defaultConfigPath = ".annbench.toml"

func main() {
	root := &cobra.Command{
		Use:   "annbench",
		Short: "Build, query, and explore a disk-capable ANN proximity graph index",
		Long:  "annbench — approximate nearest neighbor search over a proximity graph with optional product-quantization compression.",
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to a TOML config file (missing file falls back to defaults)")

	var m int
	var beamWidth int
	var alpha float64
	var neighborOverflow float64
	var addHierarchy bool
	var metricName string
	var subspaceCount int
	var clusterCount int
	var anisotropicThreshold float64
	var cacheDepth int
	root.PersistentFlags().IntVar(&m, "m", 0, "target max degree (0 = use config/default)")
	root.PersistentFlags().IntVar(&beamWidth, "beam-width", 0, "search-list size during build (0 = use config/default)")
	root.PersistentFlags().Float64Var(&alpha, "alpha", 0, "diversity slack >= 1.0 (0 = use config/default)")
	root.PersistentFlags().Float64Var(&neighborOverflow, "neighbor-overflow", 0, "overflow ratio >= 1.0 (0 = use config/default)")
	root.PersistentFlags().BoolVar(&addHierarchy, "add-hierarchy", false, "build the multi-layer hierarchy")
	root.PersistentFlags().StringVar(&metricName, "metric", "", "dot_product | euclidean | cosine (empty = use config/default)")
	root.PersistentFlags().IntVar(&subspaceCount, "subspace-count", 0, "PQ subspace count (0 = use config/default)")
	root.PersistentFlags().IntVar(&clusterCount, "cluster-count", 0, "PQ cluster count (0 = use config/default)")
	root.PersistentFlags().Float64Var(&anisotropicThreshold, "anisotropic-threshold", 0, "PQ anisotropic loss threshold in (0,1), dot-product only")
	root.PersistentFlags().IntVar(&cacheDepth, "cache-depth", -1, "BFS preload depth on load (-1 = use config/default)")

	loadConfig := func() config.Config {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", configPath, err)
			cfg = config.Default()
		}
		if m > 0 {
			cfg.M = m
		}
		if beamWidth > 0 {
			cfg.BeamWidth = beamWidth
		}
		if alpha > 0 {
			cfg.Alpha = alpha
		}
		if neighborOverflow > 0 {
			cfg.NeighborOverflow = neighborOverflow
		}
		if addHierarchy {
			cfg.AddHierarchy = true
		}
		if metricName != "" {
			cfg.Metric = metricName
		}
		if subspaceCount > 0 {
			cfg.SubspaceCount = subspaceCount
		}
		if clusterCount > 0 {
			cfg.ClusterCount = clusterCount
		}
		if anisotropicThreshold > 0 {
			cfg.AnisotropicThreshold = float32(anisotropicThreshold)
		}
		if cacheDepth >= 0 {
			cfg.CacheDepth = cacheDepth
		}
		return cfg
	}

	var compress bool
	buildCmd := &cobra.Command{
		Use:   "build <vectors-file> <index-path>",
		Short: "Build an index from a flat vector file and save it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := loadConfig()
			vecs, err := readVectorFile(args[0])
			if err != nil {
				return err
			}
			if len(vecs) == 0 {
				return fmt.Errorf("no vectors found in %s", args[0])
			}
			idx, err := engine.New(cfg, len(vecs[0]), time.Now().UnixNano())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Building index over %d vectors (dim %d)…\n", len(vecs), len(vecs[0]))
			if _, err := idx.BuildParallel(ctx, vecs, 4); err != nil {
				return err
			}
			if compress {
				fmt.Fprintln(os.Stderr, "Training PQ codebook…")
				if err := idx.Compress(time.Now().UnixNano()); err != nil {
					return err
				}
			}
			if err := idx.Save(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Done. Saved to %s.\n", args[1])
			return nil
		},
	}
	buildCmd.Flags().BoolVar(&compress, "compress", false, "train and persist a PQ codebook alongside the graph")
	root.AddCommand(buildCmd)

	var topK int
	var rerankK int
	var jsonExport bool
	searchCmd := &cobra.Command{
		Use:   "search <index-path> <query-file>",
		Short: "Run a non-interactive top-K search",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			idx, err := engine.Open(cfg, args[0])
			if err != nil {
				return err
			}
			defer idx.Close()

			queries, err := readVectorFile(args[1])
			if err != nil {
				return err
			}
			if rerankK < topK {
				rerankK = topK
			}
			for qi, q := range queries {
				res, _, err := idx.Search(context.Background(), q, topK, rerankK, nil)
				if err != nil {
					return err
				}
				if jsonExport {
					fmt.Printf("{\"query\":%d,\"results\":[", qi)
					for i := range res.Ordinals {
						if i > 0 {
							fmt.Print(",")
						}
						fmt.Printf("{\"ordinal\":%d,\"score\":%f}", res.Ordinals[i], res.Scores[i])
					}
					fmt.Println("]}")
					continue
				}
				fmt.Printf("query %d:\n", qi)
				for i := range res.Ordinals {
					fmt.Printf("  %2d  %.4f  ordinal %d\n", i+1, res.Scores[i], res.Ordinals[i])
				}
			}
			return nil
		},
	}
	searchCmd.Flags().IntVar(&topK, "top-k", 10, "number of results to return")
	searchCmd.Flags().IntVar(&rerankK, "rerank-k", 0, "working-set size for reranking (0 = top-k)")
	searchCmd.Flags().BoolVar(&jsonExport, "json", false, "output results as JSON lines")
	root.AddCommand(searchCmd)

	root.AddCommand(&cobra.Command{
		Use:   "stats <index-path>",
		Short: "Show size, dimension and metric of a saved index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			idx, err := engine.Open(cfg, args[0])
			if err != nil {
				return err
			}
			defer idx.Close()
			fmt.Printf("size:      %d\n", idx.Size())
			fmt.Printf("dimension: %d\n", idx.Dimension())
			fmt.Printf("metric:    %s\n", idx.Metric())
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "explore <index-path>",
		Short: "Launch the interactive BubbleTea index explorer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			idx, err := engine.Open(cfg, args[0])
			if err != nil {
				return err
			}
			defer idx.Close()
			m := tui.New(idx, topK)
			p := tea.NewProgram(m, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// readVectorFile reads one vector per line, each a comma-separated list of
// float32 values.
func readVectorFile(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var vecs [][]float32
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	scanner.Buffer(buf, 1<<24)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		vec := make([]float32, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			vec = append(vec, float32(v))
		}
		vecs = append(vecs, vec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vecs, nil
}
