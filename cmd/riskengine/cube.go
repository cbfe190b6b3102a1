package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/cube"
	"github.com/wyfcoding/riskengine/datetime"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/runid"
	"github.com/wyfcoding/riskengine/storage"
)

func newCubeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cube",
		Short: "Inspect, export and join NPV cube files",
	}
	cmd.AddCommand(newCubeInfoCmd(), newCubeExportCmd(), newCubeJoinCmd(), newCubeSaveCmd(), newCubeListCmd())
	return cmd
}

func readCube(path string) (cube.NPVCube, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return cube.Decode(f)
}

func writeCube(path string, c cube.NPVCube) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := cube.Encode(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// depthStats 某一深度上 T0 与主体数据的极值和均值。
type depthStats struct {
	min, max, sum float64
	n             int
}

func (s *depthStats) add(v float64) {
	if s.n == 0 {
		s.min, s.max = v, v
	}
	s.min, s.max = math.Min(s.min, v), math.Max(s.max, v)
	s.sum += v
	s.n++
}

func cubeStats(c cube.NPVCube) ([]depthStats, error) {
	stats := make([]depthStats, c.Depth())
	for i := range c.NumIDs() {
		for k := range c.Depth() {
			for d := range c.NumDates() {
				for s := range c.Samples() {
					v, err := c.Get(i, d, s, k)
					if err != nil {
						return nil, err
					}
					stats[k].add(v)
				}
			}
		}
	}
	return stats, nil
}

func newCubeInfoCmd() *cobra.Command {
	var showIDs bool
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Print the shape and value summary of a cube file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := readCube(args[0])
			if err != nil {
				return fmt.Errorf("read cube: %w", err)
			}
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "file\t%s\n", args[0])
			fmt.Fprintf(tw, "precision\t%s\n", cube.Precision(c))
			fmt.Fprintf(tw, "asof\t%s\n", datetime.FormatDate(c.AsOf()))
			fmt.Fprintf(tw, "ids\t%d\n", c.NumIDs())
			fmt.Fprintf(tw, "dates\t%d", c.NumDates())
			if n := c.NumDates(); n > 0 {
				fmt.Fprintf(tw, " (%s .. %s)", datetime.FormatDate(c.Dates()[0]), datetime.FormatDate(c.Dates()[n-1]))
			}
			fmt.Fprintln(tw)
			fmt.Fprintf(tw, "samples\t%d\n", c.Samples())
			fmt.Fprintf(tw, "depth\t%d\n", c.Depth())

			stats, err := cubeStats(c)
			if err != nil {
				return err
			}
			for k, s := range stats {
				if s.n == 0 {
					continue
				}
				fmt.Fprintf(tw, "depth %d\tmin=%g max=%g mean=%g\n", k, s.min, s.max, s.sum/float64(s.n))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if showIDs {
				for _, id := range c.IDs() {
					fmt.Fprintln(out, id)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showIDs, "ids", false, "also list every id")
	return cmd
}

// exportCSV 每个单元一行：id,date,sample,depth,value；T0 行的 sample 列为 t0。
func exportCSV(w io.Writer, c cube.NPVCube, depth int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "date", "sample", "depth", "value"}); err != nil {
		return err
	}
	depths := make([]int, 0, c.Depth())
	for k := range c.Depth() {
		if depth < 0 || depth == k {
			depths = append(depths, k)
		}
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	asOf := datetime.FormatDate(c.AsOf())
	for i, id := range c.IDs() {
		for _, k := range depths {
			v, err := c.GetT0(i, k)
			if err != nil {
				return err
			}
			if err := cw.Write([]string{id, asOf, "t0", strconv.Itoa(k), f(v)}); err != nil {
				return err
			}
		}
		for d, date := range c.Dates() {
			ds := datetime.FormatDate(date)
			for s := range c.Samples() {
				for _, k := range depths {
					v, err := c.Get(i, d, s, k)
					if err != nil {
						return err
					}
					if err := cw.Write([]string{id, ds, strconv.Itoa(s), strconv.Itoa(k), f(v)}); err != nil {
						return err
					}
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func newCubeExportCmd() *cobra.Command {
	var (
		output string
		depth  int
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export a cube file as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := readCube(args[0])
			if err != nil {
				return fmt.Errorf("read cube: %w", err)
			}
			if depth >= c.Depth() {
				return fmt.Errorf("depth %d out of range, cube depth is %d", depth, c.Depth())
			}
			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return exportCSV(w, c, depth)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output CSV path (default stdout)")
	cmd.Flags().IntVar(&depth, "depth", -1, "export a single depth (default all)")
	return cmd
}

func newCubeJoinCmd() *cobra.Command {
	var (
		output      string
		accumulator string
		initial     float64
		unique      bool
	)
	cmd := &cobra.Command{
		Use:   "join <file> <file>...",
		Short: "Join cubes with identical grids into one cube file",
		Long: `Join reads several cube files sharing as-of date, dates, samples and depth,
and writes a single cube whose ids are the sorted union of the inputs.
Ids present in several inputs are combined with the accumulator expression
(variables acc and value, default acc + value).

Example:
  riskengine cube join a.cube.gz b.cube.gz -o all.cube.gz --accumulator "max(acc, value)"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := cube.AccumulatorFromConfig(accumulator)
			if err != nil {
				return err
			}
			cubes := make([]cube.NPVCube, 0, len(args))
			for _, p := range args {
				c, err := readCube(p)
				if err != nil {
					return fmt.Errorf("read cube %s: %w", p, err)
				}
				cubes = append(cubes, c)
			}
			joint, err := cube.NewJointCube(cubes, cube.RequireUniqueIDs(unique), cube.WithAccumulator(acc, initial))
			if err != nil {
				return err
			}
			out, err := materialize(joint, cube.Precision(cubes[0]))
			if err != nil {
				return err
			}
			if err := writeCube(output, out); err != nil {
				return fmt.Errorf("write cube: %w", err)
			}
			logging.Default().Info("cubes joined", "inputs", len(cubes), "ids", out.NumIDs(), "output", output)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d ids)\n", output, out.NumIDs())
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output cube path (required)")
	cmd.Flags().StringVar(&accumulator, "accumulator", "", "expression combining duplicate ids")
	cmd.Flags().Float64Var(&initial, "init", 0, "accumulator initial value")
	cmd.Flags().BoolVar(&unique, "unique", false, "fail when an id appears in more than one input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// materialize 把任意立方体复制为内存立方体，以便编码写出。
func materialize(src cube.NPVCube, precision string) (cube.NPVCube, error) {
	dst, err := cube.NewCube(precision, src.AsOf(), src.IDs(), src.Dates(), src.Samples(), src.Depth())
	if err != nil {
		return nil, err
	}
	for i := range src.NumIDs() {
		for k := range src.Depth() {
			v, err := src.GetT0(i, k)
			if err != nil {
				return nil, err
			}
			if err := dst.SetT0(v, i, k); err != nil {
				return nil, err
			}
			for d := range src.NumDates() {
				for s := range src.Samples() {
					v, err := src.Get(i, d, s, k)
					if err != nil {
						return nil, err
					}
					if err := dst.Set(v, i, d, s, k); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return dst, nil
}

// openStore 按 [cube] 段打开立方体存储，minio 模式下连接 [minio] 段配置的对象存储。
func openStore(conf *config.Config) (cube.Store, error) {
	logger := logging.Component(nil, "cube_store")
	var backend storage.Storage
	if conf.Cube.Store == "minio" {
		client, err := storage.NewMinIOClient(conf.Minio, logger)
		if err != nil {
			return nil, err
		}
		backend = client
	}
	return cube.NewStore(conf.Cube, backend, logger)
}

func readConfig(path string) (*config.Config, error) {
	var conf config.Config
	if err := config.Read(path, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func newCubeSaveCmd() *cobra.Command {
	var cfgPath, name string
	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Store a cube file in the configured cube store",
		Long: `Save copies a cube file into the store named by the [cube] section.
Without --name the cube is stored under a fresh run id from the [run_id] generator.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := readConfig(cfgPath)
			if err != nil {
				return err
			}
			c, err := readCube(args[0])
			if err != nil {
				return fmt.Errorf("read cube: %w", err)
			}
			if name == "" {
				gen, err := runid.New(conf.RunID)
				if err != nil {
					return err
				}
				if name, err = gen.Next(); err != nil {
					return err
				}
			}
			store, err := openStore(conf)
			if err != nil {
				return err
			}
			if err := store.Save(cmd.Context(), name, c); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "engine configuration file (required)")
	cmd.Flags().StringVar(&name, "name", "", "store name (default a new run id)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newCubeListCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cubes in the configured cube store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := readConfig(cfgPath)
			if err != nil {
				return err
			}
			store, err := openStore(conf)
			if err != nil {
				return err
			}
			names, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "engine configuration file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
