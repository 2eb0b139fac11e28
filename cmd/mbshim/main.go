// Command mbshim runs minibatch loops over a synthetic corpus through
// ReaderShims, one per simulated worker, and prints per-worker statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/devu10/CNTK/prefetch"
	"github.com/devu10/CNTK/reader"
	"github.com/devu10/CNTK/shim"
	"github.com/devu10/CNTK/stream"
	"github.com/devu10/CNTK/tensor"
)

type options struct {
	workers      int
	mbSize       int
	epochs       int
	epochSamples int
	sequences    int
	maxLength    int
	seed         int64
	sync         bool
	launchMode   string
	configFile   string
	compute      time.Duration
}

type workerResult struct {
	rank    int
	loopID  string
	dataEnd bool
	stats   shim.Stats
}

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		klog.Flush()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "mbshim",
		Short:         "Run synthetic minibatch loops through the reader shim",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.workers, "workers", "w", 1, "Number of distributed workers")
	flags.IntVarP(&opts.mbSize, "mb-size", "m", 64, "Global minibatch size in samples")
	flags.IntVarP(&opts.epochs, "epochs", "e", 1, "Number of epochs to run")
	flags.IntVar(&opts.epochSamples, "epoch-samples", 0, "Epoch size in samples (0 reads the corpus once)")
	flags.IntVar(&opts.sequences, "sequences", 1000, "Number of sequences in the synthetic corpus")
	flags.IntVar(&opts.maxLength, "max-length", 1, "Maximum sequence length")
	flags.Int64Var(&opts.seed, "seed", 1, "Seed of the synthetic corpus")
	flags.BoolVar(&opts.sync, "sync", false, "Read inline instead of prefetching (same as --launch-mode=sync)")
	flags.StringVar(&opts.launchMode, "launch-mode", "", "Prefetch launch mode: async or sync (default from config)")
	flags.StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	flags.DurationVar(&opts.compute, "compute", 0, "Simulated compute time per minibatch (e.g. 5ms)")
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	return cmd
}

func (o options) validate() error {
	if o.workers <= 0 {
		return errors.New("--workers must be positive")
	}
	if o.epochs <= 0 {
		return errors.New("--epochs must be positive")
	}
	if o.sequences <= 0 {
		return errors.New("--sequences must be positive")
	}
	return nil
}

// loadConfig layers the config file, the environment and the command line,
// in that order.
func loadConfig(opts options) (shim.ConfigValues, error) {
	values := shim.DefaultConfigValues()
	if opts.configFile != "" {
		var err error
		if values, err = shim.LoadConfigFile(opts.configFile); err != nil {
			return values, err
		}
	}

	values, err := shim.ApplyEnv(values)
	if err != nil {
		return values, err
	}
	if opts.launchMode != "" {
		mode, err := prefetch.ParseLaunchMode(opts.launchMode)
		if err != nil {
			return values, fmt.Errorf("--launch-mode: %w", err)
		}
		values.Prefetch = mode == prefetch.LaunchAsync
	}
	if opts.sync {
		values.Prefetch = false
	}
	return values, nil
}

func run(ctx context.Context, w io.Writer, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := opts.validate(); err != nil {
		return err
	}

	values, err := loadConfig(opts)
	if err != nil {
		return err
	}
	config := shim.NewConstantConfig(&values)
	klog.V(2).Infof("Running %d workers with prefetch=%v, drain timeout %v", opts.workers, values.Prefetch, values.DrainTimeout)

	results := make([]workerResult, opts.workers)
	g, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < opts.workers; rank++ {
		rank := rank
		g.Go(func() error {
			res, err := runWorker(ctx, rank, opts, config)
			if err != nil {
				return fmt.Errorf("worker %d: %w", rank, err)
			}
			results[rank] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printStats(w, results)
	return nil
}

func runWorker(ctx context.Context, rank int, opts options, config shim.Config) (workerResult, error) {
	res := workerResult{rank: rank}

	logger := klog.Background().WithValues("worker", rank)
	factory := func(values shim.ConfigValues) (reader.Reader, error) {
		logger.V(4).Info("Creating synthetic reader", "sequences", opts.sequences, "prefetch", values.Prefetch)
		r, err := reader.Synthetic(reader.SyntheticConfig{
			NumSequences:       opts.sequences,
			MaxSequenceLength:  opts.maxLength,
			FeatureElementType: stream.Float32,
			Seed:               opts.seed,
			Repeat:             opts.epochSamples > 0,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	s, err := shim.NewFromConfig(factory, config)
	if err != nil {
		return res, err
	}
	stats := shim.NewBasicStatsCollector()
	s.WithLogger(shim.NewLogrLogger(logger)).WithStats(stats)
	defer s.Close()

	inputs := []stream.InputDescription{
		{Name: reader.FeaturesStream, DeviceID: tensor.CPUDevice, StorageType: stream.StorageDense},
		{Name: reader.LabelsStream, DeviceID: tensor.CPUDevice, StorageType: stream.StorageSparseCSC},
	}
	out := map[string]*shim.StreamInput{
		reader.FeaturesStream: {Matrix: tensor.NewMatrix(tensor.CPUDevice), Layout: &tensor.MBLayout{}},
		reader.LabelsStream:   {Matrix: tensor.NewMatrix(tensor.CPUDevice)},
	}

	for epoch := 0; epoch < opts.epochs; epoch++ {
		if err := s.StartDistributedMinibatchLoop(opts.mbSize, epoch, rank, opts.workers, inputs, opts.epochSamples); err != nil {
			return res, err
		}
		res.loopID = s.LoopID().String()

		for {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			ok, err := s.GetMinibatch(out)
			if err != nil {
				return res, err
			}
			if !ok {
				break
			}
			if opts.compute > 0 {
				time.Sleep(opts.compute)
			}
		}

		if s.DataEnd() {
			res.dataEnd = true
			break
		}
	}

	res.stats = stats.GetStats()
	return res, nil
}

func printStats(w io.Writer, results []workerResult) {
	var data [][]string
	for _, r := range results {
		s := r.stats
		data = append(data, []string{
			strconv.Itoa(r.rank),
			shortID(r.loopID),
			strconv.FormatUint(s.Minibatches, 10),
			strconv.FormatUint(s.Samples, 10),
			strconv.FormatUint(s.Epochs, 10),
			s.AveragePrefetchTime().Round(time.Microsecond).String(),
			s.AverageWaitTime().Round(time.Microsecond).String(),
			fmt.Sprintf("%.1f%%", s.Overlap()),
			strconv.FormatBool(r.dataEnd),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"WORKER", "LOOP", "MINIBATCHES", "SAMPLES", "EPOCHS", "PREFETCH", "WAIT", "OVERLAP", "DATA END"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
