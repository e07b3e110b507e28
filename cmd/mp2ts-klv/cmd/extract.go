package cmd

import (
	"context"
	"io"
	"os"

	"github.com/eluv-io/errors-go"
	"github.com/spf13/cobra"

	"github.com/Eyevinn/mp2ts-klv/common"
	"github.com/Eyevinn/mp2ts-klv/internal/klv"
	"github.com/Eyevinn/mp2ts-klv/internal/pipeline"
	"github.com/Eyevinn/mp2ts-klv/internal/source"
)

func InitExtract(cmdRoot *cobra.Command) error {
	cmdExtract := &cobra.Command{
		Use:   "extract [flags] input...",
		Short: "Extract KLV records",
		Long: `Extract KLV records from one or more transport streams. Inputs are
processed concurrently and every access unit is printed as one JSON line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: doExtract,
	}
	cmdRoot.AddCommand(cmdExtract)

	fs := cmdExtract.Flags()
	fs.Int(common.FlagPID, pipeline.AutoPID, "metadata PID (-1 detects KLV streams from the PMT)")
	fs.Int(common.FlagMaxDepth, klv.DefaultMaxDepth, "max Local Set nesting depth")
	fs.Int(common.FlagMaxLengthOctets, klv.DefaultMaxLengthOctets, "max BER long-form length octets")
	fs.Bool(common.FlagDropUnverified, false, "drop records that fail checksum verification")
	fs.Bool(common.FlagSkipChecksums, false, "do not verify checksums")
	fs.Uint64(common.FlagStallBytes, 0, "stop a stream after this many bytes without KLV (0 disables)")
	fs.Bool(common.FlagIndent, false, "indent JSON output")
	fs.Bool(common.FlagStats, false, "print per-stream statistics at the end")
	fs.StringP(common.FlagOutput, "o", "-", "output file (- for stdout)")

	return nil
}

// PipelineConfig maps command line options onto a pipeline configuration.
func PipelineConfig(o common.Options) pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.MetadataPID = o.PID
	cfg.DropUnverified = o.DropUnverified
	cfg.StallBytes = o.StallBytes
	cfg.KLV = klv.Config{
		MaxDepth:        o.MaxDepth,
		MaxLengthOctets: o.MaxLengthOctets,
		SkipChecksums:   o.SkipChecksums,
	}
	return cfg
}

func doExtract(cmd *cobra.Command, args []string) error {
	o, err := common.LoadOptions(cmd.Flags())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if o.OutPutTo != "" && o.OutPutTo != "-" {
		fo, err := os.Create(o.OutPutTo)
		if err != nil {
			return errors.E("extract", errors.K.IO, err, "output", o.OutPutTo)
		}
		defer fo.Close()
		w = fo
	}
	return extract(cmd.Context(), w, args, o)
}

func extract(ctx context.Context, w io.Writer, inputs []string, o common.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sources := make([]pipeline.Source, 0, len(inputs))
	for _, in := range inputs {
		rc, err := source.Open(in)
		if err != nil {
			closeSources(sources)
			return err
		}
		sources = append(sources, pipeline.Source{Name: in, Reader: rc})
	}
	defer closeSources(sources)

	jp := &common.JsonPrinter{W: w, Indent: o.Indent}
	r := &pipeline.Runner{Config: PipelineConfig(o)}
	results, err := r.Run(ctx, sources, func(stream string, u *pipeline.Unit) error {
		jp.Print(pipeline.ToUnitInfo(stream, u), true)
		return jp.Error()
	})
	if err != nil {
		return err
	}

	var failed []string
	for _, res := range results {
		if res.Err != nil {
			log.Warn("stream ended with error", "stream", res.Name, "error", res.Err)
			res.Stats.Errors = append(res.Stats.Errors, res.Err.Error())
			if res.Err != pipeline.ErrStalled {
				failed = append(failed, res.Name)
			}
		}
		jp.Print(res.Stats, o.ShowStatistics)
	}
	log.Info("extract done", "streams", len(results), "printed", jp.Count)
	if err := jp.Error(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return errors.E("extract", errors.K.IO, "reason", "input failed", "streams", failed)
	}
	return nil
}

func closeSources(sources []pipeline.Source) {
	for _, src := range sources {
		if c, ok := src.Reader.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
