package cmd

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"

	"github.com/asticode/go-astits"
	"github.com/eluv-io/errors-go"
	"github.com/spf13/cobra"

	"github.com/Eyevinn/mp2ts-klv/common"
	"github.com/Eyevinn/mp2ts-klv/internal/source"
)

func InitInfo(cmdRoot *cobra.Command) error {
	cmdInfo := &cobra.Command{
		Use:   "info [flags] input",
		Short: "List elementary streams and services",
		Long: `List the elementary streams of the first PMT, marking KLV metadata
streams, followed by the SDT services when present.`,
		Args: cobra.ExactArgs(1),
		RunE: doInfo,
	}
	cmdRoot.AddCommand(cmdInfo)

	cmdInfo.Flags().Bool(common.FlagIndent, false, "indent JSON output")
	cmdInfo.Flags().Bool("service", true, "wait for and print SDT service information")

	return nil
}

func doInfo(cmd *cobra.Command, args []string) error {
	o, err := common.LoadOptions(cmd.Flags())
	if err != nil {
		return err
	}
	showService, err := cmd.Flags().GetBool("service")
	if err != nil {
		return err
	}
	rc, err := source.Open(args[0])
	if err != nil {
		return err
	}
	defer rc.Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return info(ctx, cmd.OutOrStdout(), rc, o.Indent, showService)
}

func info(ctx context.Context, w io.Writer, r io.Reader, indent, showService bool) error {
	rd := bufio.NewReaderSize(r, 1000*common.PacketSize)
	dmx := astits.NewDemuxer(ctx, rd)
	jp := &common.JsonPrinter{W: w, Indent: indent}
	pmtSeen := false
	for {
		d, err := dmx.NextData()
		if err != nil {
			if stderrors.Is(err, astits.ErrNoMorePackets) || ctx.Err() != nil {
				break
			}
			return errors.E("info", errors.K.Invalid, err)
		}
		if !pmtSeen && d.PMT != nil {
			for _, es := range d.PMT.ElementaryStreams {
				jp.Print(common.ParseAstitsElementaryStreamInfo(es), true)
			}
			pmtSeen = true
			if !showService {
				break
			}
		}
		if showService && d.SDT != nil {
			jp.Print(common.ToSdtInfo(d.SDT), true)
			if pmtSeen {
				break
			}
			showService = false
		}
	}
	if !pmtSeen {
		log.Warn("no PMT found")
	}
	return jp.Error()
}
