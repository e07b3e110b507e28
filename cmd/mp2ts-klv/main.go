package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Eyevinn/mp2ts-klv/cmd/mp2ts-klv/cmd"
)

var usg = `%s extracts STANAG 4609 KLV metadata from MPEG-2 transport streams.

Inputs are files, - for stdin, udp://host:port, rtp://host:port or
srt://host:port[?streamid=id] (SRT caller).
Every flag can also be set with a KLV_ prefixed environment variable,
e.g. KLV_MAX_DEPTH=8.
`

func main() {
	cmdRoot := &cobra.Command{
		Use:          "mp2ts-klv",
		Short:        "KLV metadata extractor for MPEG-2 TS",
		Long:         fmt.Sprintf(usg, "mp2ts-klv"),
		SilenceUsage: true,
	}

	for _, initCmd := range []func(*cobra.Command) error{cmd.InitLogging, cmd.InitExtract, cmd.InitInfo} {
		if err := initCmd(cmdRoot); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
