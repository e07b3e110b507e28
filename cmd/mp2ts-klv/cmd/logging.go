// Package cmd holds the mp2ts-klv subcommands.
package cmd

import (
	elog "github.com/eluv-io/log-go"
	"github.com/spf13/cobra"

	"github.com/Eyevinn/mp2ts-klv/common"
)

var log = elog.Get("/mp2ts-klv/cmd")

// InitLogging adds the log flags to cmdRoot and configures log-go before
// any subcommand runs. Logs never go to stdout, which carries the JSON.
func InitLogging(cmdRoot *cobra.Command) error {
	cmdRoot.PersistentFlags().String(common.FlagLogLevel, "warn", "log level: debug, info, warn or error")
	cmdRoot.PersistentFlags().String("log-file", "mp2ts-klv.log", "log file")
	cmdRoot.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		o, err := common.LoadOptions(cmd.Flags())
		if err != nil {
			return err
		}
		logFile, err := cmd.Flags().GetString("log-file")
		if err != nil {
			return err
		}
		elog.SetDefault(&elog.Config{
			Level:   o.LogLevel,
			Handler: "text",
			File: &elog.LumberjackConfig{
				Filename:  logFile,
				LocalTime: true,
			},
		})
		log.Debug("starting", "command", cmd.Name(), "args", args)
		return nil
	}
	return nil
}
