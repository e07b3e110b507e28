package common

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. KLV_MAX_DEPTH.
const EnvPrefix = "KLV"

// Flag names shared by the CLI and the environment.
const (
	FlagPID             = "pid"
	FlagMaxDepth        = "max-depth"
	FlagMaxLengthOctets = "max-length-octets"
	FlagDropUnverified  = "drop-unverified"
	FlagSkipChecksums   = "skip-checksums"
	FlagStallBytes      = "stall-bytes"
	FlagLogLevel        = "log-level"
	FlagIndent          = "indent"
	FlagStats           = "stats"
	FlagOutput          = "output"
)

type Options struct {
	PID             int
	MaxDepth        int
	MaxLengthOctets int
	DropUnverified  bool
	SkipChecksums   bool
	StallBytes      uint64
	LogLevel        string
	Indent          bool
	ShowStatistics  bool
	OutPutTo        string
}

// LoadOptions reads the registered flags, with KLV_* environment variables
// taking precedence over flag defaults but not over flags set explicitly.
func LoadOptions(flags *pflag.FlagSet) (Options, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return Options{}, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return Options{
		PID:             v.GetInt(FlagPID),
		MaxDepth:        v.GetInt(FlagMaxDepth),
		MaxLengthOctets: v.GetInt(FlagMaxLengthOctets),
		DropUnverified:  v.GetBool(FlagDropUnverified),
		SkipChecksums:   v.GetBool(FlagSkipChecksums),
		StallBytes:      v.GetUint64(FlagStallBytes),
		LogLevel:        v.GetString(FlagLogLevel),
		Indent:          v.GetBool(FlagIndent),
		ShowStatistics:  v.GetBool(FlagStats),
		OutPutTo:        v.GetString(FlagOutput),
	}, nil
}
