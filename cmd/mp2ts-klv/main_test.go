package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUsageListsInputSchemes(t *testing.T) {
	for _, scheme := range []string{"udp://", "rtp://", "srt://", "- for stdin"} {
		require.Contains(t, usg, scheme)
	}
}
