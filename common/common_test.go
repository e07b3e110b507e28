package common

import (
	"bytes"
	"testing"

	"github.com/asticode/go-astits"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestSignedPTSDiff(t *testing.T) {
	require.Equal(t, int64(3000), SignedPTSDiff(6000, 3000))
	require.Equal(t, int64(-3000), SignedPTSDiff(3000, 6000))
	require.Equal(t, int64(3000), SignedPTSDiff(2000, PtsWrap-1000))
}

func TestJsonPrinter(t *testing.T) {
	var buf bytes.Buffer
	jp := &JsonPrinter{W: &buf}
	jp.Print(map[string]string{"ul": "<06>"}, true)
	jp.Print("hidden", false)
	require.NoError(t, jp.Error())
	require.Equal(t, "{\"ul\":\"<06>\"}\n", buf.String())
	require.Equal(t, 1, jp.Count)

	jp.Print(func() {}, true)
	require.Error(t, jp.Error())
	jp.Print("after error", true)
	require.Equal(t, 1, jp.Count)
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int(FlagPID, -1, "")
	fs.Int(FlagMaxDepth, 16, "")
	fs.Bool(FlagDropUnverified, false, "")
	fs.Uint64(FlagStallBytes, 0, "")
	fs.String(FlagLogLevel, "warn", "")
	return fs
}

func TestLoadOptions(t *testing.T) {
	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--max-depth", "4"}))
	t.Setenv("KLV_MAX_DEPTH", "8")
	t.Setenv("KLV_PID", "257")
	t.Setenv("KLV_DROP_UNVERIFIED", "true")
	t.Setenv("KLV_STALL_BYTES", "1000000")

	o, err := LoadOptions(fs)
	require.NoError(t, err)
	require.Equal(t, 4, o.MaxDepth, "explicit flag wins over environment")
	require.Equal(t, 257, o.PID)
	require.True(t, o.DropUnverified)
	require.Equal(t, uint64(1000000), o.StallBytes)
	require.Equal(t, "warn", o.LogLevel)
}

func TestParseAstitsElementaryStreamInfo(t *testing.T) {
	cases := []struct {
		name  string
		es    *astits.PMTElementaryStream
		codec string
		klv   bool
	}{
		{"avc", &astits.PMTElementaryStream{ElementaryPID: 256, StreamType: astits.StreamTypeH264Video}, "AVC", false},
		{"metadata pes", &astits.PMTElementaryStream{ElementaryPID: 257, StreamType: 0x15}, "KLV", true},
		{"private data with KLVA", &astits.PMTElementaryStream{
			ElementaryPID: 258, StreamType: 0x06,
			ElementaryStreamDescriptors: []*astits.Descriptor{{
				Tag:          astits.DescriptorTagRegistration,
				Registration: &astits.DescriptorRegistration{FormatIdentifier: 0x4B4C5641},
			}},
		}, "KLV", true},
		{"private data other registration", &astits.PMTElementaryStream{
			ElementaryPID: 259, StreamType: 0x06,
			ElementaryStreamDescriptors: []*astits.Descriptor{{
				Tag:          astits.DescriptorTagRegistration,
				Registration: &astits.DescriptorRegistration{FormatIdentifier: 0x41432D33},
			}},
		}, "", false},
		{"private data metadata descriptor", &astits.PMTElementaryStream{
			ElementaryPID: 260, StreamType: 0x06,
			ElementaryStreamDescriptors: []*astits.Descriptor{{Tag: 0x26}},
		}, "KLV", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			info := ParseAstitsElementaryStreamInfo(c.es)
			require.Equal(t, c.es.ElementaryPID, info.PID)
			require.Equal(t, c.codec, info.Codec)
			require.Equal(t, c.klv, info.KLV)
		})
	}
}

func TestToSdtInfo(t *testing.T) {
	sdt := &astits.SDTData{Services: []*astits.SDTDataService{
		{ServiceID: 1, Descriptors: []*astits.Descriptor{{
			Tag:     astits.DescriptorTagService,
			Service: &astits.DescriptorService{Name: []byte("UAV 1"), Provider: []byte("ISR")},
		}}},
		{ServiceID: 2},
	}}
	require.Equal(t, SdtInfo{Services: []ServiceInfo{
		{ServiceID: 1, ServiceName: "UAV 1", ProviderName: "ISR"},
		{ServiceID: 2},
	}}, ToSdtInfo(sdt))
}
