package source

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

// fakeConn returns one datagram per Read.
type fakeConn struct {
	datagrams [][]byte
	closed    bool
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if len(c.datagrams) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.datagrams[0])
	c.datagrams = c.datagrams[1:]
	return n, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func tsPackets(n int, seed byte) []byte {
	b := bytes.Repeat([]byte{seed}, n*tsPacketSize)
	for i := 0; i < n; i++ {
		b[i*tsPacketSize] = 0x47
	}
	return b
}

func rtpDatagram(t *testing.T, seq uint16, payload []byte) []byte {
	t.Helper()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    33,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 3000,
			SSRC:           0x1234,
		},
		Payload: payload,
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)
	return b
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.ts")
	data := tsPackets(3, 0x11)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	for _, url := range []string{path, "file://" + path} {
		rc, err := Open(url)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.Equal(t, data, got)
		require.NoError(t, rc.Close())
	}

	_, err := Open(filepath.Join(t.TempDir(), "missing.ts"))
	require.Error(t, err)
	_, err = Open("rtmp://127.0.0.1:1935/live")
	require.Error(t, err)
	_, err = Open("srt://?streamid=cam1")
	require.Error(t, err, "SRT caller needs a host")
}

func TestDatagramReaderKeepsDatagramsWhole(t *testing.T) {
	d1, d2 := tsPackets(7, 1), tsPackets(2, 2)
	conn := &fakeConn{datagrams: [][]byte{d1, d2}}
	r := newDatagramReader(conn, nil)

	var got []byte
	buf := make([]byte, 100)
	for {
		n, err := r.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	require.Equal(t, append(append([]byte{}, d1...), d2...), got)
	require.Zero(t, r.Lost())
	require.NoError(t, r.Close())
	require.True(t, conn.closed)
}

func TestRTPDepacketizer(t *testing.T) {
	p1, p2, p3 := tsPackets(7, 1), tsPackets(7, 2), tsPackets(1, 3)
	conn := &fakeConn{datagrams: [][]byte{
		rtpDatagram(t, 65535, p1),
		// not RTP
		{0x80},
		// not whole TS packets
		rtpDatagram(t, 0, p2[:100]),
		rtpDatagram(t, 2, p3),
	}}
	dp := &rtpDepacketizer{}
	r := newDatagramReader(conn, dp)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, append(append([]byte{}, p1...), p3...), got)
	require.Equal(t, uint64(2), r.Lost())
}
