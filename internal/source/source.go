// Package source opens transport stream inputs: stdin, files, UDP or RTP
// sockets (unicast or multicast) and SRT callers.
package source

import (
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/eluv-io/errors-go"
	elog "github.com/eluv-io/log-go"
	"github.com/pion/rtp"
	srtgo "github.com/zsiec/srtgo"
)

var log = elog.Get("/mp2ts-klv/source")

const (
	udpReadBufferSize = 10 * 1024 * 1024
	maxDatagramSize   = 64 * 1024
	tsPacketSize      = 188
	srtLatencyNs      = 120_000_000
)

// Open returns a reader for input: "-" for stdin, a path or file:// URL,
// udp://host:port, rtp://host:port or srt://host:port[?streamid=id].
func Open(input string) (io.ReadCloser, error) {
	e := errors.Template("source.Open", errors.K.IO, "input", input)
	switch {
	case input == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(input, "udp://"):
		conn, err := listen(strings.TrimPrefix(input, "udp://"))
		if err != nil {
			return nil, e(err)
		}
		return newDatagramReader(conn, nil), nil
	case strings.HasPrefix(input, "rtp://"):
		conn, err := listen(strings.TrimPrefix(input, "rtp://"))
		if err != nil {
			return nil, e(err)
		}
		return newDatagramReader(conn, &rtpDepacketizer{}), nil
	case strings.HasPrefix(input, "srt://"):
		conn, err := dialSRT(input)
		if err != nil {
			return nil, e(err)
		}
		return conn, nil
	case strings.Contains(input, "://") && !strings.HasPrefix(input, "file://"):
		return nil, errors.E("source.Open", errors.K.Invalid, "reason", "unsupported scheme", "input", input)
	}
	fh, err := os.Open(strings.TrimPrefix(input, "file://"))
	if err != nil {
		return nil, e(err)
	}
	return fh, nil
}

func listen(hostPort string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		return nil, err
	}
	var conn *net.UDPConn
	if addr.IP.IsMulticast() {
		conn, err = net.ListenMulticastUDP("udp", nil, addr)
		if err != nil {
			return nil, err
		}
		log.Debug("listening on UDP multicast address", "addr", addr)
	} else {
		conn, err = net.ListenUDP("udp", addr)
		if err != nil {
			return nil, err
		}
		log.Debug("listening on UDP address", "addr", addr)
	}
	if err = conn.SetReadBuffer(udpReadBufferSize); err != nil {
		log.Warn("failed to set UDP read buffer", "error", err)
	}
	return conn, nil
}

// dialSRT connects as an SRT caller. The stream id defaults to empty.
func dialSRT(rawURL string) (*srtgo.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errors.E("source.srt", errors.K.Invalid, "reason", "missing host", "url", rawURL)
	}
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = u.Query().Get("streamid")
	conn, err := srtgo.Dial(u.Host, cfg)
	if err != nil {
		return nil, err
	}
	log.Debug("connected to SRT listener", "addr", u.Host, "streamid", cfg.StreamID)
	return conn, nil
}

// depacketizer extracts transport stream bytes from one datagram. An error
// drops the datagram.
type depacketizer interface {
	payload(datagram []byte) ([]byte, error)
}

// datagramReader turns a datagram socket into a byte stream. Datagrams are
// never truncated by a short Read.
type datagramReader struct {
	conn    io.ReadCloser
	dp      depacketizer
	buf     []byte
	pending []byte
}

func newDatagramReader(conn io.ReadCloser, dp depacketizer) *datagramReader {
	return &datagramReader{conn: conn, dp: dp, buf: make([]byte, maxDatagramSize)}
}

func (r *datagramReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		n, err := r.conn.Read(r.buf)
		if err != nil {
			return 0, err
		}
		data := r.buf[:n]
		if r.dp != nil {
			if data, err = r.dp.payload(data); err != nil {
				log.Debug("dropping datagram", "error", err)
				continue
			}
		}
		r.pending = data
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *datagramReader) Close() error {
	if lost := r.Lost(); lost > 0 {
		log.Warn("datagrams lost", "count", lost)
	}
	return r.conn.Close()
}

// Lost returns the number of datagrams the depacketizer found missing.
func (r *datagramReader) Lost() uint64 {
	if d, ok := r.dp.(*rtpDepacketizer); ok {
		return d.lost
	}
	return 0
}

// rtpDepacketizer strips RTP headers from MP2T/RTP (RFC 2250) datagrams.
type rtpDepacketizer struct {
	pkt     rtp.Packet
	started bool
	nextSeq uint16
	lost    uint64
}

func (d *rtpDepacketizer) payload(datagram []byte) ([]byte, error) {
	if err := d.pkt.Unmarshal(datagram); err != nil {
		return nil, errors.E("source.rtp", errors.K.Invalid, err)
	}
	if len(d.pkt.Payload)%tsPacketSize != 0 {
		return nil, errors.E("source.rtp", errors.K.Invalid,
			"reason", "payload is not a whole number of TS packets", "size", len(d.pkt.Payload))
	}
	if d.started && d.pkt.SequenceNumber != d.nextSeq {
		d.lost += uint64(d.pkt.SequenceNumber - d.nextSeq)
		log.Debug("RTP sequence gap", "expected", d.nextSeq, "got", d.pkt.SequenceNumber)
	}
	d.started = true
	d.nextSeq = d.pkt.SequenceNumber + 1
	return d.pkt.Payload, nil
}
