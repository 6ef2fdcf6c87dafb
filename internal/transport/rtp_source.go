package transport

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// rtpSource is a UDP source that inspects RTP headers.
// Datagrams are forwarded unmodified, including the ones that are not RTP.
type rtpSource struct {
	*udpSource

	mutex           sync.Mutex
	packetsReceived uint64
	packetsLost     uint64
	invalidPackets  uint64
	bytesReceived   uint64
	ssrc            uint32
	lastSeq         uint16
	hasSeq          bool
}

func newRTPSource(params Params) *rtpSource {
	return &rtpSource{
		udpSource: newUDPSource(params),
	}
}

// Kind implements Element.
func (s *rtpSource) Kind() Kind {
	return KindRTP
}

// Run implements Source.
func (s *rtpSource) Run(ctx context.Context, emit func(*Buffer)) error {
	return s.run(ctx, func(data []byte) {
		s.inspect(data)

		buf := &Buffer{Data: data}
		if s.doTimestamp {
			buf.Timestamp = time.Now()
		}
		emit(buf)
	})
}

func (s *rtpSource) inspect(data []byte) {
	var h rtp.Header
	_, err := h.Unmarshal(data)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.bytesReceived += uint64(len(data))

	if err != nil {
		s.invalidPackets++
		return
	}

	s.packetsReceived++

	if !s.hasSeq || h.SSRC != s.ssrc {
		s.hasSeq = true
		s.ssrc = h.SSRC
		s.lastSeq = h.SequenceNumber
		return
	}

	diff := h.SequenceNumber - s.lastSeq

	// reordered or duplicated packets do not move the sequence forward
	if diff == 0 || diff >= 0x8000 {
		return
	}

	s.packetsLost += uint64(diff - 1)
	s.lastSeq = h.SequenceNumber
}

// Stats implements StatsProvider.
func (s *rtpSource) Stats() (Structure, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var st Structure
	st.Add("packets-received", s.packetsReceived)
	st.Add("packets-lost", s.packetsLost)
	st.Add("invalid-packets", s.invalidPackets)
	st.Add("ssrc", s.ssrc)
	st.Add("bytes-received-total", s.bytesReceived)
	return st, true
}
