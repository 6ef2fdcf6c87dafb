package control

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// maximum payload accepted by ReadFrame.
const maxFrameSize = 16 * 1024 * 1024

func marshalFrame(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("payload too big (%d bytes)", len(payload))
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	return buf, nil
}

// ReadFrame reads a length-prefixed message.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	_, err := io.ReadFull(r, header[:])
	if err != nil {
		return nil, err
	}

	l := binary.BigEndian.Uint32(header[:])
	if l > maxFrameSize {
		return nil, fmt.Errorf("frame too big (%d bytes)", l)
	}

	payload := make([]byte, l)
	_, err = io.ReadFull(r, payload)
	if err != nil {
		return nil, err
	}

	return payload, nil
}
