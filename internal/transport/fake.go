package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FakeSource is a source fed by Push, optionally generating buffers by itself.
type FakeSource struct {
	params Params

	numBuffers  int64
	size        int64
	errorAfter  int64
	doTimestamp bool

	pushes    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeSource(params Params) *FakeSource {
	return &FakeSource{
		params: params,
		size:   1316,
		pushes: make(chan []byte, 1024),
		done:   make(chan struct{}),
	}
}

// Kind implements Element.
func (s *FakeSource) Kind() Kind {
	return KindFake
}

// SetProperty implements Element.
func (s *FakeSource) SetProperty(name string, value any) bool {
	switch name {
	case "num-buffers":
		v, ok := propInt(value)
		if ok {
			s.numBuffers = v
		}
		return ok

	case "size", "sizemax":
		v, ok := propInt(value)
		if !ok || v <= 0 {
			return false
		}
		s.size = v
		return true

	case "error-after":
		v, ok := propInt(value)
		if ok {
			s.errorAfter = v
		}
		return ok

	case "do-timestamp":
		v, ok := propBool(value)
		if ok {
			s.doTimestamp = v
		}
		return ok
	}
	return false
}

// Prepare implements Element.
func (s *FakeSource) Prepare() error {
	return nil
}

// Start implements Source.
func (s *FakeSource) Start(_ context.Context) error {
	return nil
}

// Push queues data for emission. It returns false once the source is closed.
func (s *FakeSource) Push(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case s.pushes <- buf:
		return true
	case <-s.done:
		return false
	}
}

// Run implements Source.
func (s *FakeSource) Run(ctx context.Context, emit func(*Buffer)) error {
	var emitted int64

	deliver := func(data []byte) error {
		buf := &Buffer{Data: data}
		if s.doTimestamp {
			buf.Timestamp = time.Now()
		}
		emit(buf)

		emitted++
		if s.errorAfter > 0 && emitted >= s.errorAfter {
			return fmt.Errorf("fake source failed after %d buffers", emitted)
		}
		return nil
	}

	for i := int64(0); i < s.numBuffers; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		default:
		}

		err := deliver(make([]byte, s.size))
		if err != nil {
			return err
		}
	}

	for {
		select {
		case data := <-s.pushes:
			err := deliver(data)
			if err != nil {
				return err
			}

		case <-ctx.Done():
			return nil

		case <-s.done:
			return nil
		}
	}
}

// Close implements Element.
func (s *FakeSource) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// FakeSink is a sink that counts what it receives.
type FakeSink struct {
	params Params

	block        bool
	errorOnWrite bool
	sync         bool
	async        bool

	received  atomic.Uint64
	buffers   atomic.Uint64
	pacer     pacer
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeSink(params Params) *FakeSink {
	return &FakeSink{
		params: params,
		done:   make(chan struct{}),
	}
}

// Kind implements Element.
func (s *FakeSink) Kind() Kind {
	return KindFake
}

// SetProperty implements Element.
func (s *FakeSink) SetProperty(name string, value any) bool {
	var dest *bool

	switch name {
	case "block":
		dest = &s.block
	case "error-on-write":
		dest = &s.errorOnWrite
	case "sync":
		dest = &s.sync
	case "async":
		dest = &s.async
	default:
		return false
	}

	v, ok := propBool(value)
	if ok {
		*dest = v
	}
	return ok
}

// Prepare implements Element.
func (s *FakeSink) Prepare() error {
	s.pacer.enabled = s.sync
	return nil
}

// Start implements Sink.
func (s *FakeSink) Start(_ context.Context) error {
	return nil
}

// Write implements Sink.
func (s *FakeSink) Write(buf *Buffer) error {
	if s.errorOnWrite {
		return fmt.Errorf("fake sink write failed")
	}

	if s.block {
		<-s.done
		return nil
	}

	if !s.pacer.wait(buf, s.done) {
		return nil
	}

	s.received.Add(uint64(len(buf.Data)))
	s.buffers.Add(1)
	return nil
}

// Received returns the bytes written to the sink.
func (s *FakeSink) Received() uint64 {
	return s.received.Load()
}

// Buffers returns the number of buffers written to the sink.
func (s *FakeSink) Buffers() uint64 {
	return s.buffers.Load()
}

// Close implements Element.
func (s *FakeSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
