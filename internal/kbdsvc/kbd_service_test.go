package kbdsvc

import (
	"context"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDispatchPassThrough(t *testing.T) {
	s := New(zap.NewNop(), nil)

	var claimed []byte
	var passed []byte
	remove, err := s.InstallFilter(func(b byte) bool {
		if b == 0x3b {
			claimed = append(claimed, b)
			return true
		}
		return false
	})
	if err != nil {
		t.Fatal(err)
	}
	defer remove()
	s.SetHandler(func(b byte) {
		passed = append(passed, b)
	})

	for _, b := range []byte{0xe0, 0x3b, 0x1c, 0x3b, 0x9c} {
		s.dispatch(b)
	}

	if len(claimed) != 2 {
		t.Errorf("claimed %v, expected two 0x3b bytes", claimed)
	}
	expected := []byte{0xe0, 0x1c, 0x9c}
	if len(passed) != len(expected) {
		t.Fatalf("passed %v, expected %v", passed, expected)
	}
	for i := range expected {
		if passed[i] != expected[i] {
			t.Errorf("passed byte %d: %#02x != %#02x", i, passed[i], expected[i])
		}
	}
}

func TestDispatchAllFiltersSeeEveryByte(t *testing.T) {
	s := New(zap.NewNop(), nil)

	var first, second int
	removeFirst, _ := s.InstallFilter(func(b byte) bool {
		first++
		return true
	})
	defer removeFirst()
	removeSecond, _ := s.InstallFilter(func(b byte) bool {
		second++
		return false
	})
	defer removeSecond()

	s.dispatch(0x01)
	s.dispatch(0x02)

	// A claim by the first filter must not starve the second.
	if first != 2 || second != 2 {
		t.Errorf("filter invocations first=%d second=%d, expected 2/2", first, second)
	}
}

func TestRemoveFilterIdempotent(t *testing.T) {
	s := New(zap.NewNop(), nil)
	var calls int
	remove, err := s.InstallFilter(func(b byte) bool {
		calls++
		return false
	})
	if err != nil {
		t.Fatal(err)
	}
	remove()
	remove()
	s.dispatch(0x01)
	if calls != 0 {
		t.Errorf("removed filter still invoked %d times", calls)
	}
}

func TestRemoveFilterDuringDispatch(t *testing.T) {
	s := New(zap.NewNop(), nil)
	removeFirst, _ := s.InstallFilter(func(b byte) bool { return false })
	removeSecond, _ := s.InstallFilter(func(b byte) bool { return false })
	defer removeSecond()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			s.dispatch(byte(i))
		}
	}()
	removeFirst()
	<-done
}

func TestInstallNilFilter(t *testing.T) {
	s := New(zap.NewNop(), nil)
	if _, err := s.InstallFilter(nil); err == nil {
		t.Error("expected error installing nil filter")
	}
}

type fakeStream struct {
	bytes []byte
	pos   int
	done  chan struct{}
}

func (f *fakeStream) Read(p []byte) (int, error) {
	if f.pos >= len(f.bytes) {
		<-f.done
		return 0, io.EOF
	}
	p[0] = f.bytes[f.pos]
	f.pos++
	return 1, nil
}

func (f *fakeStream) Close() error {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
	return nil
}

type fakeSource struct {
	stream *fakeStream
	ready  chan struct{}
}

func (f *fakeSource) Start(ctx context.Context, pub SourcePublisher) error {
	pub(ctx, SourceEvent{Connected: []SourceDevice{{ID: "serio_raw0", Name: "test port"}}})
	close(f.ready)
	<-ctx.Done()
	return nil
}

func (f *fakeSource) Ready() <-chan struct{} {
	return f.ready
}

func (f *fakeSource) Open(id string) (ByteStream, error) {
	return f.stream, nil
}

func TestDevicesVisibleAtReady(t *testing.T) {
	source := &fakeSource{
		stream: &fakeStream{done: make(chan struct{})},
		ready:  make(chan struct{}),
	}
	s := New(zap.NewNop(), source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("service never became ready")
	}

	// readiness must imply the source's initial device set is visible
	if !s.IsConnected("serio_raw0") {
		t.Error("device not registered as connected at ready")
	}
	devices := s.Devices()
	if len(devices) != 1 || devices[0].ID != "serio_raw0" {
		t.Errorf("devices at ready: %v", devices)
	}
}

func TestRunStream(t *testing.T) {
	source := &fakeSource{
		stream: &fakeStream{bytes: []byte{0xe0, 0x3b, 0x1c}, done: make(chan struct{})},
		ready:  make(chan struct{}),
	}
	s := New(zap.NewNop(), source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("service never became ready")
	}
	if !s.IsConnected("serio_raw0") {
		t.Fatal("device not registered as connected")
	}

	received := make(chan byte, 8)
	s.SetHandler(func(b byte) {
		received <- b
	})

	go func() {
		// Stream drains its bytes, then blocks until cancel closes it.
		s.RunStream(ctx, "serio_raw0")
	}()

	var got []byte
	for i := 0; i < 3; i++ {
		select {
		case b := <-received:
			got = append(got, b)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d bytes: %v", i, got)
		}
	}
	for i, b := range []byte{0xe0, 0x3b, 0x1c} {
		if got[i] != b {
			t.Errorf("byte %d: %#02x != %#02x", i, got[i], b)
		}
	}
}

func TestRunStreamNotConnected(t *testing.T) {
	source := &fakeSource{ready: make(chan struct{})}
	s := New(zap.NewNop(), source)
	err := s.RunStream(context.Background(), "serio_raw9")
	if err == nil {
		t.Fatal("expected error for unknown device")
	}
}
