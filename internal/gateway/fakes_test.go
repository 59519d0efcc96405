package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/yoockh/callbridge/internal/audio"
	"github.com/yoockh/callbridge/internal/backend"
	"github.com/yoockh/callbridge/internal/livecallpb"
	"github.com/yoockh/callbridge/internal/models"
)

// fakeStream is an in-memory backend stream. Closing recv ends the stream
// with io.EOF.
type fakeStream struct {
	grpc.ClientStream
	ctx  context.Context
	sent chan *livecallpb.ClientRequest
	recv chan *livecallpb.ServerResponse
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		sent: make(chan *livecallpb.ClientRequest, 64),
		recv: make(chan *livecallpb.ServerResponse, 64),
	}
}

func (s *fakeStream) Send(r *livecallpb.ClientRequest) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.sent <- r
	return nil
}

func (s *fakeStream) Recv() (*livecallpb.ServerResponse, error) {
	select {
	case r, ok := <-s.recv:
		if !ok {
			return nil, io.EOF
		}
		return r, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

func (s *fakeStream) CloseSend() error         { return nil }
func (s *fakeStream) Context() context.Context { return s.ctx }

// drain returns everything sent so far without blocking.
func (s *fakeStream) drain() []*livecallpb.ClientRequest {
	var out []*livecallpb.ClientRequest
	for {
		select {
		case r := <-s.sent:
			out = append(out, r)
		default:
			return out
		}
	}
}

type fakeDialer struct {
	stream *fakeStream
	err    error
}

func (d *fakeDialer) Dial(ctx context.Context) (backend.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.stream.ctx = ctx
	return d.stream, nil
}

type inbound struct {
	mt   int
	data []byte
}

// fakeConn is a scripted client. Everything written to it is appended to
// one ordered log: "text:<payload>" or "close:<code>".
type fakeConn struct {
	in        chan inbound
	interrupt chan struct{}
	intOnce   sync.Once

	mu     sync.Mutex
	log    []string
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:        make(chan inbound, 64),
		interrupt: make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

func (c *fakeConn) sendJSON(v string) { c.in <- inbound{websocket.TextMessage, []byte(v)} }

func (c *fakeConn) sendBinary(b []byte) { c.in <- inbound{websocket.BinaryMessage, b} }

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m, ok := <-c.in:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return m.mt, m.data, nil
	case <-c.interrupt:
		return 0, nil, errors.New("i/o timeout")
	}
}

func (c *fakeConn) WriteText(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.log = append(c.log, "text:"+string(b))
	return nil
}

func (c *fakeConn) Interrupt() {
	c.intOnce.Do(func() { close(c.interrupt) })
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return nil
	default:
	}
	c.log = append(c.log, fmt.Sprintf("close:%d", code))
	close(c.closed)
	return nil
}

func (c *fakeConn) entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// texts decodes every text message written to the client.
func (c *fakeConn) texts(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, e := range c.entries() {
		payload, ok := strings.CutPrefix(e, "text:")
		if !ok {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			t.Fatalf("client got invalid json %q: %v", payload, err)
		}
		out = append(out, m)
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testSession() *models.CallSession {
	return &models.CallSession{
		CallID:      "abc",
		TenantID:    "tenant-1",
		Environment: "dev",
		TypeCall:    "inbound",
		AcceptedAt:  time.Now().UTC(),
	}
}

func testConfig(batchBytes int) CallConfig {
	return CallConfig{
		Translator: Translator{
			Ingress:      audio.Telephony,
			OutputRate:   8000,
			LegacyBinary: false,
		},
		Encoder:       EnvelopeEncoder{},
		BatchBytes:    batchBytes,
		BackendFormat: audio.Format{SampleRate: 24000, SampleWidthBits: 16, NumChannels: 1},
	}
}

type runResult struct {
	err error
}

// startCall runs a call in the background; the returned channel yields once
// Run has returned.
func startCall(t *testing.T, call *Call) <-chan runResult {
	t.Helper()
	done := make(chan runResult, 1)
	go func() { done <- runResult{err: call.Run(context.Background())} }()
	return done
}

func waitDone(t *testing.T, done <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("call did not finish")
		return runResult{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func nextSent(t *testing.T, s *fakeStream) *livecallpb.ClientRequest {
	t.Helper()
	select {
	case r := <-s.sent:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a backend request")
		return nil
	}
}

// recordingObserver keeps the lifecycle callbacks it receives.
type recordingObserver struct {
	mu     sync.Mutex
	states []models.CallState
	ended  *models.CallRecord
}

func (o *recordingObserver) CallStarted(*Call) {}

func (o *recordingObserver) CallStateChanged(_ *Call, st models.CallState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, st)
}

func (o *recordingObserver) CallEnded(_ *Call, rec models.CallRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = &rec
}
