package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/yoockh/callbridge/internal/audio"
	"github.com/yoockh/callbridge/internal/livecallpb"
	"github.com/yoockh/callbridge/internal/models"
	"github.com/yoockh/callbridge/internal/utils"
)

// scriptedBackend records every request and answers the InitialInfo with a
// fixed list of responses.
type scriptedBackend struct {
	livecallpb.UnimplementedLiveCallServer
	got     chan *livecallpb.ClientRequest
	replies []*livecallpb.ServerResponse
	hold    bool
}

func (s *scriptedBackend) StreamCall(stream grpc.BidiStreamingServer[livecallpb.ClientRequest, livecallpb.ServerResponse]) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	s.got <- first
	for _, r := range s.replies {
		if err := stream.Send(r); err != nil {
			return err
		}
	}
	for {
		req, err := stream.Recv()
		if err != nil {
			if s.hold {
				<-stream.Context().Done()
			}
			return nil
		}
		s.got <- req
		if req.Disconnect != nil && !s.hold {
			return nil
		}
	}
}

func startBackend(t *testing.T, impl livecallpb.LiveCallServer) *GRPCDialer {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ForceServerCodec(livecallpb.Codec{}))
	livecallpb.RegisterLiveCallServer(srv, impl)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	d, err := NewGRPCDialer("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewGRPCDialer: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func testSession() *models.CallSession {
	return &models.CallSession{
		CallID:        "abc",
		TenantID:      "tenant-1",
		Hotline:       "1900",
		CustomerPhone: "0901234567",
		SpeakerID:     "spk",
		Environment:   "dev",
		TypeCall:      "inbound",
	}
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func nextRequest(t *testing.T, ch <-chan *livecallpb.ClientRequest) *livecallpb.ClientRequest {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for backend request")
		return nil
	}
}

func TestOpen_SendsInitialInfoFirst(t *testing.T) {
	be := &scriptedBackend{got: make(chan *livecallpb.ClientRequest, 8)}
	d := startBackend(t, be)

	a, err := Open(context.Background(), d, testSession(), Options{Format: audio.Telephony, Logger: quietLog()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	req := nextRequest(t, be.got)
	if !req.Status || req.InitialInfo == nil {
		t.Fatalf("first request = %+v, want initial_info", req)
	}
	info := req.InitialInfo
	if info.WorkspaceID != "tenant-1" || info.CallID != "abc" || info.CustomerPhoneNumber != "0901234567" {
		t.Errorf("identity = %+v", info)
	}
	if info.TypeCall != "inbound" || info.Hotline != "1900" || info.URLAudioFile != "" {
		t.Errorf("call details = %+v", info)
	}
	if !a.Initialized() {
		t.Error("adapter not marked initialized")
	}
}

func TestAdapter_SendAudioAndDisconnectOnce(t *testing.T) {
	be := &scriptedBackend{got: make(chan *livecallpb.ClientRequest, 8)}
	d := startBackend(t, be)

	a, err := Open(context.Background(), d, testSession(), Options{Format: audio.Telephony, Logger: quietLog()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()
	nextRequest(t, be.got)

	pcm := make([]byte, 320)
	pcm[0] = 7
	if err := a.SendAudio(audio.Frame{Format: audio.Telephony, Content: pcm}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	req := nextRequest(t, be.got)
	if req.PlayAudio == nil {
		t.Fatalf("request = %+v, want play_audio", req)
	}
	pa := req.PlayAudio
	if pa.SampleRate != 8000 || pa.SampleWidth != 16 || pa.NumChannels != 1 {
		t.Errorf("format = %d/%d/%d", pa.SampleRate, pa.SampleWidth, pa.NumChannels)
	}
	if math.Abs(float64(pa.Duration)-0.02) > 1e-6 {
		t.Errorf("duration = %v, want 0.02", pa.Duration)
	}
	if pa.AudioContent != base64.StdEncoding.EncodeToString(pcm) {
		t.Error("audio content not base64 of input")
	}
	if a.ChunksSent() != 1 {
		t.Errorf("ChunksSent = %d", a.ChunksSent())
	}

	if err := a.SendDisconnect(); err != nil {
		t.Fatalf("SendDisconnect: %v", err)
	}
	if err := a.SendDisconnect(); err != nil {
		t.Fatalf("second SendDisconnect: %v", err)
	}
	if req := nextRequest(t, be.got); req.Disconnect == nil {
		t.Fatalf("request = %+v, want disconnect", req)
	}
	select {
	case extra := <-be.got:
		t.Fatalf("unexpected extra request %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := a.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Recv after backend hangup = %v, want io.EOF", err)
	}
}

func TestAdapter_SendAudioBeforeInit(t *testing.T) {
	a := &Adapter{log: quietLog()}
	err := a.SendAudio(audio.Frame{Format: audio.Telephony, Content: []byte{0, 0}})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
	if a.ChunksSent() != 0 {
		t.Error("chunk counted")
	}
}

func TestAdapter_RecvTranslatesEvents(t *testing.T) {
	pcm := []byte{1, 0, 2, 0}
	be := &scriptedBackend{
		got:  make(chan *livecallpb.ClientRequest, 8),
		hold: true,
		replies: []*livecallpb.ServerResponse{
			{Status: true, AudioOutput: &livecallpb.ServerAudioChunk{SampleRate: 24000, AudioContent: base64.StdEncoding.EncodeToString(pcm)}},
			{Status: true, AudioOutput: &livecallpb.ServerAudioChunk{AudioContent: "%%%"}},
			{Status: true},
			{Status: true, Signal: &livecallpb.Signal{TransferCall: &livecallpb.TransferCall{
				CallID:      "abc",
				TargetStaff: []*livecallpb.TargetStaff{{SIPNumber: "sip:9"}, {Extension: "101"}},
			}}},
			{Status: true, Signal: &livecallpb.Signal{Unknown: []byte{0x4a, 0x01, 0x78}}},
			{Status: false, Error: &livecallpb.Error{ErrorCode: 503, InternalCode: "ASR_DOWN", Message: "asr unavailable"}},
			{Status: false},
			{Status: true, Signal: &livecallpb.Signal{EndCall: &livecallpb.EndCall{CallID: "abc"}}},
		},
	}
	d := startBackend(t, be)

	backendFormat := audio.Format{SampleRate: 16000, SampleWidthBits: 16, NumChannels: 1}
	a, err := Open(context.Background(), d, testSession(), Options{Format: backendFormat, Logger: quietLog()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	var events []Event
	for range 6 {
		ev, err := a.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		events = append(events, ev)
	}

	out, ok := events[0].(AudioOutput)
	if !ok {
		t.Fatalf("event 0 = %T, want AudioOutput", events[0])
	}
	if out.Frame.Format != (audio.Format{SampleRate: 24000, SampleWidthBits: 16, NumChannels: 1}) {
		t.Errorf("audio format = %v", out.Frame.Format)
	}
	if string(out.Frame.Content) != string(pcm) {
		t.Errorf("audio content = %v", out.Frame.Content)
	}

	tc, ok := events[1].(TransferCall)
	if !ok {
		t.Fatalf("event 1 = %T, want TransferCall", events[1])
	}
	if tc.RoutingNumber() != "sip:9" || len(tc.Targets) != 2 {
		t.Errorf("transfer = %+v", tc)
	}

	if op, ok := events[2].(OpaqueSignal); !ok || len(op.Raw) != 3 {
		t.Errorf("event 2 = %#v, want OpaqueSignal", events[2])
	}

	f, ok := events[3].(Failure)
	if !ok || f.ErrorCode != 503 || f.InternalCode != "ASR_DOWN" {
		t.Errorf("event 3 = %#v, want Failure", events[3])
	}
	if _, ok := events[4].(Failure); !ok {
		t.Errorf("event 4 = %#v, want Failure for status=false", events[4])
	}
	if ec, ok := events[5].(EndCall); !ok || ec.CallID != "abc" {
		t.Errorf("event 5 = %#v, want EndCall", events[5])
	}
	if a.ChunksReceived() != 1 {
		t.Errorf("ChunksReceived = %d, want 1", a.ChunksReceived())
	}
}

func TestAdapter_CloseUnblocksRecv(t *testing.T) {
	be := &scriptedBackend{got: make(chan *livecallpb.ClientRequest, 8), hold: true}
	d := startBackend(t, be)

	a, err := Open(context.Background(), d, testSession(), Options{Format: audio.Telephony, Logger: quietLog()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	nextRequest(t, be.got)

	errc := make(chan error, 1)
	go func() {
		_, err := a.Recv()
		errc <- err
	}()
	a.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Recv err = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Recv still blocked after Close")
	}
}

type failingDialer struct{}

func (failingDialer) Dial(context.Context) (Stream, error) {
	return nil, errors.New("connection refused")
}

func TestOpen_DialFailure(t *testing.T) {
	_, err := Open(context.Background(), failingDialer{}, testSession(), Options{Logger: quietLog()})
	if !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("err = %v, want UNAVAILABLE", err)
	}
}

func TestTargetStaff_RoutingNumber(t *testing.T) {
	tests := []struct {
		name string
		tc   TransferCall
		want string
	}{
		{"extension wins", TransferCall{Targets: []TargetStaff{{Extension: "101", SIPNumber: "sip:1"}}}, "101"},
		{"sip fallback", TransferCall{Targets: []TargetStaff{{SIPNumber: "sip:1"}}}, "sip:1"},
		{"empty target", TransferCall{Targets: []TargetStaff{{}}}, ""},
		{"no targets", TransferCall{}, ""},
	}
	for _, tt := range tests {
		if got := tt.tc.RoutingNumber(); got != tt.want {
			t.Errorf("%s: RoutingNumber = %q, want %q", tt.name, got, tt.want)
		}
	}
}
