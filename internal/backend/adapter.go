// Package backend owns the gRPC leg of a call: one bidirectional LiveCall
// stream per session.
package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yoockh/callbridge/internal/audio"
	"github.com/yoockh/callbridge/internal/livecallpb"
	"github.com/yoockh/callbridge/internal/models"
	"github.com/yoockh/callbridge/internal/utils"
)

var (
	ErrNotInitialized = errors.New("backend: stream not initialized")
	ErrClosed         = errors.New("backend: stream closed")
)

// Stream is the client side of LiveCall/StreamCall.
type Stream = grpc.BidiStreamingClient[livecallpb.ClientRequest, livecallpb.ServerResponse]

// Dialer opens one backend stream. The stream lives until ctx is cancelled.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

type Options struct {
	// Format fills fields the backend leaves empty on audio output.
	Format audio.Format
	Logger *logrus.Entry
}

// Adapter wraps a single backend stream. Sends are serialized; Recv must be
// called from one goroutine only.
type Adapter struct {
	session *models.CallSession
	stream  Stream
	cancel  context.CancelFunc
	format  audio.Format
	log     *logrus.Entry

	sendMu      sync.Mutex
	initialized bool
	chunks      atomic.Int64
	received    atomic.Int64

	disconnectOnce sync.Once
	disconnectErr  error
	closeOnce      sync.Once
}

// Open dials the backend and writes the InitialInfo message before
// returning. No audio can be sent on an Adapter whose Open failed.
func Open(ctx context.Context, d Dialer, s *models.CallSession, opts Options) (*Adapter, error) {
	const op = "backend.Open"

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	sctx, cancel := context.WithCancel(ctx)
	stream, err := d.Dial(sctx)
	if err != nil {
		cancel()
		return nil, utils.E(utils.CodeUnavailable, op, "open backend stream", err)
	}

	a := &Adapter{
		session: s,
		stream:  stream,
		cancel:  cancel,
		format:  opts.Format,
		log:     log,
	}
	if err := a.sendInitialInfo(); err != nil {
		a.Close()
		return nil, utils.E(utils.CodeUnavailable, op, "send initial info", err)
	}
	return a, nil
}

func (a *Adapter) sendInitialInfo() error {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	req := livecallpb.NewInitialInfo(&livecallpb.InitialInfo{
		WorkspaceID:         a.session.TenantID,
		CallID:              a.session.CallID,
		CustomerPhoneNumber: a.session.CustomerPhone,
		TypeCall:            a.session.TypeCall,
		Hotline:             a.session.Hotline,
		URLAudioFile:        "",
		SpeakerID:           a.session.SpeakerID,
		Environment:         a.session.Environment,
	})
	if err := a.stream.Send(req); err != nil {
		return err
	}
	a.initialized = true
	a.log.Debug("initial info sent")
	return nil
}

func (a *Adapter) Initialized() bool {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	return a.initialized
}

// ChunksSent is the number of audio frames written to the backend.
func (a *Adapter) ChunksSent() int64 { return a.chunks.Load() }

// ChunksReceived is the number of audio outputs read from the backend.
func (a *Adapter) ChunksReceived() int64 { return a.received.Load() }

// SendAudio writes one PlayAudio request. Frames sent before initialization
// are dropped with ErrNotInitialized.
func (a *Adapter) SendAudio(f audio.Frame) error {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	if !a.initialized {
		a.log.WithField("bytes", len(f.Content)).Warn("audio before initialization dropped")
		return ErrNotInitialized
	}

	req := livecallpb.NewPlayAudio(&livecallpb.PlayAudio{
		SampleRate:   int32(f.Format.SampleRate),
		SampleWidth:  int32(f.Format.SampleWidthBits),
		NumChannels:  int32(f.Format.NumChannels),
		Duration:     float32(f.Seconds()),
		AudioContent: base64.StdEncoding.EncodeToString(f.Content),
	})
	if err := a.stream.Send(req); err != nil {
		return fmt.Errorf("send play_audio: %w", normalize(err))
	}
	a.chunks.Add(1)
	return nil
}

// SendDisconnect writes the Disconnect request and half-closes the stream.
// Only the first call does any work; later calls return its result.
func (a *Adapter) SendDisconnect() error {
	a.disconnectOnce.Do(func() {
		a.sendMu.Lock()
		defer a.sendMu.Unlock()

		if err := a.stream.Send(livecallpb.NewDisconnect()); err != nil {
			a.disconnectErr = fmt.Errorf("send disconnect: %w", normalize(err))
			return
		}
		if err := a.stream.CloseSend(); err != nil {
			a.disconnectErr = fmt.Errorf("close send: %w", err)
		}
	})
	return a.disconnectErr
}

// Recv blocks for the next backend event. It returns io.EOF when the backend
// ends the stream and ErrClosed once the Adapter has been closed. Audio
// whose content cannot be decoded is logged and skipped.
func (a *Adapter) Recv() (Event, error) {
	for {
		resp, err := a.stream.Recv()
		if err != nil {
			return nil, normalize(err)
		}
		ev, ok := a.translate(resp)
		if !ok {
			continue
		}
		return ev, nil
	}
}

func (a *Adapter) translate(resp *livecallpb.ServerResponse) (Event, bool) {
	switch {
	case resp.Error != nil:
		return Failure{
			ErrorCode:    resp.Error.ErrorCode,
			InternalCode: resp.Error.InternalCode,
			Message:      resp.Error.Message,
		}, true

	case resp.AudioOutput != nil:
		out := resp.AudioOutput
		content, err := base64.StdEncoding.DecodeString(out.AudioContent)
		if err != nil {
			a.log.WithError(err).Warn("backend audio_output with invalid base64 dropped")
			return nil, false
		}
		f := a.format
		if out.SampleRate > 0 {
			f.SampleRate = int(out.SampleRate)
		}
		if out.SampleWidth > 0 {
			f.SampleWidthBits = int(out.SampleWidth)
		}
		if out.NumChannels > 0 {
			f.NumChannels = int(out.NumChannels)
		}
		a.received.Add(1)
		return AudioOutput{Frame: audio.Frame{Format: f, Content: content}, Duration: out.Duration}, true

	case resp.Signal != nil:
		sig := resp.Signal
		switch {
		case sig.EndCall != nil:
			return EndCall{CallID: sig.EndCall.CallID}, true
		case sig.TransferCall != nil:
			return transferFromWire(sig.TransferCall), true
		default:
			return OpaqueSignal{Raw: sig.Unknown}, true
		}

	case !resp.Status:
		return Failure{Message: "backend reported failure status"}, true
	}

	a.log.Debug("empty backend response ignored")
	return nil, false
}

// Close cancels the stream. It is safe to call more than once and from any
// goroutine; a blocked Recv returns ErrClosed.
func (a *Adapter) Close() {
	a.closeOnce.Do(a.cancel)
}

func normalize(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
