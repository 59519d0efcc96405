// Package gateway bridges one websocket client to one backend LiveCall
// stream per call.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yoockh/callbridge/internal/audio"
	"github.com/yoockh/callbridge/internal/backend"
	"github.com/yoockh/callbridge/internal/models"
	"github.com/yoockh/callbridge/internal/observe"
)

// ErrShutdown is the cancel cause used when the gateway stops a call.
var ErrShutdown = errors.New("gateway shutting down")

const disconnectTimeout = time.Second

type CallConfig struct {
	Translator Translator
	Encoder    Encoder
	// BatchBytes is the client batch threshold in bytes.
	BatchBytes int
	// ErrorCloseDelay separates a backend error notice from the close frame.
	ErrorCloseDelay time.Duration
	// BackendFormat fills format fields the backend leaves out.
	BackendFormat audio.Format
}

// Observer is told about call lifecycle changes. Implementations must not
// block.
type Observer interface {
	CallStarted(c *Call)
	CallStateChanged(c *Call, st models.CallState)
	CallEnded(c *Call, rec models.CallRecord)
}

// Call is the state machine of one bridged call.
type Call struct {
	session  *models.CallSession
	conn     ClientConn
	dialer   backend.Dialer
	cfg      CallConfig
	log      *logrus.Entry
	metrics  *observe.Metrics
	observer Observer

	batcher *audio.Batcher
	adapter *backend.Adapter

	state    atomic.Value
	cancelMu sync.Mutex
	cancel   context.CancelCauseFunc
	stopped  error

	releaseOnce    sync.Once
	transferTarget string
}

type CallOption func(*Call)

func WithMetrics(m *observe.Metrics) CallOption { return func(c *Call) { c.metrics = m } }

func WithObserver(o Observer) CallOption { return func(c *Call) { c.observer = o } }

func WithLogger(l *logrus.Logger) CallOption {
	return func(c *Call) { c.log = l.WithFields(c.session.Fields()) }
}

func NewCall(s *models.CallSession, conn ClientConn, d backend.Dialer, cfg CallConfig, opts ...CallOption) *Call {
	c := &Call{
		session: s,
		conn:    conn,
		dialer:  d,
		cfg:     cfg,
		batcher: audio.NewBatcher(cfg.BatchBytes),
	}
	c.log = logrus.StandardLogger().WithFields(s.Fields())
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(models.CallConnecting)
	return c
}

func (c *Call) Session() *models.CallSession { return c.session }

func (c *Call) State() models.CallState { return c.state.Load().(models.CallState) }

func (c *Call) Snapshot() models.CallSnapshot {
	snap := models.CallSnapshot{
		CallID:        c.session.CallID,
		TenantID:      c.session.TenantID,
		CustomerPhone: c.session.CustomerPhone,
		State:         c.State(),
		StartedAt:     c.session.AcceptedAt,
	}
	if a := c.backendAdapter(); a != nil {
		snap.ChunksIn = a.ChunksSent()
		snap.ChunksOut = a.ChunksReceived()
	}
	return snap
}

// Stop ends the call from outside, e.g. on shutdown. The client gets an
// error notice and a going-away close.
func (c *Call) Stop(cause error) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.cancel == nil {
		c.stopped = cause
		return
	}
	c.cancel(cause)
}

func (c *Call) backendAdapter() *backend.Adapter {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	return c.adapter
}

func (c *Call) setState(st models.CallState) {
	if c.State() == st {
		return
	}
	c.state.Store(st)
	c.log.WithField("state", st).Info("call state")
	if c.observer != nil {
		c.observer.CallStateChanged(c, st)
	}
}

// callEnd is why a call left Streaming.
type callEnd struct {
	reason    string
	closeCode int
	closeText string
	err       error
}

func (e *callEnd) Error() string {
	if e.err != nil {
		return fmt.Sprintf("call ended (%s): %v", e.reason, e.err)
	}
	return "call ended: " + e.reason
}

func (e *callEnd) Unwrap() error { return e.err }

// Run drives the call until it is closed. It returns nil for calls that end
// normally and the underlying error when the backend or transport failed.
func (c *Call) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.cancelMu.Lock()
	c.cancel = cancel
	if c.stopped != nil {
		cancel(c.stopped)
	}
	c.cancelMu.Unlock()

	started := time.Now()
	c.metrics.CallStarted(ctx)
	if c.observer != nil {
		c.observer.CallStarted(c)
	}

	// The stream outlives ctx so the final Disconnect can still be written
	// after Stop; releaseBackend cancels it.
	a, err := backend.Open(context.WithoutCancel(ctx), c.dialer, c.session, backend.Options{Format: c.cfg.BackendFormat, Logger: c.log})
	if err != nil {
		c.log.WithError(err).Error("backend initialization failed")
		c.setState(models.CallTerminating)
		c.notify(ErrorNotice{ErrorCode: 503, InternalCode: "BACKEND_UNAVAILABLE", Message: "backend unavailable"})
		end := &callEnd{reason: models.EndReasonInitFailed, closeCode: websocket.CloseInternalServerErr, closeText: "backend unavailable", err: err}
		c.finish(context.WithoutCancel(ctx), end, started)
		return err
	}
	c.cancelMu.Lock()
	c.adapter = a
	c.cancelMu.Unlock()
	c.setState(models.CallInitialized)

	g, gctx := errgroup.WithContext(ctx)
	stopInterrupt := context.AfterFunc(gctx, c.conn.Interrupt)
	stopRelease := context.AfterFunc(gctx, c.releaseBackend)
	defer stopInterrupt()
	defer stopRelease()

	g.Go(func() error { return c.clientLeg(gctx) })
	g.Go(func() error { return c.backendLeg(gctx) })
	err = g.Wait()

	end := c.classify(ctx, err)
	c.setState(models.CallTerminating)
	c.releaseBackend()
	if end.reason == models.EndReasonShutdown {
		c.notify(ErrorNotice{ErrorCode: 503, InternalCode: "SHUTDOWN", Message: "gateway shutting down"})
	}
	c.finish(context.WithoutCancel(ctx), end, started)

	switch end.reason {
	case models.EndReasonBackendError, models.EndReasonTransport, models.EndReasonBackendClosed:
		return end
	}
	return nil
}

func (c *Call) classify(ctx context.Context, err error) *callEnd {
	var end *callEnd
	if errors.As(err, &end) {
		return end
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return &callEnd{reason: models.EndReasonShutdown, closeCode: websocket.CloseGoingAway, closeText: "shutdown", err: cause}
	}
	if ctx.Err() != nil {
		return &callEnd{reason: models.EndReasonShutdown, closeCode: websocket.CloseGoingAway, closeText: "shutdown"}
	}
	return &callEnd{reason: models.EndReasonTransport, closeCode: websocket.CloseInternalServerErr, closeText: "internal error", err: err}
}

// releaseBackend is the single best-effort disconnect followed by stream
// cancellation. It runs as soon as either leg ends.
func (c *Call) releaseBackend() {
	c.releaseOnce.Do(func() {
		a := c.backendAdapter()
		if a == nil {
			return
		}
		done := make(chan error, 1)
		go func() { done <- a.SendDisconnect() }()
		select {
		case err := <-done:
			if err != nil {
				c.log.WithError(err).Debug("disconnect to backend failed")
			}
		case <-time.After(disconnectTimeout):
			c.log.Warn("disconnect to backend timed out")
		}
		a.Close()
	})
}

func (c *Call) finish(ctx context.Context, end *callEnd, started time.Time) {
	if dropped := c.batcher.Discard(); dropped > 0 {
		c.log.WithField("bytes", dropped).Debug("pending client audio discarded")
	}
	if err := c.conn.Close(end.closeCode, end.closeText); err != nil {
		c.log.WithError(err).Debug("client close")
	}
	c.setState(models.CallClosed)

	d := time.Since(started)
	c.metrics.CallEnded(ctx, end.reason, d)

	entry := c.log.WithFields(logrus.Fields{"reason": end.reason, "duration_ms": d.Milliseconds()})
	if end.err != nil {
		entry = entry.WithError(end.err)
	}
	entry.Info("call closed")

	if c.observer != nil {
		c.observer.CallEnded(c, c.record(end.reason, d))
	}
}

func (c *Call) record(reason string, d time.Duration) models.CallRecord {
	s := c.session
	rec := models.CallRecord{
		CallID:          s.CallID,
		TenantID:        s.TenantID,
		Hotline:         s.Hotline,
		CustomerPhone:   s.CustomerPhone,
		SpeakerID:       s.SpeakerID,
		Environment:     s.Environment,
		TypeCall:        s.TypeCall,
		EndReason:       reason,
		TransferTarget:  c.transferTarget,
		StartedAt:       s.AcceptedAt,
		EndedAt:         s.AcceptedAt.Add(d),
		DurationSeconds: d.Seconds(),
	}
	if a := c.backendAdapter(); a != nil {
		rec.ChunksIn = a.ChunksSent()
		rec.ChunksOut = a.ChunksReceived()
	}
	return rec
}

// clientLeg reads client messages and forwards audio to the backend.
// Malformed messages are logged and skipped.
func (c *Call) clientLeg(ctx context.Context) error {
	tr := c.cfg.Translator
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return &callEnd{reason: models.EndReasonClientGone, closeCode: websocket.CloseNormalClosure}
			}
			return &callEnd{reason: models.EndReasonClientGone, closeCode: websocket.CloseNormalClosure, err: err}
		}

		msg, err := DecodeClientMessage(mt, data)
		if err != nil {
			c.protocolError(ctx, err)
			continue
		}

		var frame audio.Frame
		switch m := msg.(type) {
		case PlayAudio:
			frame, err = tr.ToFrame(m)
		case RawAudio:
			frame, err = tr.RawToFrame(m)
		case InitialInfo:
			c.log.Info("client initial_info ignored, backend already initialized")
			continue
		case Disconnect:
			c.log.Info("client requested disconnect")
			return &callEnd{reason: models.EndReasonClientDisconnect, closeCode: websocket.CloseNormalClosure, closeText: "disconnect"}
		default:
			c.log.Warnf("unhandled client message %T", m)
			continue
		}
		if err != nil {
			c.protocolError(ctx, err)
			continue
		}

		if err := c.adapter.SendAudio(frame); err != nil {
			if errors.Is(err, backend.ErrNotInitialized) {
				c.metrics.AudioDroppedFor(ctx, "not_initialized")
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				// the stream is gone; backendLeg reports why.
				c.metrics.AudioDroppedFor(ctx, "backend_closed")
				continue
			}
			c.log.WithError(err).Error("forward audio to backend failed")
			c.notify(ErrorNotice{ErrorCode: 503, InternalCode: "BACKEND_UNAVAILABLE", Message: "backend stream failed"})
			return &callEnd{reason: models.EndReasonTransport, closeCode: websocket.CloseInternalServerErr, closeText: "backend stream failed", err: err}
		}
		c.metrics.AudioRelayed(ctx, "in", len(frame.Content))
		c.setState(models.CallStreaming)
	}
}

func (c *Call) protocolError(ctx context.Context, err error) {
	kind := "unknown"
	var de *DecodeError
	if errors.As(err, &de) {
		kind = de.Kind
	}
	c.metrics.ProtocolError(ctx, kind)
	c.log.WithError(err).WithField("kind", kind).Warn("client message dropped")
}

// backendLeg turns backend events into client messages.
func (c *Call) backendLeg(ctx context.Context) error {
	tr := c.cfg.Translator
	for {
		ev, err := c.adapter.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.notify(ErrorNotice{ErrorCode: 503, InternalCode: "BACKEND_CLOSED", Message: "backend closed the call"})
				return &callEnd{reason: models.EndReasonBackendClosed, closeCode: websocket.CloseInternalServerErr, closeText: "backend closed", err: err}
			}
			c.log.WithError(err).Error("backend stream failed")
			c.notify(ErrorNotice{ErrorCode: 503, InternalCode: "BACKEND_UNAVAILABLE", Message: "backend stream failed"})
			return &callEnd{reason: models.EndReasonTransport, closeCode: websocket.CloseInternalServerErr, closeText: "backend stream failed", err: err}
		}

		switch ev := ev.(type) {
		case backend.AudioOutput:
			pcm, err := tr.ResampleOutput(ev.Frame)
			if err != nil {
				c.metrics.AudioDroppedFor(ctx, "resample")
				c.log.WithError(err).Warn("backend audio dropped")
				continue
			}
			if out, ok := c.batcher.Push(pcm); ok {
				if err := c.sendAudio(ctx, out); err != nil {
					return c.clientWriteFailed(err)
				}
			}

		case backend.EndCall:
			c.metrics.BackendSignal(ctx, "end_call")
			if err := c.flush(ctx); err != nil {
				return c.clientWriteFailed(err)
			}
			if err := c.send(DisconnectNotice{CallID: orDefault(ev.CallID, c.session.CallID)}); err != nil {
				return c.clientWriteFailed(err)
			}
			return &callEnd{reason: models.EndReasonBackendEndCall, closeCode: websocket.CloseNormalClosure, closeText: "end_call"}

		case backend.TransferCall:
			c.metrics.BackendSignal(ctx, "transfer_call")
			if err := c.flush(ctx); err != nil {
				return c.clientWriteFailed(err)
			}
			notice, _ := tr.Notice(ev)
			c.transferTarget = ev.RoutingNumber()
			c.log.WithField("target", c.transferTarget).Info("call transfer requested")
			if err := c.send(notice); err != nil {
				return c.clientWriteFailed(err)
			}

		case backend.OpaqueSignal:
			c.metrics.BackendSignal(ctx, "opaque")
			notice, _ := tr.Notice(ev)
			if err := c.send(notice); err != nil {
				return c.clientWriteFailed(err)
			}

		case backend.Failure:
			c.metrics.BackendSignal(ctx, "failure")
			c.log.WithFields(logrus.Fields{
				"error_code":    ev.ErrorCode,
				"internal_code": ev.InternalCode,
			}).Warn("backend reported failure: " + ev.Message)
			notice, _ := tr.Notice(ev)
			if err := c.send(notice); err != nil {
				return c.clientWriteFailed(err)
			}
			c.wait(ctx, c.cfg.ErrorCloseDelay)
			return &callEnd{
				reason:    models.EndReasonBackendError,
				closeCode: websocket.CloseInternalServerErr,
				closeText: "backend error",
				err:       fmt.Errorf("backend failure %d %s: %s", ev.ErrorCode, ev.InternalCode, ev.Message),
			}

		default:
			c.log.Warnf("unhandled backend event %T", ev)
		}
	}
}

func (c *Call) flush(ctx context.Context) error {
	out, ok := c.batcher.MaybeFlush(true)
	if !ok {
		return nil
	}
	return c.sendAudio(ctx, out)
}

func (c *Call) sendAudio(ctx context.Context, pcm []byte) error {
	msg := c.cfg.Translator.AudioMessage(pcm)
	if err := c.send(msg); err != nil {
		return err
	}
	c.metrics.AudioRelayed(ctx, "out", len(pcm))
	c.metrics.BatchFlushed(ctx, msg.Duration)
	return nil
}

func (c *Call) send(m ClientOutbound) error {
	b, err := c.cfg.Encoder.Encode(m)
	if err != nil {
		return err
	}
	return c.conn.WriteText(b)
}

// notify sends a best-effort message whose failure does not matter because
// the call is ending anyway.
func (c *Call) notify(m ClientOutbound) {
	if err := c.send(m); err != nil {
		c.log.WithError(err).Debug("client notice not delivered")
	}
}

func (c *Call) clientWriteFailed(err error) error {
	return &callEnd{reason: models.EndReasonClientGone, closeCode: websocket.CloseNormalClosure, err: fmt.Errorf("write to client: %w", err)}
}

func (c *Call) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
