package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/callbridge/internal/backend"
	"github.com/yoockh/callbridge/internal/gateway"
	"github.com/yoockh/callbridge/internal/observe"
	"github.com/yoockh/callbridge/internal/services"
	"github.com/yoockh/callbridge/internal/utils"
)

// CallWSOptions wires the call upgrade handler.
type CallWSOptions struct {
	Bootstrapper *gateway.Bootstrapper
	Dialer       backend.Dialer
	Call         gateway.CallConfig
	Registry     *services.CallRegistry
	Metrics      *observe.Metrics
	Logger       *logrus.Logger
	WriteTimeout time.Duration
	// BaseContext parents every call; canceling it stops them all.
	BaseContext context.Context
}

type CallWSHandler struct {
	opts     CallWSOptions
	upgrader websocket.Upgrader
}

func NewCallWSHandler(opts CallWSOptions) *CallWSHandler {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &CallWSHandler{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 16 << 10,
			// telephony clients are not browsers; the token is the gate
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// CallWS accepts or rejects the upgrade, then runs the call until it closes.
func (h *CallWSHandler) CallWS(c *gin.Context) {
	ctx := c.Request.Context()
	log := h.opts.Logger.WithField("request_id", c.GetString("request_id"))

	sess, err := h.opts.Bootstrapper.Accept(c.Request.URL.EscapedPath(), c.Request.URL.Query())
	if err != nil {
		h.opts.Metrics.CallRejected(ctx, string(utils.CodeOf(err)))
		log.WithError(err).WithField("path", c.Request.URL.Path).Warn("call rejected")
		writeError(c, err)
		return
	}
	if err := h.opts.Registry.Reserve(); err != nil {
		h.opts.Metrics.CallRejected(ctx, string(utils.CodeOf(err)))
		log.WithError(err).WithField("call_id", sess.CallID).Warn("call rejected")
		writeError(c, err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered the request
		h.opts.Registry.Release()
		log.WithError(err).WithField("call_id", sess.CallID).Warn("websocket upgrade failed")
		return
	}

	call := gateway.NewCall(sess, gateway.NewWSConn(ws, h.opts.WriteTimeout), h.opts.Dialer, h.opts.Call,
		gateway.WithMetrics(h.opts.Metrics),
		gateway.WithObserver(h.opts.Registry),
		gateway.WithLogger(h.opts.Logger),
	)
	if err := call.Run(h.opts.BaseContext); err != nil {
		log.WithError(err).WithField("call_id", sess.CallID).Debug("call ended with error")
	}
}
