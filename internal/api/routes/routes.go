package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/callbridge/internal/api/handlers"
	"github.com/yoockh/callbridge/internal/api/middleware"
)

type Deps struct {
	Calls *handlers.CallHandler
	WS    *handlers.CallWSHandler
	// CallPathPrefix is the normalized upgrade prefix; "" serves calls on
	// every path not taken by another route.
	CallPathPrefix string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Admin protects /admin when Admin.Secret is set.
	Admin middleware.AdminAuthConfig
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", d.Calls.Ping)
	r.GET("/health", d.Calls.Health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	admin := r.Group("/admin")
	if d.Admin.Secret != "" {
		admin.Use(middleware.AdminAuth(d.Admin), middleware.RequireOperator())
	}
	admin.GET("/calls", d.Calls.List)
	admin.GET("/calls/:call_id", d.Calls.Get)
	admin.GET("/calls/:call_id/history", d.Calls.History)

	// Websocket upgrade
	if p := d.CallPathPrefix; p != "" {
		r.GET(p, d.WS.CallWS)
		r.GET(p+"/*rest", d.WS.CallWS)
		r.NoRoute(handlers.NotFound)
		return
	}
	r.NoRoute(d.WS.CallWS)
}
