package gateway

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yoockh/callbridge/internal/models"
	"github.com/yoockh/callbridge/internal/utils"
)

type BootstrapConfig struct {
	// PathPrefix is the fixed upgrade path, e.g. "/call".
	PathPrefix           string
	RequireCustomerPhone bool
	// GenerateCallID assigns a UUID when the client supplies no call id.
	GenerateCallID  bool
	DefaultEnv      string
	DefaultTypeCall string
}

// Bootstrapper turns an upgrade request into a CallSession or a rejection.
type Bootstrapper struct {
	cfg      BootstrapConfig
	verifier *TokenVerifier
	now      func() time.Time
	newID    func() string
}

func NewBootstrapper(cfg BootstrapConfig, verifier *TokenVerifier) *Bootstrapper {
	if p := strings.Trim(cfg.PathPrefix, "/"); p != "" {
		cfg.PathPrefix = "/" + p
	} else {
		cfg.PathPrefix = ""
	}
	if cfg.DefaultEnv == "" {
		cfg.DefaultEnv = "dev"
	}
	if cfg.DefaultTypeCall == "" {
		cfg.DefaultTypeCall = "inbound"
	}
	return &Bootstrapper{
		cfg:      cfg,
		verifier: verifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (b *Bootstrapper) PathPrefix() string { return b.cfg.PathPrefix }

// Accept validates path and params. Checks run in order: path (NOT_FOUND),
// token (UNAUTHORIZED), required parameters (INVALID_ARGUMENT).
//
// Accepted paths are <prefix>, <prefix>/<callId> and
// <prefix>/<callId>/<customerPhone>; path segments win over the call_id and
// customer_phone query parameters.
func (b *Bootstrapper) Accept(path string, params url.Values) (*models.CallSession, error) {
	const op = "Bootstrapper.Accept"

	segs, ok := b.splitPath(path)
	if !ok {
		return nil, utils.E(utils.CodeNotFound, op, "unknown path", nil)
	}

	callID := strings.TrimSpace(params.Get("call_id"))
	phone := strings.TrimSpace(params.Get("customer_phone"))
	if len(segs) > 0 {
		callID = segs[0]
	}
	if len(segs) > 1 {
		phone = segs[1]
	}
	tenantID := strings.TrimSpace(params.Get("tenant_id"))

	if err := b.verifier.Verify(params.Get("token"), callID, tenantID); err != nil {
		return nil, err
	}

	if tenantID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "missing tenant_id", nil)
	}
	generated := false
	if callID == "" {
		if !b.cfg.GenerateCallID {
			return nil, utils.E(utils.CodeInvalidArgument, op, "missing call id", nil)
		}
		callID = b.newID()
		generated = true
	}
	if phone == "" && b.cfg.RequireCustomerPhone {
		return nil, utils.E(utils.CodeInvalidArgument, op, "missing customer phone", nil)
	}

	return &models.CallSession{
		CallID:          callID,
		TenantID:        tenantID,
		Hotline:         params.Get("hotline"),
		CustomerPhone:   phone,
		SpeakerID:       params.Get("speaker_id"),
		Environment:     orDefault(params.Get("env"), b.cfg.DefaultEnv),
		TypeCall:        orDefault(params.Get("type_call"), b.cfg.DefaultTypeCall),
		CallIDGenerated: generated,
		AcceptedAt:      b.now().UTC(),
	}, nil
}

// splitPath returns the segments after the prefix. A trailing slash is
// tolerated, empty segments are not.
func (b *Bootstrapper) splitPath(path string) ([]string, bool) {
	rest, ok := strings.CutPrefix(path, b.cfg.PathPrefix)
	if !ok {
		return nil, false
	}
	if rest == "" || rest == "/" {
		return nil, true
	}
	if rest[0] != '/' {
		return nil, false
	}
	rest = strings.TrimSuffix(rest[1:], "/")

	segs := strings.Split(rest, "/")
	if len(segs) > 2 {
		return nil, false
	}
	for i, s := range segs {
		s, err := url.PathUnescape(s)
		if err != nil || strings.TrimSpace(s) == "" {
			return nil, false
		}
		segs[i] = s
	}
	return segs, true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
