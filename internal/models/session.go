package models

import (
	"time"
)

// CallSession is the identity of one client connection. It is built once
// when the connection is accepted and never mutated afterwards.
type CallSession struct {
	CallID        string `json:"call_id"`
	TenantID      string `json:"tenant_id"`
	Hotline       string `json:"hotline"`
	CustomerPhone string `json:"customer_phone"`
	SpeakerID     string `json:"speaker_id"`
	Environment   string `json:"environment"`
	TypeCall      string `json:"type_call"`

	// CallIDGenerated is true when the gateway assigned CallID itself.
	CallIDGenerated bool      `json:"call_id_generated"`
	AcceptedAt      time.Time `json:"accepted_at"`
}

// Fields is the identity as log fields.
func (s *CallSession) Fields() map[string]any {
	return map[string]any{
		"call_id":   s.CallID,
		"tenant_id": s.TenantID,
	}
}
