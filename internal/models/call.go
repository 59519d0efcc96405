package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CallState mirrors the gateway state machine.
type CallState string

const (
	CallConnecting  CallState = "connecting"
	CallInitialized CallState = "initialized"
	CallStreaming   CallState = "streaming"
	CallTerminating CallState = "terminating"
	CallClosed      CallState = "closed"
)

// End reasons recorded for finished calls.
const (
	EndReasonClientDisconnect = "client_disconnect"
	EndReasonClientGone       = "client_gone"
	EndReasonBackendEndCall   = "backend_end_call"
	EndReasonBackendError     = "backend_error"
	EndReasonBackendClosed    = "backend_closed"
	EndReasonTransport        = "transport_error"
	EndReasonInitFailed       = "init_failed"
	EndReasonShutdown         = "shutdown"
)

// CallSnapshot is the diagnostics view of an active call.
type CallSnapshot struct {
	CallID        string    `json:"call_id"`
	TenantID      string    `json:"tenant_id"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	State         CallState `json:"state"`
	ChunksIn      int64     `json:"chunks_in"`
	ChunksOut     int64     `json:"chunks_out"`
	StartedAt     time.Time `json:"started_at"`
}

// CallRecord is the persisted summary of a finished call.
type CallRecord struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallID        string             `bson:"call_id" json:"call_id"`
	TenantID      string             `bson:"tenant_id" json:"tenant_id"`
	Hotline       string             `bson:"hotline,omitempty" json:"hotline,omitempty"`
	CustomerPhone string             `bson:"customer_phone,omitempty" json:"customer_phone,omitempty"`
	SpeakerID     string             `bson:"speaker_id,omitempty" json:"speaker_id,omitempty"`
	Environment   string             `bson:"environment" json:"environment"`
	TypeCall      string             `bson:"type_call" json:"type_call"`

	EndReason string `bson:"end_reason" json:"end_reason"`
	ChunksIn  int64  `bson:"chunks_in" json:"chunks_in"`
	ChunksOut int64  `bson:"chunks_out" json:"chunks_out"`

	// TransferTarget is set when the backend handed the call over.
	TransferTarget string `bson:"transfer_target,omitempty" json:"transfer_target,omitempty"`

	StartedAt       time.Time `bson:"started_at" json:"started_at"`
	EndedAt         time.Time `bson:"ended_at" json:"ended_at"`
	DurationSeconds float64   `bson:"duration_seconds" json:"duration_seconds"`
}
