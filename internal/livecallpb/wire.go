package livecallpb

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// skipField tells unmarshalFields to consume the current field as unknown.
const skipField = math.MinInt32

type encoder struct {
	b []byte
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if !v {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, protowire.EncodeBool(v))
}

func (e *encoder) int32(num protowire.Number, v int32) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, uint64(int64(v)))
}

func (e *encoder) float(num protowire.Number, v float32) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed32Type)
	e.b = protowire.AppendFixed32(e.b, math.Float32bits(v))
}

func (e *encoder) string(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

// message always writes the field, even for an empty body, so that oneof
// members like Disconnect survive the round trip.
func (e *encoder) message(num protowire.Number, body []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, body)
}

type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func unmarshalFields(b []byte, field fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if m == skipField {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func readBool(typ protowire.Type, b []byte, dst *bool) (int, error) {
	if typ != protowire.VarintType {
		return skipField, nil
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = protowire.DecodeBool(v)
	}
	return n, nil
}

func readInt32(typ protowire.Type, b []byte, dst *int32) (int, error) {
	if typ != protowire.VarintType {
		return skipField, nil
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = int32(v)
	}
	return n, nil
}

func readFloat(typ protowire.Type, b []byte, dst *float32) (int, error) {
	if typ != protowire.Fixed32Type {
		return skipField, nil
	}
	v, n := protowire.ConsumeFixed32(b)
	if n >= 0 {
		*dst = math.Float32frombits(v)
	}
	return n, nil
}

func readString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if typ != protowire.BytesType {
		return skipField, nil
	}
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n, nil
}

// readMessage consumes a length-delimited field and hands its body to decode.
func readMessage(typ protowire.Type, b []byte, decode func([]byte) error) (int, error) {
	if typ != protowire.BytesType {
		return skipField, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	if err := decode(v); err != nil {
		return 0, err
	}
	return n, nil
}

// ---- ClientRequest ----

func (m *ClientRequest) MarshalWire() ([]byte, error) {
	var e encoder
	e.bool(1, m.Status)
	switch {
	case m.InitialInfo != nil:
		body, _ := m.InitialInfo.MarshalWire()
		e.message(2, body)
	case m.PlayAudio != nil:
		body, _ := m.PlayAudio.MarshalWire()
		e.message(3, body)
	case m.Disconnect != nil:
		e.message(4, nil)
	}
	return e.b, nil
}

func (m *ClientRequest) UnmarshalWire(b []byte) error {
	*m = ClientRequest{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readBool(typ, b, &m.Status)
		case 2:
			return readMessage(typ, b, func(v []byte) error {
				info := &InitialInfo{}
				if err := info.UnmarshalWire(v); err != nil {
					return err
				}
				m.InitialInfo, m.PlayAudio, m.Disconnect = info, nil, nil
				return nil
			})
		case 3:
			return readMessage(typ, b, func(v []byte) error {
				audio := &PlayAudio{}
				if err := audio.UnmarshalWire(v); err != nil {
					return err
				}
				m.InitialInfo, m.PlayAudio, m.Disconnect = nil, audio, nil
				return nil
			})
		case 4:
			return readMessage(typ, b, func([]byte) error {
				m.InitialInfo, m.PlayAudio, m.Disconnect = nil, nil, &Disconnect{}
				return nil
			})
		}
		return skipField, nil
	})
}

func (m *InitialInfo) MarshalWire() ([]byte, error) {
	var e encoder
	e.string(1, m.WorkspaceID)
	e.string(2, m.CallID)
	e.string(3, m.CustomerPhoneNumber)
	e.string(4, m.TypeCall)
	e.string(5, m.Hotline)
	e.string(6, m.URLAudioFile)
	e.string(7, m.SpeakerID)
	e.string(8, m.Environment)
	return e.b, nil
}

func (m *InitialInfo) UnmarshalWire(b []byte) error {
	*m = InitialInfo{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(typ, b, &m.WorkspaceID)
		case 2:
			return readString(typ, b, &m.CallID)
		case 3:
			return readString(typ, b, &m.CustomerPhoneNumber)
		case 4:
			return readString(typ, b, &m.TypeCall)
		case 5:
			return readString(typ, b, &m.Hotline)
		case 6:
			return readString(typ, b, &m.URLAudioFile)
		case 7:
			return readString(typ, b, &m.SpeakerID)
		case 8:
			return readString(typ, b, &m.Environment)
		}
		return skipField, nil
	})
}

func (m *PlayAudio) MarshalWire() ([]byte, error) {
	var e encoder
	e.int32(1, m.SampleRate)
	e.int32(2, m.SampleWidth)
	e.int32(3, m.NumChannels)
	e.float(4, m.Duration)
	e.string(5, m.AudioContent)
	return e.b, nil
}

func (m *PlayAudio) UnmarshalWire(b []byte) error {
	*m = PlayAudio{}
	return unmarshalAudio(b, &m.SampleRate, &m.SampleWidth, &m.NumChannels, &m.Duration, &m.AudioContent)
}

// ---- ServerResponse ----

func (m *ServerResponse) MarshalWire() ([]byte, error) {
	var e encoder
	e.bool(1, m.Status)
	switch {
	case m.AudioOutput != nil:
		body, _ := m.AudioOutput.MarshalWire()
		e.message(2, body)
	case m.Signal != nil:
		body, _ := m.Signal.MarshalWire()
		e.message(3, body)
	case m.Error != nil:
		body, _ := m.Error.MarshalWire()
		e.message(4, body)
	}
	return e.b, nil
}

func (m *ServerResponse) UnmarshalWire(b []byte) error {
	*m = ServerResponse{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readBool(typ, b, &m.Status)
		case 2:
			return readMessage(typ, b, func(v []byte) error {
				chunk := &ServerAudioChunk{}
				if err := chunk.UnmarshalWire(v); err != nil {
					return err
				}
				m.AudioOutput, m.Signal, m.Error = chunk, nil, nil
				return nil
			})
		case 3:
			return readMessage(typ, b, func(v []byte) error {
				sig := &Signal{}
				if err := sig.UnmarshalWire(v); err != nil {
					return err
				}
				m.AudioOutput, m.Signal, m.Error = nil, sig, nil
				return nil
			})
		case 4:
			return readMessage(typ, b, func(v []byte) error {
				e := &Error{}
				if err := e.UnmarshalWire(v); err != nil {
					return err
				}
				m.AudioOutput, m.Signal, m.Error = nil, nil, e
				return nil
			})
		}
		return skipField, nil
	})
}

func (m *ServerAudioChunk) MarshalWire() ([]byte, error) {
	var e encoder
	e.int32(1, m.SampleRate)
	e.int32(2, m.SampleWidth)
	e.int32(3, m.NumChannels)
	e.float(4, m.Duration)
	e.string(5, m.AudioContent)
	return e.b, nil
}

func (m *ServerAudioChunk) UnmarshalWire(b []byte) error {
	*m = ServerAudioChunk{}
	return unmarshalAudio(b, &m.SampleRate, &m.SampleWidth, &m.NumChannels, &m.Duration, &m.AudioContent)
}

// PlayAudio and ServerAudioChunk share field numbers.
func unmarshalAudio(b []byte, rate, width, channels *int32, duration *float32, content *string) error {
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readInt32(typ, b, rate)
		case 2:
			return readInt32(typ, b, width)
		case 3:
			return readInt32(typ, b, channels)
		case 4:
			return readFloat(typ, b, duration)
		case 5:
			return readString(typ, b, content)
		}
		return skipField, nil
	})
}

func (m *Signal) MarshalWire() ([]byte, error) {
	var e encoder
	switch {
	case m.EndCall != nil:
		body, _ := m.EndCall.MarshalWire()
		e.message(1, body)
	case m.TransferCall != nil:
		body, _ := m.TransferCall.MarshalWire()
		e.message(2, body)
	}
	e.b = append(e.b, m.Unknown...)
	return e.b, nil
}

func (m *Signal) UnmarshalWire(b []byte) error {
	*m = Signal{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			if typ == protowire.BytesType {
				return readMessage(typ, b, func(v []byte) error {
					end := &EndCall{}
					if err := end.UnmarshalWire(v); err != nil {
						return err
					}
					m.EndCall, m.TransferCall = end, nil
					return nil
				})
			}
		case 2:
			if typ == protowire.BytesType {
				return readMessage(typ, b, func(v []byte) error {
					transfer := &TransferCall{}
					if err := transfer.UnmarshalWire(v); err != nil {
						return err
					}
					m.EndCall, m.TransferCall = nil, transfer
					return nil
				})
			}
		}
		n := protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return n, nil
		}
		m.Unknown = protowire.AppendTag(m.Unknown, num, typ)
		m.Unknown = append(m.Unknown, b[:n]...)
		return n, nil
	})
}

func (m *EndCall) MarshalWire() ([]byte, error) {
	var e encoder
	e.string(1, m.CallID)
	return e.b, nil
}

func (m *EndCall) UnmarshalWire(b []byte) error {
	*m = EndCall{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return readString(typ, b, &m.CallID)
		}
		return skipField, nil
	})
}

func (m *TransferCall) MarshalWire() ([]byte, error) {
	var e encoder
	e.string(1, m.CallID)
	e.string(2, m.CustomerPhoneNumber)
	for _, staff := range m.TargetStaff {
		if staff == nil {
			continue
		}
		body, _ := staff.MarshalWire()
		e.message(3, body)
	}
	return e.b, nil
}

func (m *TransferCall) UnmarshalWire(b []byte) error {
	*m = TransferCall{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(typ, b, &m.CallID)
		case 2:
			return readString(typ, b, &m.CustomerPhoneNumber)
		case 3:
			return readMessage(typ, b, func(v []byte) error {
				staff := &TargetStaff{}
				if err := staff.UnmarshalWire(v); err != nil {
					return err
				}
				m.TargetStaff = append(m.TargetStaff, staff)
				return nil
			})
		}
		return skipField, nil
	})
}

func (m *TargetStaff) MarshalWire() ([]byte, error) {
	var e encoder
	e.string(1, m.Extension)
	e.string(2, m.SIPNumber)
	return e.b, nil
}

func (m *TargetStaff) UnmarshalWire(b []byte) error {
	*m = TargetStaff{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(typ, b, &m.Extension)
		case 2:
			return readString(typ, b, &m.SIPNumber)
		}
		return skipField, nil
	})
}

func (m *Error) MarshalWire() ([]byte, error) {
	var e encoder
	e.int32(1, m.ErrorCode)
	e.string(2, m.InternalCode)
	e.string(3, m.Message)
	return e.b, nil
}

func (m *Error) UnmarshalWire(b []byte) error {
	*m = Error{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readInt32(typ, b, &m.ErrorCode)
		case 2:
			return readString(typ, b, &m.InternalCode)
		case 3:
			return readString(typ, b, &m.Message)
		}
		return skipField, nil
	})
}
