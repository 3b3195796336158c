// Package ipc provides the local control socket between the slidebridge
// daemon and its command-line client.
//
// Messages are framed by a fixed 16-byte header (magic, version, type,
// request id, payload length) followed by a JSON payload. Request ids
// correlate responses on a connection; the server answers every request
// with exactly one message.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Protocol constants.
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x53424950 // "SBIP"

	// HeaderSize is the fixed frame header size in bytes.
	HeaderSize = 16

	// MaxPayload bounds a frame's payload. Control traffic is small; a
	// larger length means a corrupt or hostile peer.
	MaxPayload = 1 << 20
)

// MessageType identifies an IPC message.
type MessageType uint16

const (
	// Control.
	MsgPing        MessageType = 0x0001
	MsgPong        MessageType = 0x0002
	MsgError       MessageType = 0x0003
	MsgShutdown    MessageType = 0x0004
	MsgShutdownAck MessageType = 0x0005

	// Bridge state.
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Slide operations.
	MsgNavigate      MessageType = 0x0200
	MsgNavigateResp  MessageType = 0x0201
	MsgFocusComment  MessageType = 0x0202
	MsgFocusResp     MessageType = 0x0203
	MsgReadNotes     MessageType = 0x0204
	MsgReadNotesResp MessageType = 0x0205
	MsgRefresh       MessageType = 0x0206
	MsgRefreshResp   MessageType = 0x0207

	// Diagnostics.
	MsgRecentEvents     MessageType = 0x0300
	MsgRecentEventsResp MessageType = 0x0301
)

// Header is the fixed-size frame header.
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32
}

// Message is one framed message.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage frames a payload under the given type and request id.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Marshal frames v as JSON under the given type and request id.
func Marshal(msgType MessageType, requestID uint32, v any) (*Message, error) {
	if v == nil {
		return NewMessage(msgType, requestID, nil), nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return NewMessage(msgType, requestID, payload), nil
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// Write writes the header to w.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates a header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}
	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the complete message to w.
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads one complete message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Payloads.

// ErrorPayload reports a classified failure.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StatusPayload is the daemon's bridge state summary.
type StatusPayload struct {
	Version      string `json:"version"`
	Attached     bool   `json:"attached"`
	Presentation string `json:"presentation,omitempty"`
	SlideIndex   int    `json:"slide_index,omitempty"`
	CommentCount int    `json:"comment_count"`
	NotesPresent bool   `json:"notes_present"`
	Active       int    `json:"active"`
	Resolved     int    `json:"resolved"`
	Closed       int    `json:"closed"`
	Unknown      int    `json:"unknown"`
	Freshness    string `json:"freshness"`
	UptimeSec    int64  `json:"uptime_sec"`
}

// NavigatePayload asks for a relative slide move.
type NavigatePayload struct {
	Direction int `json:"direction"`
}

// SlidePayload reports an observed slide.
type SlidePayload struct {
	Presentation string `json:"presentation"`
	SlideIndex   int    `json:"slide_index"`
	CommentCount int    `json:"comment_count"`
	NotesPresent bool   `json:"notes_present"`
	Freshness    string `json:"freshness"`
	Announcement string `json:"announcement"`
}

// FocusPayload asks for focus on a comment ordinal.
type FocusPayload struct {
	Ordinal int `json:"ordinal"`
}

// FocusResultPayload reports a focus outcome.
type FocusResultPayload struct {
	Status string `json:"status"`
}

// NotesPayload carries a slide's speaker notes.
type NotesPayload struct {
	Text string `json:"text"`
}

// RecentEventsPayload asks for the newest journal entries.
type RecentEventsPayload struct {
	Count int `json:"count"`
}

// JournalEventPayload is one journal entry on the wire.
type JournalEventPayload struct {
	Seq         int64  `json:"seq"`
	TimestampNs int64  `json:"timestamp_ns"`
	Kind        string `json:"kind"`
	Window      string `json:"window"`
	SlideIndex  int    `json:"slide_index"`
	Detail      string `json:"detail,omitempty"`
}

// RecentEventsRespPayload carries journal entries, oldest first.
type RecentEventsRespPayload struct {
	Events []JournalEventPayload `json:"events"`
}
