package ipc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	msg, err := Marshal(MsgNavigate, 7, NavigatePayload{Direction: -1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgNavigate, got.Header.Type)
	assert.Equal(t, uint32(7), got.Header.RequestID)

	var p NavigatePayload
	require.NoError(t, got.Decode(&p))
	assert.Equal(t, -1, p.Direction)
}

func TestEmptyPayloadRoundTrip(t *testing.T) {
	msg := NewMessage(MsgPing, 1, nil)
	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgPing, got.Header.Type)
	assert.Empty(t, got.Payload)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	msg := NewMessage(MsgPing, 1, nil)
	msg.Header.Magic = 0xdeadbeef
	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))

	_, err := ReadMessage(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
}

func TestReadHeaderRejectsFutureVersion(t *testing.T) {
	msg := NewMessage(MsgPing, 1, nil)
	msg.Header.Version = ProtocolVersion + 1
	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))

	_, err := ReadMessage(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	msg := NewMessage(MsgPing, 1, nil)
	msg.Header.Length = MaxPayload + 1
	var buf bytes.Buffer
	require.NoError(t, msg.Header.Write(&buf))

	_, err := ReadMessage(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestTruncatedPayloadFails(t *testing.T) {
	msg, err := Marshal(MsgFocusComment, 2, FocusPayload{Ordinal: 3})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])

	_, err = ReadMessage(truncated)
	require.Error(t, err)
}
