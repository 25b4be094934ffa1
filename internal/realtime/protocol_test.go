package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeStringPayload(t *testing.T) {
	frame, err := Encode(EventSendChanges, "hello\nworld")
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"send-changes","data":"hello\nworld"}`, string(frame))

	msg, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, EventSendChanges, msg.Event)
	s, err := msg.Text()
	require.NoError(t, err)
	require.Equal(t, "hello\nworld", s)
}

func TestSignalEventsHaveNoData(t *testing.T) {
	frame, err := Encode(EventUserJoined, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"user-joined"}`, string(frame))
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
	_, err = Decode([]byte(`{"data":"x"}`))
	require.Error(t, err)

	msg, err := Decode([]byte(`{"event":"join-document"}`))
	require.NoError(t, err)
	_, err = msg.Text()
	require.Error(t, err, "join without a document id")
}

func TestBindSavePayload(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"save-document","data":{"documentId":"d1","content":"c"}}`))
	require.NoError(t, err)
	var p SavePayload
	require.NoError(t, msg.Bind(&p))
	require.Equal(t, SavePayload{DocumentID: "d1", Content: "c"}, p)
}
