package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/utafrali/cartstore/pkg/kafka"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sessionEvent(t *testing.T, eventType, userID string) *pkgkafka.Event {
	t.Helper()
	ev, err := pkgkafka.NewEvent(eventType, userID, "session", "user-service", SessionEventData{UserID: userID})
	require.NoError(t, err)
	return ev
}

func TestEventHandler_SignInAndOut(t *testing.T) {
	s := NewSession("")
	h := EventHandler(s, discardLogger())
	ctx := context.Background()

	require.NoError(t, h(ctx, sessionEvent(t, EventSignedIn, "u1")))
	assert.Equal(t, "u1", s.Current())

	require.NoError(t, h(ctx, sessionEvent(t, EventSignedOut, "u1")))
	assert.Equal(t, "", s.Current())
}

func TestEventHandler_SignInWithoutUserIsIgnored(t *testing.T) {
	s := NewSession("u1")
	h := EventHandler(s, discardLogger())

	require.NoError(t, h(context.Background(), sessionEvent(t, EventSignedIn, "")))
	assert.Equal(t, "u1", s.Current())
}

func TestEventHandler_BadPayload(t *testing.T) {
	s := NewSession("")
	h := EventHandler(s, discardLogger())

	ev := sessionEvent(t, EventSignedIn, "u1")
	ev.Data = []byte(`"not an object"`)

	err := h(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, "", s.Current())
}

func TestEventHandler_UnknownTypeIgnored(t *testing.T) {
	s := NewSession("u1")
	h := EventHandler(s, discardLogger())

	require.NoError(t, h(context.Background(), sessionEvent(t, "user.registered", "u2")))
	assert.Equal(t, "u1", s.Current())
}

func TestTopicSession(t *testing.T) {
	assert.Equal(t, "ecommerce.user.session", TopicSession)
}
