package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	_ "github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/testing"
)

func runEmbeddedNats(t *testing.T) *server.Server {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second), "nats server not ready")
	t.Cleanup(ns.Shutdown)

	return ns
}

func TestNatsPublisherDeliversEnvelope(t *testing.T) {
	common.SetTestLoggerNop()
	ns := runEmbeddedNats(t)

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	inbox, err := sub.SubscribeSync(SubjectAll)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := NewNatsPublisher(ns.ClientURL())
	require.NoError(t, err)
	defer pub.Close()

	err = pub.Publish(context.Background(), SubjectAlertCreated, map[string]any{"id": 7, "status": "new"})
	require.NoError(t, err)
	require.NoError(t, pub.Flush())

	msg, err := inbox.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, SubjectAlertCreated, msg.Subject)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, SubjectAlertCreated, env.Subject)
	assert.False(t, env.OccurredAt.IsZero())
	assert.JSONEq(t, `{"id":7,"status":"new"}`, string(env.Data))
}

func TestNatsPublisherHonoursCancelledContext(t *testing.T) {
	common.SetTestLoggerNop()
	ns := runEmbeddedNats(t)

	pub, err := NewNatsPublisher(ns.ClientURL())
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, pub.Publish(ctx, SubjectGeofenceCreated, struct{}{}), context.Canceled)
}

func TestNewNatsPublisherUnreachable(t *testing.T) {
	common.SetTestLoggerNop()

	_, err := NewNatsPublisher("nats://127.0.0.1:1", nats.Timeout(200*time.Millisecond))
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), SubjectAlertResolved, nil))
}
