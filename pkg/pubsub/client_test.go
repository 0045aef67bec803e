package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/asbolsyn/mealmarket-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	require.Equal(t, "projects/mm-prod/topics/mm-order-events", resourceName("mm-prod", "topics", "mm-order-events"))
	require.Equal(t, "projects/other/topics/x", resourceName("mm-prod", "topics", "projects/other/topics/x"))
	require.Empty(t, resourceName("", "topics", "mm-order-events"))
	require.Empty(t, resourceName("mm-prod", "topics", "  "))

	require.Equal(t, "projects/mm-prod/subscriptions/notify", resourceName("mm-prod", "subscriptions", "notify"))
	require.Equal(t, "projects/p/subscriptions/s", resourceName("", "subscriptions", "projects/p/subscriptions/s"))
	// a topic path is not a subscription path
	require.Empty(t, resourceName("", "subscriptions", "projects/p/topics/t"))
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	require.Equal(t, []string{"orders"}, topicNames(config.PubSubConfig{OrdersTopic: " orders ", PayoutsTopic: ""}))
	require.Empty(t, topicNames(config.PubSubConfig{}))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("orders"))
	require.Nil(t, c.NotificationSubscription())
	require.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	require.NoError(t, c.Close())
}

func TestClientOptionsPrecedence(t *testing.T) {
	gcp := config.GCPConfig{ProjectID: "mm-prod"}
	require.Empty(t, clientOptions(gcp, config.PubSubConfig{}))
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds.json"}, config.PubSubConfig{}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds.json"}, config.PubSubConfig{}), 1)

	emulator := clientOptions(config.GCPConfig{CredentialsJSON: `{}`}, config.PubSubConfig{EmulatorHost: "localhost:8085"})
	require.Len(t, emulator, 3)
}

func TestLookupError(t *testing.T) {
	require.NoError(t, lookupError("topic", "orders", nil))
	require.EqualError(t, lookupError("topic", "orders", status.Error(codes.NotFound, "gone")), `topic "orders" does not exist`)

	cause := status.Error(codes.PermissionDenied, "nope")
	err := lookupError("subscription", "notify", cause)
	require.True(t, errors.Is(err, cause))
}
