package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
)

func TestTopicName(t *testing.T) {
	cases := []struct {
		project, topic, want string
	}{
		{"shop-prod", "orders", "projects/shop-prod/topics/orders"},
		{"shop-prod", " orders ", "projects/shop-prod/topics/orders"},
		{"", "projects/other/topics/orders", "projects/other/topics/orders"},
		{"shop-prod", "  ", ""},
		{"", "orders", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TopicName(tc.project, tc.topic), "%q/%q", tc.project, tc.topic)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "orders"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "shop-prod"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errNoTopic)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("orders"))
	assert.ErrorIs(t, c.Ping(context.Background()), errClosed)
	assert.NoError(t, c.Close())
}
