package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const sessionTTL = 24 * time.Hour

// Manager records which push-gateway node holds each user's connection.
type Manager struct {
	client *redis.Client
}

func NewManager(addr string) *Manager {
	return &Manager{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (m *Manager) SetUserGateway(ctx context.Context, userID, nodeID string) error {
	err := m.client.Set(ctx, key(userID), nodeID, sessionTTL).Err()
	return errors.Wrap(err, "set user session")
}

// GetUserGateway returns "" when the user is offline.
func (m *Manager) GetUserGateway(ctx context.Context, userID string) (string, error) {
	nodeID, err := m.client.Get(ctx, key(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return nodeID, errors.Wrap(err, "get user session")
}

func (m *Manager) ClearUserGateway(ctx context.Context, userID string) error {
	err := m.client.Del(ctx, key(userID)).Err()
	return errors.Wrap(err, "clear user session")
}

func key(userID string) string {
	return "session:user:" + userID
}
