package websocket

import (
	"errors"
	"testing"

	"medresponse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFeed records which users a feed was started for and how often each
// feed was disposed.
type fakeFeed struct {
	started  []string
	disposed map[string]int
	failFor  string
}

func (f *fakeFeed) start(userID string) (func(), error) {
	if userID == f.failFor {
		return nil, errors.New("store unavailable")
	}
	f.started = append(f.started, userID)
	return func() { f.disposed[userID]++ }, nil
}

func newFeedTestHub() (*Hub, *fakeFeed) {
	hub := NewHub(logger.NewNop())
	feed := &fakeFeed{disposed: make(map[string]int)}
	hub.SetUserFeed(feed.start)
	return hub, feed
}

func connect(hub *Hub, userID, role string) *Client {
	client := NewClient(hub, nil, userID, role)
	hub.registerClient(client)
	hub.maybeStartUserFeed(client)
	return client
}

func disconnect(hub *Hub, client *Client) {
	hub.unregisterClient(client)
	hub.stopUserFeedIfIdle(client.UserID)
}

func TestHubStartsUserFeedOnRequesterConnect(t *testing.T) {
	hub, feed := newFeedTestHub()

	connect(hub, "user-1", RoleUser)

	require.Equal(t, []string{"user-1"}, feed.started)
	assert.Empty(t, feed.disposed)
}

func TestHubStartsOneFeedPerRequester(t *testing.T) {
	hub, feed := newFeedTestHub()

	first := connect(hub, "user-1", RoleUser)
	second := connect(hub, "user-1", RoleUser)

	require.Equal(t, []string{"user-1"}, feed.started, "a second tab shares the running feed")

	disconnect(hub, first)
	assert.Zero(t, feed.disposed["user-1"], "feed survives while a requester client remains")

	disconnect(hub, second)
	assert.Equal(t, 1, feed.disposed["user-1"], "last requester client leaving closes the feed")
}

func TestHubIgnoresDashboardRolesForUserFeeds(t *testing.T) {
	hub, feed := newFeedTestHub()

	client := connect(hub, "staff-1", "hospital")
	assert.Empty(t, feed.started)

	disconnect(hub, client)
	assert.Empty(t, feed.disposed)
}

func TestHubRetriesUserFeedAfterStartFailure(t *testing.T) {
	hub, feed := newFeedTestHub()
	feed.failFor = "user-1"

	failed := connect(hub, "user-1", RoleUser)
	require.Empty(t, feed.started)
	disconnect(hub, failed)

	feed.failFor = ""
	connect(hub, "user-1", RoleUser)
	assert.Equal(t, []string{"user-1"}, feed.started, "a fresh connect starts the feed after an earlier failure")
}
