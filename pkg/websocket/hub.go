package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"medresponse/pkg/logger"
)

// RoleUser marks requester connections; they get a live tracking feed into
// their personal room.
const RoleUser = "user"

// UserFeedFunc starts the live tracking feed for one requester and returns
// its disposer.
type UserFeedFunc func(userID string) (func(), error)

// Hub fans merged dashboard views out to connected clients. Each role has a
// room (hospital, police, admin) and every requester has a personal
// user_<id> room for tracking updates. The hub opens the per-user feed when
// a requester's first user-role client connects and closes it when the last
// one leaves.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	rooms      map[string]map[*Client]bool
	userFeed   UserFeedFunc
	userFeeds  map[string]func()
	log        *logger.Logger
	mutex      sync.RWMutex
}

type Message struct {
	Type      string                 `json:"type"`
	Room      string                 `json:"room,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		userFeeds:  make(map[string]func()),
		log:        log,
	}
}

// SetUserFeed installs the feed starter. Must be set before requester
// clients connect.
func (h *Hub) SetUserFeed(feed UserFeedFunc) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.userFeed = feed
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
			h.maybeStartUserFeed(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
			h.stopUserFeedIfIdle(client.UserID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	h.log.WithField("user_id", client.UserID).WithRole(client.Role).Debug("Websocket client registered")

	// Personal room for tracking updates
	h.joinRoom(client, "user_"+client.UserID)

	// Role room for the dashboard feed
	if client.Role != "" {
		h.joinRoom(client, client.Role)
	}

	h.sendToClient(client, Message{
		Type:      "welcome",
		Timestamp: time.Now().Unix(),
		Data: map[string]interface{}{
			"message": "Connected successfully",
		},
	})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)

		for roomID, room := range h.rooms {
			if _, exists := room[client]; exists {
				delete(room, client)
				if len(room) == 0 {
					delete(h.rooms, roomID)
				}
			}
		}

		h.log.WithField("user_id", client.UserID).Debug("Websocket client unregistered")
	}
}

// maybeStartUserFeed opens the tracking feed for a requester's first
// user-role client. The feed starter subscribes against the store, so it
// runs outside the hub mutex.
func (h *Hub) maybeStartUserFeed(client *Client) {
	if client.Role != RoleUser || client.UserID == "" {
		return
	}

	h.mutex.Lock()
	if h.userFeed == nil {
		h.mutex.Unlock()
		return
	}
	if _, running := h.userFeeds[client.UserID]; running {
		h.mutex.Unlock()
		return
	}
	// Reserve the slot so a racing register cannot start a second feed.
	h.userFeeds[client.UserID] = func() {}
	feed := h.userFeed
	h.mutex.Unlock()

	dispose, err := feed(client.UserID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", client.UserID).Warn("Failed to start user tracking feed")
		h.mutex.Lock()
		delete(h.userFeeds, client.UserID)
		h.mutex.Unlock()
		return
	}

	h.mutex.Lock()
	h.userFeeds[client.UserID] = dispose
	h.mutex.Unlock()
}

// stopUserFeedIfIdle disposes the tracking feed once no user-role client of
// that requester remains connected.
func (h *Hub) stopUserFeedIfIdle(userID string) {
	if userID == "" {
		return
	}

	h.mutex.Lock()
	for client := range h.rooms["user_"+userID] {
		if client.Role == RoleUser {
			h.mutex.Unlock()
			return
		}
	}
	dispose := h.userFeeds[userID]
	delete(h.userFeeds, userID)
	h.mutex.Unlock()

	if dispose != nil {
		dispose()
	}
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (h *Hub) broadcastMessage(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.WithError(err).Warn("Dropping malformed broadcast message")
		return
	}

	if msg.Room != "" {
		h.sendToRoom(msg.Room, msg)
	} else {
		h.sendToAll(msg)
	}
}

func (h *Hub) sendToAll(message Message) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		h.sendToClient(client, message)
	}
}

func (h *Hub) sendToRoom(roomID string, message Message) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.rooms[roomID] {
		h.sendToClient(client, message)
	}
}

func (h *Hub) sendToClient(client *Client, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.WithError(err).Warn("Failed to marshal websocket message")
		return
	}

	select {
	case client.send <- data:
	default:
		// Slow consumer; drop rather than block the hub.
	}
}

// BroadcastToRoom pushes a typed payload to everyone in one room.
func (h *Hub) BroadcastToRoom(roomID, messageType string, data map[string]interface{}) {
	message := Message{
		Type:      messageType,
		Room:      roomID,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.rooms[roomID] {
		h.sendToClient(client, message)
	}
}

// RoomSize reports how many clients a room currently has.
func (h *Hub) RoomSize(roomID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[roomID])
}
