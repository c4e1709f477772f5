package push

import "context"

type PushProvider interface {
	SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error)
	SendToTopic(ctx context.Context, topic string, request *NotificationRequest) (*NotificationResponse, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) error
}

type NotificationRequest struct {
	Token    string            `json:"token,omitempty"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	ImageURL string            `json:"image_url,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

type NotificationResponse struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}
