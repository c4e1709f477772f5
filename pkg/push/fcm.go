package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type FCMProvider struct {
	client *messaging.Client
}

func NewFCMProvider(credentialsFile string) (*FCMProvider, error) {
	ctx := context.Background()

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMProvider{
		client: client,
	}, nil
}

func (f *FCMProvider) SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error) {
	message := f.buildMessage(request)
	message.Token = request.Token

	response, err := f.client.Send(ctx, message)
	if err != nil {
		return &NotificationResponse{
			Success: false,
			Error:   err.Error(),
		}, err
	}

	return &NotificationResponse{
		MessageID: response,
		Success:   true,
	}, nil
}

func (f *FCMProvider) SendToTopic(ctx context.Context, topic string, request *NotificationRequest) (*NotificationResponse, error) {
	message := f.buildMessage(request)
	message.Topic = topic

	response, err := f.client.Send(ctx, message)
	if err != nil {
		return &NotificationResponse{
			Success: false,
			Error:   err.Error(),
		}, err
	}

	return &NotificationResponse{
		MessageID: response,
		Success:   true,
	}, nil
}

func (f *FCMProvider) SubscribeToTopic(ctx context.Context, tokens []string, topic string) error {
	_, err := f.client.SubscribeToTopic(ctx, tokens, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe tokens to topic %s: %w", topic, err)
	}
	return nil
}

func (f *FCMProvider) buildMessage(request *NotificationRequest) *messaging.Message {
	message := &messaging.Message{
		Notification: &messaging.Notification{
			Title:    request.Title,
			Body:     request.Body,
			ImageURL: request.ImageURL,
		},
		Data: request.Data,
	}

	if request.Priority == "high" {
		message.Android = &messaging.AndroidConfig{Priority: "high"}
	}

	return message
}
