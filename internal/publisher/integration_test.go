//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"feedkeeper/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestPublish_RoundTrip() {
	pub, err := NewRabbitMQ(Config{
		URL:        s.amqpURL,
		Exchange:   "feedkeeper_test",
		RoutingKey: "entries",
		QueueName:  "feed_entries_test",
	}, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	link := "https://example.com/article"
	entry := &domain.Entry{
		ID:      101,
		UserID:  1,
		FeedID:  2,
		GUID:    "guid-101",
		Title:   "Hello",
		Summary: "world",
		Link:    &link,
		PubDate: time.Now().UTC().Truncate(time.Second),
	}

	s.Require().NoError(pub.Publish(s.ctx, entry, true))

	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()
	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	deliveries, err := ch.Consume("feed_entries_test", "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case delivery := <-deliveries:
		var msg EntryMessage
		s.Require().NoError(json.Unmarshal(delivery.Body, &msg))
		s.Equal("create", msg.Action)
		s.Equal("guid-101", msg.Entry.GUID)
		s.Equal("Hello", msg.Entry.Title)
	case <-time.After(10 * time.Second):
		s.Fail("no message received")
	}
}

func (s *RabbitMQIntegrationSuite) TestPublish_UpdateAction() {
	pub, err := NewRabbitMQ(Config{
		URL:        s.amqpURL,
		Exchange:   "feedkeeper_test",
		RoutingKey: "entries.update",
		QueueName:  "feed_entries_update_test",
	}, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	entry := &domain.Entry{ID: 102, GUID: "guid-102", Title: "Again", PubDate: time.Now()}
	s.Require().NoError(pub.Publish(s.ctx, entry, false))

	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()
	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	deliveries, err := ch.Consume("feed_entries_update_test", "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case delivery := <-deliveries:
		var msg EntryMessage
		s.Require().NoError(json.Unmarshal(delivery.Body, &msg))
		s.Equal("update", msg.Action)
	case <-time.After(10 * time.Second):
		s.Fail("no message received")
	}
}
