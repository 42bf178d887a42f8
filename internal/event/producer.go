package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/evikzub/CVTransformer/internal/domain"
	pkgkafka "github.com/evikzub/CVTransformer/pkg/kafka"
	"github.com/evikzub/CVTransformer/pkg/logger"
)

// Kafka topic constants for domain events.
const (
	TopicUserRegistered  = "cvtransformer.user.registered"
	TopicUserLoggedIn    = "cvtransformer.user.logged_in"
	TopicUserRoleChanged = "cvtransformer.user.role_changed"
	TopicUserDeleted     = "cvtransformer.user.deleted"
	TopicTicketCreated   = "cvtransformer.ticket.created"
)

// Subject types carried in the envelope.
const (
	SubjectUser   = "user"
	SubjectTicket = "ticket"
)

// SourceService identifies events originating from this service.
const SourceService = "cvtransformer"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID       string `json:"id"`
	RemoteID int64  `json:"remote_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserLoggedInData is the payload for a user.logged_in event.
type UserLoggedInData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// UserRoleChangedData is the payload for a user.role_changed event.
type UserRoleChangedData struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// UserDeletedData is the payload for a user.deleted event.
type UserDeletedData struct {
	ID string `json:"id"`
}

// TicketCreatedData is the payload for a ticket.created event.
type TicketCreatedData struct {
	TicketID   int64  `json:"ticket_id"`
	Subject    string `json:"subject"`
	ProjectID  int64  `json:"project_id"`
	CreatedBy  string `json:"created_by"`
	AuthMode   string `json:"auth_mode"`
	Conversion bool   `json:"conversion"`
}

// Publisher writes an event envelope to a topic. *pkgkafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:       user.ID,
		RemoteID: user.RemoteID,
		Username: user.Username,
		Role:     user.Role,
	}
	return p.publish(ctx, TopicUserRegistered, pkgkafka.Subject{Type: SubjectUser, ID: user.ID}, data)
}

// PublishUserLoggedIn publishes a user.logged_in event.
func (p *Producer) PublishUserLoggedIn(ctx context.Context, user *domain.User) error {
	data := UserLoggedInData{ID: user.ID, Username: user.Username}
	return p.publish(ctx, TopicUserLoggedIn, pkgkafka.Subject{Type: SubjectUser, ID: user.ID}, data)
}

// PublishUserRoleChanged publishes a user.role_changed event.
func (p *Producer) PublishUserRoleChanged(ctx context.Context, userID, role string) error {
	data := UserRoleChangedData{ID: userID, Role: role}
	return p.publish(ctx, TopicUserRoleChanged, pkgkafka.Subject{Type: SubjectUser, ID: userID}, data)
}

// PublishUserDeleted publishes a user.deleted event.
func (p *Producer) PublishUserDeleted(ctx context.Context, userID string) error {
	return p.publish(ctx, TopicUserDeleted, pkgkafka.Subject{Type: SubjectUser, ID: userID}, UserDeletedData{ID: userID})
}

// PublishTicketCreated publishes a ticket.created event.
func (p *Producer) PublishTicketCreated(ctx context.Context, user *domain.User, ticket *domain.Ticket, mode domain.AuthMode, conversion bool) error {
	data := TicketCreatedData{
		TicketID:   ticket.ID,
		Subject:    ticket.Subject,
		ProjectID:  ticket.Project.ID,
		CreatedBy:  user.ID,
		AuthMode:   string(mode),
		Conversion: conversion,
	}
	return p.publish(ctx, TopicTicketCreated, pkgkafka.Subject{Type: SubjectTicket, ID: strconv.FormatInt(ticket.ID, 10)}, data)
}

func (p *Producer) publish(ctx context.Context, topic string, subject pkgkafka.Subject, data any) error {
	event, err := pkgkafka.NewEvent(SourceService, topic, subject, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if actor := logger.UserIDFromContext(ctx); actor != "" {
		event.WithActor(actor)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("subject", subject.String()),
	)

	return nil
}

// Discard drops every event. It is used when no Kafka brokers are configured.
type Discard struct{}

func (Discard) PublishUserRegistered(context.Context, *domain.User) error { return nil }
func (Discard) PublishUserLoggedIn(context.Context, *domain.User) error   { return nil }
func (Discard) PublishUserRoleChanged(context.Context, string, string) error {
	return nil
}
func (Discard) PublishUserDeleted(context.Context, string) error { return nil }
func (Discard) PublishTicketCreated(context.Context, *domain.User, *domain.Ticket, domain.AuthMode, bool) error {
	return nil
}
