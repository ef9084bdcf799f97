package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"companion-chat/internal/ai"
	"companion-chat/internal/chat"
	"companion-chat/internal/models"
	"companion-chat/internal/push"
	"companion-chat/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateOrGetRoom(ctx context.Context, userID int, personaID int) (models.ChatRoom, error) {
	args := m.Called(ctx, userID, personaID)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Error(1)
}

func (m *ChatRepositoryMock) GetRoom(ctx context.Context, roomID int) (models.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Error(1)
}

func (m *ChatRepositoryMock) ListRooms(ctx context.Context, userID int) ([]models.ChatRoomSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatRoomSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatRoomSummary)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) DeactivateRoom(ctx context.Context, roomID int) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) GetPersona(ctx context.Context, personaID int) (models.Persona, error) {
	args := m.Called(ctx, personaID)
	var persona models.Persona
	if val := args.Get(0); val != nil {
		persona = val.(models.Persona)
	}
	return persona, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, draft models.MessageDraft, at time.Time) (models.Message, error) {
	args := m.Called(ctx, draft, at)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, roomID int, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) RecentMessages(ctx context.Context, roomID int, n int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, n)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkAllRead(ctx context.Context, roomID int) (int, error) {
	args := m.Called(ctx, roomID)
	return args.Int(0), args.Error(1)
}

type ProviderMock struct {
	mock.Mock
}

func (m *ProviderMock) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *ProviderMock) Healthy() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *ProviderMock) Generate(ctx context.Context, req ai.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type GatewayMock struct {
	mock.Mock
}

func (m *GatewayMock) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *GatewayMock) Healthy() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *GatewayMock) Send(ctx context.Context, dest push.Destination, title, body string, metadata map[string]string) push.Result {
	args := m.Called(ctx, dest, title, body, metadata)
	return args.Get(0).(push.Result)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Publish(chatRoomID int, event models.ChatEvent) {
	m.Called(chatRoomID, event)
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ ai.Provider = (*ProviderMock)(nil)
var _ push.Gateway = (*GatewayMock)(nil)
var _ chat.Broadcaster = (*BroadcasterMock)(nil)
