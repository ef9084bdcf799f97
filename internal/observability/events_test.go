package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func TestEventsPublishSwallowsErrors(t *testing.T) {
	pub := new(publisherMock)
	envelope := EventEnvelope{EventType: "chat_events", EventName: "message_sent"}
	pub.On("PublishWithHeaders", mock.Anything, "chat_events.messages", envelope, map[string]string{"x-request-id": "r1"}).Return(assert.AnError).Once()

	NewEvents(pub).Publish(context.Background(), "chat_events.messages", envelope, BuildHeaders("r1", ""))

	pub.AssertExpectations(t)
}

func TestNilEventsIsNoop(t *testing.T) {
	var events *Events
	events.Publish(context.Background(), "k", EventEnvelope{}, nil)
}

func TestBuildHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{"x-request-id": "a", "trace_id": "b"}, BuildHeaders("a", "b"))
	assert.Empty(t, BuildHeaders("", ""))
}

func TestRequestIDFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	assert.Equal(t, "abc", RequestIDFromRequest(req))

	req.Header.Del(RequestIDHeader)
	assert.Len(t, RequestIDFromRequest(req), 36)
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))

	req.Header.Del("X-Forwarded-For")
	req.RemoteAddr = "192.168.1.5:4000"
	assert.Equal(t, "192.168.1.5", IPFromRequest(req))
}
