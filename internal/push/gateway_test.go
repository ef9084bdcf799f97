package push_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"companion-chat/internal/mocks"
	"companion-chat/internal/push"
)

func TestAMQPGatewayDelivers(t *testing.T) {
	pub := new(mocks.PublisherMock)
	gw := push.NewAMQPGateway(pub, "push")

	pub.On("PublishWithHeaders", mock.Anything, "push.ios", mock.AnythingOfType("push.pushMessage"), map[string]string{"x-request-id": "req-1"}).Return(nil).Once()

	res := gw.Send(context.Background(), push.Destination{Token: "tok", Platform: "iOS"}, "Rex misses you", "Woof", map[string]string{"request_id": "req-1"})

	assert.Equal(t, push.Delivered, res.Outcome)
	pub.AssertExpectations(t)
}

func TestAMQPGatewayEmptyTokenIsPermanent(t *testing.T) {
	pub := new(mocks.PublisherMock)
	gw := push.NewAMQPGateway(pub, "push")

	res := gw.Send(context.Background(), push.Destination{Token: "  "}, "t", "b", nil)

	assert.Equal(t, push.PermanentFailure, res.Outcome)
	assert.Contains(t, res.Reason, "invalid destination")
	pub.AssertNotCalled(t, "PublishWithHeaders", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAMQPGatewayPublishErrorIsTransient(t *testing.T) {
	pub := new(mocks.PublisherMock)
	gw := push.NewAMQPGateway(pub, "")

	pub.On("PublishWithHeaders", mock.Anything, "push.default", mock.Anything, mock.Anything).Return(context.DeadlineExceeded).Once()
	res := gw.Send(context.Background(), push.Destination{Token: "tok"}, "t", "b", nil)
	assert.Equal(t, push.TransientFailure, res.Outcome)
	assert.Equal(t, "gateway timeout", res.Reason)

	pub.On("PublishWithHeaders", mock.Anything, "push.default", mock.Anything, mock.Anything).Return(assert.AnError).Once()
	res = gw.Send(context.Background(), push.Destination{Token: "tok"}, "t", "b", nil)
	assert.Equal(t, push.TransientFailure, res.Outcome)
	assert.Contains(t, res.Reason, "gateway unavailable")
}

func TestAMQPGatewayHealthFollowsConnection(t *testing.T) {
	pub := new(mocks.PublisherMock)
	pub.On("Connected").Return(false).Once()
	pub.On("Connected").Return(true).Once()
	gw := push.NewAMQPGateway(pub, "push")

	assert.False(t, gw.Healthy())
	assert.True(t, gw.Healthy())
}

func TestLogGateway(t *testing.T) {
	gw := push.NewLogGateway(nil)
	assert.True(t, gw.Healthy())
	assert.Equal(t, push.Delivered, gw.Send(context.Background(), push.Destination{Token: "t"}, "a", "b", nil).Outcome)
	assert.Equal(t, push.PermanentFailure, gw.Send(context.Background(), push.Destination{}, "a", "b", nil).Outcome)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "delivered", push.Delivered.String())
	assert.Equal(t, "transient_failure", push.TransientFailure.String())
	assert.Equal(t, "permanent_failure", push.PermanentFailure.String())
}
