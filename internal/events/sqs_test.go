package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSHandlerSendsPayload(t *testing.T) {
	client := &fakeSQS{}
	h := NewSQSHandler(client, "https://sqs.local/queue")
	id := uuid.New()

	err := h.Handle(context.Background(), OutboxEntry{ID: id, Type: TypeBookingPaidV1, Payload: json.RawMessage(`{"reference":"REF1"}`)})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "https://sqs.local/queue", aws.ToString(in.QueueUrl))
	assert.JSONEq(t, `{"reference":"REF1"}`, aws.ToString(in.MessageBody))
	assert.Equal(t, TypeBookingPaidV1, aws.ToString(in.MessageAttributes["event_type"].StringValue))
	assert.Equal(t, id.String(), aws.ToString(in.MessageAttributes["event_id"].StringValue))
}

func TestSQSHandlerWrapsError(t *testing.T) {
	h := NewSQSHandler(&fakeSQS{err: errors.New("throttled")}, "https://sqs.local/queue")
	err := h.Handle(context.Background(), OutboxEntry{ID: uuid.New(), Payload: json.RawMessage(`{}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
