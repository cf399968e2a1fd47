package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSQSSender struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQSSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{}, f.err
}

func TestSQSClientSendEncodesMessage(t *testing.T) {
	fake := &fakeSQSSender{}
	client := newSQSClient(fake, "https://sqs.example/queue")

	if err := client.Send(context.Background(), Message{BatchID: "b1", Version: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("expected one send, got %d", len(fake.inputs))
	}
	if got := aws.ToString(fake.inputs[0].QueueUrl); got != "https://sqs.example/queue" {
		t.Fatalf("unexpected queue url %q", got)
	}
	msg, err := DecodeMessage([]byte(aws.ToString(fake.inputs[0].MessageBody)))
	if err != nil || msg.BatchID != "b1" {
		t.Fatalf("unexpected body: %+v err=%v", msg, err)
	}
	if fake.inputs[0].MessageGroupId != nil {
		t.Fatalf("standard queue must not set a message group")
	}
	if got := aws.ToString(fake.inputs[0].MessageAttributes["batchId"].StringValue); got != "b1" {
		t.Fatalf("unexpected batchId attribute %q", got)
	}
}

func TestSQSClientFIFOGroupsByBatch(t *testing.T) {
	fake := &fakeSQSSender{}
	client := newSQSClient(fake, "https://sqs.example/imports.fifo")

	if err := client.Send(context.Background(), Message{BatchID: "b7", RequestID: "r1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	in := fake.inputs[0]
	if aws.ToString(in.MessageGroupId) != "b7" || aws.ToString(in.MessageDeduplicationId) != "b7:r1" {
		t.Fatalf("unexpected fifo fields group=%q dedup=%q", aws.ToString(in.MessageGroupId), aws.ToString(in.MessageDeduplicationId))
	}
}

func TestSQSClientSendWrapsError(t *testing.T) {
	boom := errors.New("throttled")
	client := newSQSClient(&fakeSQSSender{err: boom}, "q")
	if err := client.Send(context.Background(), Message{BatchID: "b1"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewSQSClientRequiresURL(t *testing.T) {
	if _, err := NewSQSClient(context.Background(), " ", "us-east-1"); err == nil {
		t.Fatalf("expected error for empty queue url")
	}
}
