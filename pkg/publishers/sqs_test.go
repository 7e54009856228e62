package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/samvad-hq/pokedex-seeder/internal/logger"
)

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSQSPublisherStandardQueue(t *testing.T) {
	api := &fakeSQS{}
	pub := &sqsPublisher{id: "queue", queueURL: "https://sqs.eu-west-1.amazonaws.com/1/reports", api: api, log: logger.NopLogger{}}

	if err := pub.Publish(context.Background(), movesReport()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	in := api.input
	if aws.ToString(in.QueueUrl) != pub.queueURL {
		t.Fatalf("QueueUrl = %s", aws.ToString(in.QueueUrl))
	}
	if in.MessageGroupId != nil || in.MessageDeduplicationId != nil {
		t.Fatalf("standard queues take no fifo ids")
	}
	if attr := in.MessageAttributes["category"]; aws.ToString(attr.StringValue) != "moves" || aws.ToString(attr.DataType) != "String" {
		t.Fatalf("unexpected category attribute %#v", attr)
	}
	if body := aws.ToString(in.MessageBody); !strings.Contains(body, `"run_id":"run-1"`) || !strings.Contains(body, `"count":4`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestSQSPublisherFIFOQueueGroupsByRun(t *testing.T) {
	api := &fakeSQS{}
	pub := &sqsPublisher{id: "queue", queueURL: "https://sqs.eu-west-1.amazonaws.com/1/reports.fifo", api: api, log: logger.NopLogger{}}

	if err := pub.Publish(context.Background(), movesReport()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if aws.ToString(api.input.MessageGroupId) != "run-1" {
		t.Fatalf("MessageGroupId = %q", aws.ToString(api.input.MessageGroupId))
	}
	if aws.ToString(api.input.MessageDeduplicationId) != "run-1/category_finished/moves" {
		t.Fatalf("MessageDeduplicationId = %q", aws.ToString(api.input.MessageDeduplicationId))
	}
}

func TestSQSPublisherSendError(t *testing.T) {
	pub := &sqsPublisher{id: "queue", queueURL: "q", api: &fakeSQS{err: errors.New("throttled")}, log: logger.NopLogger{}}
	err := pub.Publish(context.Background(), movesReport())
	if err == nil || !strings.Contains(err.Error(), "run-1/category_finished/moves") {
		t.Fatalf("expected send error naming the report, got %v", err)
	}
}
