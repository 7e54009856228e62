package publishers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/samvad-hq/pokedex-seeder/internal/logger"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// sqsPublisher enqueues each report as one message.
type sqsPublisher struct {
	id       string
	queueURL string
	api      sqsAPI
	log      logger.Logger
}

func newSQSPublisher(ctx context.Context, cfg SinkConfig, log logger.Logger) (Publisher, error) {
	if cfg.SQS == nil {
		return nil, fmt.Errorf("missing sqs settings")
	}
	awsCfg, err := loadAWSConfig(ctx, cfg.SQS.AWSSink)
	if err != nil {
		return nil, err
	}
	api := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.SQS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.SQS.Endpoint)
		}
	})
	return &sqsPublisher{id: cfg.ID, queueURL: cfg.SQS.QueueURL, api: api, log: logger.Ensure(log)}, nil
}

func (s *sqsPublisher) ID() string   { return s.id }
func (s *sqsPublisher) Type() string { return TypeSQS }

func (s *sqsPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.Encode()
	if err != nil {
		return err
	}
	attrs := make(map[string]types.MessageAttributeValue, 5)
	for k, v := range evt.Attributes() {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	group, dedup := fifoIDs(s.queueURL, evt)

	out, err := s.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(s.queueURL),
		MessageBody:            aws.String(string(body)),
		MessageAttributes:      attrs,
		MessageGroupId:         group,
		MessageDeduplicationId: dedup,
	})
	if err != nil {
		return fmt.Errorf("sqs send %s: %w", evt.Key(), err)
	}
	s.log.DebugObj("report queued", "report_sqs", map[string]any{
		"sink":       s.id,
		"report":     evt.Key(),
		"message_id": aws.ToString(out.MessageId),
	})
	return nil
}
