package publishers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/samvad-hq/pokedex-seeder/internal/logger"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// snsPublisher broadcasts each report on a topic with a readable subject.
type snsPublisher struct {
	id       string
	topicARN string
	api      snsAPI
	log      logger.Logger
}

func newSNSPublisher(ctx context.Context, cfg SinkConfig, log logger.Logger) (Publisher, error) {
	if cfg.SNS == nil {
		return nil, fmt.Errorf("missing sns settings")
	}
	awsCfg, err := loadAWSConfig(ctx, cfg.SNS.AWSSink)
	if err != nil {
		return nil, err
	}
	api := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.SNS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.SNS.Endpoint)
		}
	})
	return &snsPublisher{id: cfg.ID, topicARN: cfg.SNS.TopicARN, api: api, log: logger.Ensure(log)}, nil
}

func (s *snsPublisher) ID() string   { return s.id }
func (s *snsPublisher) Type() string { return TypeSNS }

// subject stays under the 100 character SNS limit.
func subject(evt Event) string {
	sub := "pokedex seeding " + evt.Kind + " " + evt.Status
	if evt.Category != "" {
		sub += " " + evt.Category
	}
	if len(sub) > 100 {
		sub = sub[:100]
	}
	return sub
}

func (s *snsPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.Encode()
	if err != nil {
		return err
	}
	attrs := make(map[string]types.MessageAttributeValue, 5)
	for k, v := range evt.Attributes() {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	group, dedup := fifoIDs(s.topicARN, evt)

	out, err := s.api.Publish(ctx, &sns.PublishInput{
		TopicArn:               aws.String(s.topicARN),
		Subject:                aws.String(subject(evt)),
		Message:                aws.String(string(body)),
		MessageAttributes:      attrs,
		MessageGroupId:         group,
		MessageDeduplicationId: dedup,
	})
	if err != nil {
		return fmt.Errorf("sns publish %s: %w", evt.Key(), err)
	}
	s.log.DebugObj("report broadcast", "report_sns", map[string]any{
		"sink":       s.id,
		"report":     evt.Key(),
		"message_id": aws.ToString(out.MessageId),
	})
	return nil
}
