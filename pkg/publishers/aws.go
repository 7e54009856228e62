package publishers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// loadAWSConfig resolves region and credentials. Static keys win over the
// default credential chain.
func loadAWSConfig(ctx context.Context, c AWSSink) (aws.Config, error) {
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(c.Region)}
	if c.AccessKeyID != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// fifoIDs returns the group and deduplication ids for FIFO queues and topics.
// Reports of one run share a group so consumers see them in order.
func fifoIDs(target string, evt Event) (group, dedup *string) {
	if !strings.HasSuffix(target, ".fifo") {
		return nil, nil
	}
	return aws.String(evt.RunID), aws.String(evt.Key())
}
