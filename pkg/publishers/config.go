package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Sink types.
const (
	TypeHTTP   = "http"
	TypeSQS    = "sqs"
	TypeSNS    = "sns"
	TypePubSub = "pubsub"
	TypeKafka  = "kafka"
)

const (
	defaultHTTPMethod  = "POST"
	defaultHTTPTimeout = 5
)

// SinkConfig is one entry of the reports file.
type SinkConfig struct {
	ID      string `json:"id" yaml:"id" validate:"required"`
	Type    string `json:"type" yaml:"type" validate:"required,oneof=http sqs sns pubsub kafka"`
	Enabled *bool  `json:"enabled" yaml:"enabled"`
	// Events restricts the sink to some report kinds; empty means all.
	Events []string    `json:"events" yaml:"events" validate:"dive,oneof=category_finished run_finished"`
	HTTP   *HTTPSink   `json:"http" yaml:"http" validate:"required_if=Type http"`
	SQS    *SQSSink    `json:"sqs" yaml:"sqs" validate:"required_if=Type sqs"`
	SNS    *SNSSink    `json:"sns" yaml:"sns" validate:"required_if=Type sns"`
	PubSub *PubSubSink `json:"pubsub" yaml:"pubsub" validate:"required_if=Type pubsub"`
	Kafka  *KafkaSink  `json:"kafka" yaml:"kafka" validate:"required_if=Type kafka"`
}

// HTTPSink posts each report as a JSON body.
type HTTPSink struct {
	URL            string            `json:"url" yaml:"url" validate:"required,url"`
	Method         string            `json:"method" yaml:"method" validate:"oneof=POST PUT PATCH"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds" validate:"gt=0"`
}

// AWSSink holds settings shared by AWS sinks. Without static keys the default
// credential chain applies.
type AWSSink struct {
	Region          string `json:"region" yaml:"region" validate:"required"`
	Endpoint        string `json:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key" validate:"required_with=AccessKeyID"`
	SessionToken    string `json:"session_token" yaml:"session_token"`
}

// SQSSink sends to a queue. A queue URL ending in .fifo gets group and
// deduplication ids.
type SQSSink struct {
	QueueURL string `json:"uri" yaml:"uri" validate:"required,url"`
	AWSSink  `yaml:",inline"`
}

// SNSSink publishes to a topic. FIFO topics are handled like FIFO queues.
type SNSSink struct {
	TopicARN string `json:"topic_arn" yaml:"topic_arn" validate:"required,startswith=arn:"`
	AWSSink  `yaml:",inline"`
}

// PubSubSink publishes to a Google Cloud Pub/Sub topic, ordered per run.
type PubSubSink struct {
	ProjectID       string `json:"project_id" yaml:"project_id" validate:"required"`
	Topic           string `json:"topic" yaml:"topic" validate:"required"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
}

// KafkaSink writes to a topic keyed by run id.
type KafkaSink struct {
	Brokers []string `json:"brokers" yaml:"brokers" validate:"min=1,dive,hostname_port"`
	Topic   string   `json:"topic" yaml:"topic" validate:"required"`
}

// IsEnabled defaults to true.
func (s SinkConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

var sinkValidator = validator.New()

// LoadSinks reads a YAML or JSON reports file and returns its enabled sinks,
// normalised and validated.
func LoadSinks(path string) ([]SinkConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("reports file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reports file: %w", err)
	}

	var file struct {
		Sinks []SinkConfig `json:"publishers" yaml:"publishers"`
	}
	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode reports file %s: %w", filepath.Base(path), err)
	}
	if len(file.Sinks) == 0 {
		return nil, errors.New("reports file declares no publishers")
	}

	seen := make(map[string]bool, len(file.Sinks))
	enabled := make([]SinkConfig, 0, len(file.Sinks))
	for i, sink := range file.Sinks {
		sink = normalizeSink(sink)
		if err := sinkValidator.Struct(sink); err != nil {
			return nil, fmt.Errorf("publishers[%d] %q: %w", i, sink.ID, err)
		}
		if seen[sink.ID] {
			return nil, fmt.Errorf("duplicate publisher id %q", sink.ID)
		}
		seen[sink.ID] = true
		if sink.IsEnabled() {
			enabled = append(enabled, sink)
		}
	}
	return enabled, nil
}

// normalizeSink trims values and fills defaults before validation.
func normalizeSink(s SinkConfig) SinkConfig {
	s.ID = strings.TrimSpace(s.ID)
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	for i, e := range s.Events {
		s.Events[i] = strings.ToLower(strings.TrimSpace(e))
	}
	if s.HTTP != nil {
		h := *s.HTTP
		h.URL = strings.TrimSpace(h.URL)
		h.Method = strings.ToUpper(strings.TrimSpace(h.Method))
		if h.Method == "" {
			h.Method = defaultHTTPMethod
		}
		if h.TimeoutSeconds == 0 {
			h.TimeoutSeconds = defaultHTTPTimeout
		}
		headers := make(map[string]string, len(h.Headers))
		for k, v := range h.Headers {
			if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
				headers[k] = v
			}
		}
		h.Headers = headers
		s.HTTP = &h
	}
	if s.SQS != nil {
		q := *s.SQS
		q.QueueURL = strings.TrimSpace(q.QueueURL)
		q.AWSSink = trimAWS(q.AWSSink)
		s.SQS = &q
	}
	if s.SNS != nil {
		t := *s.SNS
		t.TopicARN = strings.TrimSpace(t.TopicARN)
		t.AWSSink = trimAWS(t.AWSSink)
		s.SNS = &t
	}
	if s.PubSub != nil {
		p := *s.PubSub
		p.ProjectID = strings.TrimSpace(p.ProjectID)
		p.Topic = strings.TrimSpace(p.Topic)
		s.PubSub = &p
	}
	if s.Kafka != nil {
		k := *s.Kafka
		k.Topic = strings.TrimSpace(k.Topic)
		brokers := make([]string, 0, len(k.Brokers))
		for _, b := range k.Brokers {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		k.Brokers = brokers
		s.Kafka = &k
	}
	return s
}

func trimAWS(a AWSSink) AWSSink {
	a.Region = strings.TrimSpace(a.Region)
	a.Endpoint = strings.TrimSpace(a.Endpoint)
	a.AccessKeyID = strings.TrimSpace(a.AccessKeyID)
	a.SecretAccessKey = strings.TrimSpace(a.SecretAccessKey)
	return a
}
