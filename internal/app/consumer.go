package app

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/Akashbains10/pdf-assistant/internal/config"
)

// ConsumerConfig derives the NSQ settings for the ingestion consumer. NSQ is
// allowed twice the job attempt budget because deliveries that only find the
// job leased elsewhere also count against it.
func ConsumerConfig(cfg *config.Config) *nsq.Config {
	nc := nsq.NewConfig()
	nc.MaxInFlight = max(cfg.IngestionConcurrency, 1)
	nc.MaxAttempts = uint16(min(2*cfg.IngestMaxAttempts, math.MaxUint16))
	nc.DefaultRequeueDelay = 15 * time.Second
	nc.MaxRequeueDelay = 2 * time.Minute
	nc.MaxBackoffDuration = 2 * time.Minute
	nc.MsgTimeout = max(cfg.JobLease(), time.Minute)
	return nc
}

// StartConsumer subscribes handler to the ingestion topic. Stop the returned
// consumer and wait on its StopChan to drain in-flight messages.
func StartConsumer(cfg *config.Config, handler nsq.Handler, logger *slog.Logger) (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(config.TopicIngestDocument, config.ChannelIngestWorker, ConsumerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.SetLogger(NewNSQLogger(logger), nsq.LogLevelWarning)
	consumer.AddConcurrentHandlers(handler, max(cfg.IngestionConcurrency, 1))

	if cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupds(strings.Split(cfg.NSQLookupd, ","))
	} else {
		err = consumer.ConnectToNSQD(cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("nsq connect error: %w", err)
	}

	logger.Info("ingestion consumer connected", "topic", config.TopicIngestDocument, "channel", config.ChannelIngestWorker)
	return consumer, nil
}

// NSQLogger routes go-nsq's log lines into slog.
type NSQLogger struct {
	l *slog.Logger
}

func NewNSQLogger(l *slog.Logger) *NSQLogger {
	return &NSQLogger{l: l.With("component", "nsq")}
}

func (n *NSQLogger) Output(_ int, s string) error {
	n.l.Info(strings.TrimSpace(s))
	return nil
}
