package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/klinok066/robots/internal/config"
	"github.com/klinok066/robots/internal/logging"
	"github.com/klinok066/robots/internal/messages"
	"github.com/klinok066/robots/internal/metrics"
	"github.com/klinok066/robots/internal/notes"
)

type appConfig struct {
	HTTPPort         string `config_key:"http.listen-port" config_default:"8080"`
	HTTPWWWDir       string `config_key:"http.www-dir" config_default:"www"`
	BootstrapServers string `config_key:"kafka.consumer.bootstrap-servers"`
	ConsumerGroupID  string `config_key:"kafka.consumer.group-id" config_default:"journal"`
	ConsumeTopic     string `config_key:"kafka.consumer.topic" config_default:"notes"`
	JournalCapacity  int    `config_key:"journal.capacity" config_default:"500"`
	RetentionSeconds int    `config_key:"stats.retention-seconds" config_default:"300"`
	LogLevel         string `config_key:"log.level" config_default:"info"`
	LogFormat        string `config_key:"log.format" config_default:"text"`
}

func main() {
	if err := run(); err != nil {
		fmt.Printf("fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sources, err := config.Sources()
	if err != nil {
		return fmt.Errorf("load config sources: %w", err)
	}
	cfg, err := config.Parse[appConfig](sources)
	if err != nil {
		return fmt.Errorf("parse app config: %w", err)
	}

	logger := logging.New(os.Stderr, "consumer", cfg.LogLevel, cfg.LogFormat)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	stats := metrics.NewCount(cfg.RetentionSeconds, logger)
	defer stats.Close()

	journal := newJournal(cfg.JournalCapacity, registry, logger)

	srv := newServer(
		fmt.Sprintf(":%s", cfg.HTTPPort),
		newRouter(journal, stats, registry, cfg.HTTPWWWDir, logger),
		logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown HTTP server", "error", err)
		}
	}()

	consumer, err := buildConsumer(cfg, logger)
	if err != nil {
		return fmt.Errorf("build Kafka consumer: %w", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Error("close consumer", "error", err)
		}
	}()

	handler := newHandler(journal, stats)

	for !isCancelled(ctx) {
		msg, err := consumer.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error("consume", "error", err)
			<-time.After(5 * time.Second)
			continue
		}

		if err := handler.Handle(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return fmt.Errorf("handle msg: %w", err)
		}

		if err := consumer.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}

	return nil
}

func newJournal(capacity int, reg prometheus.Registerer, logger *slog.Logger) *notes.Notes[messages.Message] {
	return notes.New(capacity,
		notes.WithMetrics[messages.Message](reg, "journal"),
		notes.WithLogger[messages.Message](logger),
		notes.WithEvictCallback(func(m messages.Message) {
			logger.Debug("journal: evicted note", "id", m.ID, "source", m.Source)
		}),
	)
}

type kafkaConsumer struct {
	kc     *kafka.Consumer
	logger *slog.Logger
}

func (kc kafkaConsumer) Close() error {
	return kc.kc.Close()
}

func (kc kafkaConsumer) Consume(ctx context.Context) (messages.Message, error) {
	for !isCancelled(ctx) {
		event := kc.kc.Poll(50)
		switch event := event.(type) {
		case *kafka.Message:
			msg, err := messages.Decode(event.Value)
			if err != nil {
				kc.logger.Error("decode message", "error", err, "offset", event.TopicPartition.Offset)
				continue
			}
			return msg, nil
		case kafka.PartitionEOF:
			<-time.After(time.Second)
		case kafka.Error:
			kc.logger.Error("consume", "error", event.Error())
		}
	}

	return messages.Message{}, ctx.Err()
}

func (kc kafkaConsumer) Commit(_ context.Context) error {
	_, err := kc.kc.Commit()
	if err != nil {
		return err
	}
	return nil
}

func buildConsumer(cfg appConfig, logger *slog.Logger) (kafkaConsumer, error) {

	kc, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.BootstrapServers,
		"group.id":           cfg.ConsumerGroupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": "false",
	})
	if err != nil {
		return kafkaConsumer{}, fmt.Errorf("create Kafka consumer: %w", err)
	}

	err = kc.Subscribe(cfg.ConsumeTopic, func(c *kafka.Consumer, e kafka.Event) error {
		logger.Info("rebalance", "event", e.String())
		return nil
	})
	if err != nil {
		return kafkaConsumer{}, fmt.Errorf("subscribe: %w", err)
	}

	return kafkaConsumer{
		kc:     kc,
		logger: logger,
	}, nil
}

func newHandler(journal *notes.Notes[messages.Message], stats recorder) handler {
	return handler{
		journal: journal,
		stats:   stats,
	}
}

type recorder interface {
	Record(key string, value int)
}

type handler struct {
	journal *notes.Notes[messages.Message]
	stats   recorder
}

func (h handler) Handle(ctx context.Context, msg messages.Message) error {
	if err := h.journal.AddContext(ctx, msg); err != nil {
		return fmt.Errorf("add to journal: %w", err)
	}
	h.stats.Record(msg.Key(), 1)
	return nil
}

func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
