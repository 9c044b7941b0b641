package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/klinok066/robots/internal/config"
	"github.com/klinok066/robots/internal/logging"
	"github.com/klinok066/robots/internal/messages"
	"github.com/klinok066/robots/internal/notes"
)

type appConfig struct {
	BootstrapServers string `config_key:"kafka.producer.bootstrap-servers"`
	ProduceTopic     string `config_key:"kafka.producer.topic" config_default:"notes"`
	MaxRPS           int    `config_key:"producer.max-rps" config_default:"1000"`
	Source           string `config_key:"producer.source" config_default:"robot"`
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

	logger := logging.New(os.Stderr, "producer", cfg.LogLevel, cfg.LogFormat)

	producer, err := buildProducer(cfg)
	if err != nil {
		return fmt.Errorf("build Kafka producer: %w", err)
	}

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer producer.Close()

		levels := []string{
			"debug",
			"info",
			"warn",
		}
		bodies := []string{
			"target position changed",
			"robot position changed",
			"window layout saved",
		}

		limiter := newRateLimiter(cfg.MaxRPS, time.Second, logger)

		for !isCancelled(ctx) {

			// Make message publishing "naturally" use ~90% of its rate limit. This will ensure we
			// hit the rate limit but smooth it out some instead of sending in predictable batches.
			naturalDelay := (rand.Int63n(time.Second.Nanoseconds()/int64(limiter.Limit())) * 9) / 10
			<-time.After(time.Duration(naturalDelay))

			msg := messages.New(
				cfg.Source,
				levels[rand.Int()%len(levels)],
				bodies[rand.Int()%len(bodies)])

			msgValue, err := messages.Encode(msg)
			if err != nil {
				panic(fmt.Errorf("failed to encode messages.Message: %v", err))
			}

			timestamp := time.Now()

			if delay := limiter.Delay(timestamp); delay > 0 {
				logger.Debug("delaying for rate limit", "delay", delay)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
				timestamp = time.Now()
			}

			err = producer.Produce(&kafka.Message{
				TopicPartition: kafka.TopicPartition{
					Topic:     &cfg.ProduceTopic,
					Partition: kafka.PartitionAny,
				},
				Key:       []byte(msg.Key()),
				Value:     msgValue,
				Timestamp: timestamp,
			}, nil)
			if err != nil {
				logger.Error("produce message", "error", err)
				continue
			}

			limiter.Sent(timestamp)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range producer.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					logger.Error("produce message", "error", ev.TopicPartition.Error)
				}
			}
		}
	}()

	wg.Wait()

	return nil
}

// rateLimiter allows at most limit sends in any window. It keeps the timestamps of the last
// limit sends; the oldest of them decides when the next send is allowed.
type rateLimiter struct {
	window time.Duration
	sends  *notes.Notes[time.Time]
}

func newRateLimiter(limit int, window time.Duration, logger *slog.Logger) rateLimiter {
	return rateLimiter{
		window: window,
		sends:  notes.New(limit, notes.WithLogger[time.Time](logger)),
	}
}

// Limit is the number of sends allowed per window. Limits below notes.MinCapacity are raised.
func (l rateLimiter) Limit() int {
	return l.sends.Capacity()
}

// Delay returns how long a send at now has to wait to stay within the limit.
func (l rateLimiter) Delay(now time.Time) time.Duration {
	if l.sends.Len() < l.sends.Capacity() {
		return 0
	}
	anchor, err := l.sends.Get(0)
	if err != nil {
		return 0
	}
	return anchor.Add(l.window).Sub(now)
}

func (l rateLimiter) Sent(at time.Time) {
	l.sends.Add(at)
}

func buildProducer(cfg appConfig) (*kafka.Producer, error) {
	kp, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
	})
	if err != nil {
		return nil, fmt.Errorf("create Kafka producer: %w", err)
	}
	return kp, nil
}

func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
