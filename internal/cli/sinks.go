package cli

import (
	"context"
	"time"

	"eiademand/internal/amqp"
	"eiademand/internal/cache"
	"eiademand/internal/config"
	"eiademand/internal/influx"
	"eiademand/internal/kafka"
	applog "eiademand/internal/log"
	"eiademand/internal/services"
)

const connectTimeout = 10 * time.Second

// Sinks holds the optional collaborators of the demand service. Each one
// that fails to connect is logged and left out; the service works without.
type Sinks struct {
	AMQP   *amqp.Client
	Kafka  *kafka.Producer
	Influx *influx.Writer
	Redis  *cache.RecordStore

	logger *applog.Logger
}

// SetupSinks connects every configured sink. With publish false only the
// shared fetch cache is connected.
func SetupSinks(cfg *config.Config, logger *applog.Logger, publish bool) *Sinks {
	s := &Sinks{logger: logger}

	if publish && cfg.AMQPEnabled() {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			s.unavailable(applog.ComponentAMQP, "report publication to AMQP disabled", err)
		} else {
			s.AMQP = c
			logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	if publish && cfg.KafkaEnabled() {
		p, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			s.unavailable(applog.ComponentKafka, "report publication to Kafka disabled", err)
		} else {
			s.Kafka = p
			logger.Info("Kafka producer initialized", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		}
	}

	if publish && cfg.InfluxEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		w, err := influx.NewWriter(ctx, influx.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, logger)
		cancel()
		if err != nil {
			s.unavailable(applog.ComponentInflux, "series storage disabled", err)
		} else {
			s.Influx = w
			logger.Info("InfluxDB writer initialized", "org", cfg.InfluxOrg, "bucket", cfg.InfluxBucket)
		}
	}

	if cfg.RedisEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		rs, err := cache.NewRecordStore(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisTTL, logger)
		cancel()
		if err != nil {
			s.unavailable(applog.ComponentCache, "shared fetch cache disabled", err)
		} else {
			s.Redis = rs
			logger.Info("Redis fetch cache initialized", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		}
	}

	return s
}

func (s *Sinks) unavailable(component, msg string, err error) {
	s.logger.Warn("Sink unavailable, "+msg,
		applog.FieldComponent, component,
		applog.FieldError, err)
}

// Options returns the service options for the connected sinks.
func (s *Sinks) Options() []services.Option {
	var opts []services.Option
	if s.AMQP != nil {
		opts = append(opts, services.WithPublisher(s.AMQP))
	}
	if s.Kafka != nil {
		opts = append(opts, services.WithPublisher(s.Kafka))
	}
	if s.Influx != nil {
		opts = append(opts, services.WithSeriesWriter(s.Influx))
	}
	if s.Redis != nil {
		opts = append(opts, services.WithRecordStore(s.Redis))
	}
	return opts
}

// Enabled lists the names of the connected sinks for the startup log.
func (s *Sinks) Enabled() []string {
	var names []string
	if s.AMQP != nil {
		names = append(names, applog.ComponentAMQP)
	}
	if s.Kafka != nil {
		names = append(names, applog.ComponentKafka)
	}
	if s.Influx != nil {
		names = append(names, applog.ComponentInflux)
	}
	if s.Redis != nil {
		names = append(names, "redis")
	}
	return names
}

// Close releases every connected sink.
func (s *Sinks) Close() {
	if s.AMQP != nil {
		if err := s.AMQP.Close(); err != nil {
			s.logger.Warn("AMQP close error", applog.FieldError, err)
		}
	}
	if s.Kafka != nil {
		if err := s.Kafka.Close(); err != nil {
			s.logger.Warn("Kafka close error", applog.FieldError, err)
		}
	}
	if s.Influx != nil {
		s.Influx.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Warn("Redis close error", applog.FieldError, err)
		}
	}
}
