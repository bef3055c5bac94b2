// Secondary sinks (SPEC_FULL.md §4.12): InfluxDB time-series mirror,
// Redis latest-bar cache, NATS bar fan-out. None of these participate
// in the at-least-once guarantee of spec.md §8 — that guarantee is
// scoped to MySQLStore and the persistence queue. A sink failure here
// is logged and otherwise ignored; it never blocks the primary upsert.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/ibflow/ingestd/internal/models"
	"github.com/ibflow/ingestd/pkg/config"
)

// Sinks bundles the three optional secondary sinks. Any field may be
// nil if its URL was left blank in config, in which case the
// corresponding Write call is a no-op.
type Sinks struct {
	influx influxdb2.Client
	influxWrite api.WriteAPIBlocking
	influxOrg   string
	influxBucket string

	redis *redis.Client
	redisTTL time.Duration

	nats *nats.Conn

	logger *logrus.Entry
}

// NewSinks connects whichever sinks have a non-empty URL in cfg.Sinks.
// Connection failures are logged and that sink is left nil rather than
// failing the whole construction, since these sinks are purely
// additive.
func NewSinks(cfg *config.SinksConfig, logger *logrus.Logger) *Sinks {
	s := &Sinks{logger: logger.WithField("component", "secondary-sinks")}

	if cfg.InfluxURL != "" {
		s.influx = influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken,
			influxdb2.DefaultOptions().SetLogLevel(0))
		s.influxWrite = s.influx.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket)
		s.influxOrg = cfg.InfluxOrg
		s.influxBucket = cfg.InfluxBucket
	}

	if cfg.RedisAddr != "" {
		ttl := 5 * time.Minute
		if d, err := time.ParseDuration(cfg.RedisTTL); err == nil && d > 0 {
			ttl = d
		}
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s.redisTTL = ttl
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.WithError(err).Warn("redis sink unreachable at startup, caching disabled")
			s.redis = nil
		}
	}

	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL,
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				s.logger.WithError(err).Warn("nats sink disconnected")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				s.logger.Info("nats sink reconnected")
			}),
		)
		if err != nil {
			s.logger.WithError(err).Warn("nats sink unreachable at startup, fan-out disabled")
		} else {
			s.nats = conn
		}
	}

	return s
}

// Close tears down every connected sink.
func (s *Sinks) Close() {
	if s.influx != nil {
		s.influx.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.nats != nil {
		s.nats.Close()
	}
}

// MirrorRealtimeBar writes bar to InfluxDB, caches it in Redis, and
// publishes it on NATS subject bars.<symbol>. Each step is independent
// and best-effort.
func (s *Sinks) MirrorRealtimeBar(ctx context.Context, bar *models.CombinedBar) {
	if s.influxWrite != nil {
		point := influxdb2.NewPoint("realtime_bar",
			map[string]string{"symbol": bar.Symbol},
			map[string]interface{}{
				"open": bar.L1.Open, "high": bar.L1.High, "low": bar.L1.Low,
				"close": bar.L1.Close, "volume": bar.L1.Volume,
				"rsi": bar.Features.RSI, "macd": bar.Features.MACD, "vwap": bar.Features.VWAP,
			},
			bar.Datetime,
		)
		if err := s.influxWrite.WritePoint(ctx, point); err != nil {
			s.logger.WithError(err).Warn("influx mirror write failed")
		}
	}

	if s.redis != nil {
		payload, err := json.Marshal(bar)
		if err != nil {
			s.logger.WithError(err).Warn("redis cache marshal failed")
		} else if err := s.redis.Set(ctx, cacheKey(bar.Symbol), payload, s.redisTTL).Err(); err != nil {
			s.logger.WithError(err).Warn("redis cache write failed")
		}
	}

	if s.nats != nil {
		payload, err := json.Marshal(bar)
		if err != nil {
			s.logger.WithError(err).Warn("nats publish marshal failed")
		} else if err := s.nats.Publish(fmt.Sprintf("bars.%s", bar.Symbol), payload); err != nil {
			s.logger.WithError(err).Warn("nats publish failed")
		}
	}
}

// MirrorDailyBar writes a daily bar to InfluxDB only; the latest-bar
// Redis cache and NATS fan-out exist for the realtime path's consumers
// and have no daily-bar analog in SPEC_FULL.md §4.12.
func (s *Sinks) MirrorDailyBar(ctx context.Context, bar *models.DailyBar) {
	if s.influxWrite == nil {
		return
	}
	point := influxdb2.NewPoint("daily_bar",
		map[string]string{"symbol": bar.Symbol},
		map[string]interface{}{
			"open": bar.Open, "high": bar.High, "low": bar.Low, "close": bar.Close,
			"volume": bar.Volume, "sma": bar.SMA, "ema": bar.EMA, "rsi": bar.RSI,
			"macd": bar.MACD, "vwap": bar.VWAP, "momentum": bar.Momentum,
		},
		bar.Date,
	)
	if err := s.influxWrite.WritePoint(ctx, point); err != nil {
		s.logger.WithError(err).Warn("influx daily mirror write failed")
	}
}

func cacheKey(symbol string) string {
	return fmt.Sprintf("latest_bar:%s", symbol)
}
