// Package bootstrap builds optional runtime dependencies from configuration.
// Builders return nil (not an error) when a dependency is not configured, so
// main can wire the application once and let nil-safe components no-op.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/attenda/clinic-assistant/internal/config"
	"github.com/attenda/clinic-assistant/internal/dialogue"
	"github.com/attenda/clinic-assistant/internal/loopguard"
	"github.com/attenda/clinic-assistant/internal/notify"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildPgxPool opens the pgx connection pool backing appointments and the
// calendar outbox.
func BuildPgxPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return pgxpool.New(ctx, cfg.DatabaseURL)
}

// BuildTranscriptDB opens a database/sql handle for conversation transcript
// persistence, or nil when no database is configured. Transcripts are
// best-effort and the store tolerates a nil handle.
func BuildTranscriptDB(cfg *appconfig.Config, logger *logging.Logger) *sql.DB {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Warn("transcript persistence disabled", "error", err)
		return nil
	}
	return db
}

// BuildClassifier returns the Gemini-backed intent classifier when an API key
// is configured, otherwise the keyword classifier. The returned closer is nil
// for the keyword path.
func BuildClassifier(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (dialogue.IntentClassifier, func() error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		logger.Info("intent classification using keyword matching")
		return dialogue.KeywordClassifier{}, nil
	}
	gc, err := dialogue.NewGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID, logger)
	if err != nil {
		logger.Warn("gemini classifier unavailable, using keyword matching", "error", err)
		return dialogue.KeywordClassifier{}, nil
	}
	logger.Info("intent classification using gemini", "model", cfg.GeminiModelID)
	return gc, gc.Close
}

// BuildEscalationNotifier wires the operator email alert, or nil when email
// delivery is not configured.
func BuildEscalationNotifier(cfg *appconfig.Config, logger *logging.Logger) loopguard.EscalationNotifier {
	if cfg == nil {
		return nil
	}
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender == nil {
		return nil
	}
	emailer := notify.NewEscalationEmailer(sender, cfg.OperatorEmail, logger)
	if emailer == nil {
		return nil
	}
	return emailer
}
