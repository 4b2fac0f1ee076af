package bootstrap

import (
	"context"
	"testing"

	appconfig "github.com/attenda/clinic-assistant/internal/config"
	"github.com/attenda/clinic-assistant/internal/dialogue"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

func TestBuildRedisClientNilWithoutAddr(t *testing.T) {
	cfg := &appconfig.Config{RedisAddr: "  "}
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), false); client != nil {
		t.Fatalf("expected nil client without an address")
	}
	if client := BuildRedisClient(context.Background(), nil, nil, false); client != nil {
		t.Fatalf("expected nil client for nil config")
	}
}

func TestBuildClassifierFallsBackToKeywords(t *testing.T) {
	cfg := &appconfig.Config{GeminiAPIKey: ""}
	classifier, closer := BuildClassifier(context.Background(), cfg, logging.New("error"))
	if _, ok := classifier.(dialogue.KeywordClassifier); !ok {
		t.Fatalf("expected keyword classifier, got %T", classifier)
	}
	if closer != nil {
		t.Fatalf("keyword classifier needs no closer")
	}
}

func TestBuildEscalationNotifierRequiresEmailConfig(t *testing.T) {
	if n := BuildEscalationNotifier(nil, nil); n != nil {
		t.Fatalf("expected nil notifier for nil config")
	}
	cfg := &appconfig.Config{SendGridAPIKey: "sg-key", SendGridFromEmail: "noreply@clinic.test"}
	if n := BuildEscalationNotifier(cfg, logging.New("error")); n != nil {
		t.Fatalf("expected nil notifier without an operator email")
	}
	cfg.OperatorEmail = "ops@clinic.test"
	if n := BuildEscalationNotifier(cfg, logging.New("error")); n == nil {
		t.Fatalf("expected notifier when fully configured")
	}
}

func TestBuildTranscriptDBNilWithoutDatabase(t *testing.T) {
	if db := BuildTranscriptDB(&appconfig.Config{}, logging.New("error")); db != nil {
		t.Fatalf("expected nil handle without a database URL")
	}
}
