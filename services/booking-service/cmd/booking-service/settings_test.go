package main

import (
	"strings"
	"testing"
	"time"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/booking")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	s, err := loadSettings()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Port != "8083" || s.GRPCPort != "9093" {
		t.Fatalf("unexpected ports %s/%s", s.Port, s.GRPCPort)
	}
	if s.ReservationWindow != 15*time.Minute || s.GraceMinutes != 60 || s.ReclaimSchedule != "@every 5m" {
		t.Fatalf("unexpected reclaim settings %+v", s)
	}
	if len(s.KafkaBrokers) != 2 || s.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", s.KafkaBrokers)
	}
}

func TestLoadSettingsCollectsErrors(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("PORT", "http")
	t.Setenv("RESERVATION_WINDOW", "soon")
	t.Setenv("RECLAIM_GRACE_MINUTES", "-1")

	_, err := loadSettings()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"PORT", "RESERVATION_WINDOW", "RECLAIM_GRACE_MINUTES", "DATABASE_URL", "STRIPE_SECRET_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadSettingsDevMode(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("ALLOW_IN_MEMORY_STORE", "true")
	t.Setenv("ALLOW_FAKE_PAYMENTS", "1")

	s, err := loadSettings()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.AllowInMemoryStore || !s.AllowFakePayments {
		t.Fatalf("dev flags not set: %+v", s)
	}
}
