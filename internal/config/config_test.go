package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "CALLER_IDENTITY", "TRANSFER_LOCK_WAIT", "ROOM_TIMEOUT",
		"TWILIO_MAX_RETRIES", "GROQ_MODEL", "RATE_LIMIT_REQUESTS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.CallerIdentity != "caller" {
		t.Errorf("CallerIdentity = %q, want caller", cfg.CallerIdentity)
	}
	if cfg.TransferLockWait != 30*time.Second {
		t.Errorf("TransferLockWait = %v, want 30s", cfg.TransferLockWait)
	}
	if cfg.RoomTimeout != time.Hour {
		t.Errorf("RoomTimeout = %v, want 1h", cfg.RoomTimeout)
	}
	if cfg.TwilioMaxRetries != 3 {
		t.Errorf("TwilioMaxRetries = %d, want 3", cfg.TwilioMaxRetries)
	}
	if cfg.GroqModel != "llama-3.1-8b-instant" {
		t.Errorf("GroqModel = %q", cfg.GroqModel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TRANSFER_LOCK_WAIT", "5s")
	t.Setenv("TWILIO_MAX_RETRIES", "5")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.TransferLockWait != 5*time.Second {
		t.Errorf("TransferLockWait = %v, want 5s", cfg.TransferLockWait)
	}
	if cfg.TwilioMaxRetries != 5 {
		t.Errorf("TwilioMaxRetries = %d, want 5", cfg.TwilioMaxRetries)
	}
	if !cfg.TracingEnabled {
		t.Error("TracingEnabled = false, want true")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			LiveKitAPIKey:     "key",
			LiveKitAPISecret:  "secret",
			TransferLockWait:  30 * time.Second,
			RoomTimeout:       time.Hour,
			RoomSweepInterval: 5 * time.Minute,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.LiveKitAPISecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing room provider secret accepted")
	}

	cfg = base()
	cfg.TwilioAccountSID = "AC123"
	if err := cfg.Validate(); err == nil {
		t.Error("partial telephony credentials accepted")
	}

	cfg = base()
	cfg.TwilioAccountSID = "AC123"
	cfg.TwilioAuthToken = "tok"
	if err := cfg.Validate(); err == nil {
		t.Error("telephony credentials without caller number accepted")
	}
	cfg.TwilioPhoneNumber = "+15550001111"
	if err := cfg.Validate(); err != nil {
		t.Errorf("full telephony config rejected: %v", err)
	}
}
