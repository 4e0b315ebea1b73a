package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHandlerRedactsSecretsAndFingerprintsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("unlock attempted",
		"origin", "https://dapp.example",
		"password", "hunter2",
		"kind", "sign_bytes",
	)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if _, ok := payload["origin"]; ok {
		t.Fatal("raw origin leaked into the log")
	}
	fp, ok := payload["origin_fp"].(string)
	if !ok || !strings.HasPrefix(fp, "fp_") {
		t.Fatalf("expected fingerprinted origin, got %v", payload["origin_fp"])
	}
	if got, _ := payload["password"].(string); got != redactedValue {
		t.Fatalf("password not redacted: %q", got)
	}
	if got, _ := payload["kind"].(string); got != "sign_bytes" {
		t.Fatalf("neutral key was mangled: %q", got)
	}
}

func TestFingerprintIsStableWithinBoot(t *testing.T) {
	a := Fingerprint("https://dapp.example")
	b := Fingerprint("https://dapp.example")
	if a != b {
		t.Fatalf("fingerprint not stable: %q vs %q", a, b)
	}
	if Fingerprint("https://other.example") == a {
		t.Fatal("different values share a fingerprint")
	}
	if Fingerprint("  ") != "" {
		t.Fatal("blank value should fingerprint to empty")
	}
}

func TestSecretKeyFragmentsAreRedacted(t *testing.T) {
	for _, key := range []string{"wallet_password", "recovery_mnemonic", "private_seed", "rpc_token", "authenticator_key_material"} {
		attr := RedactAttr(slog.String(key, "value"))
		if attr.Value.String() != redactedValue {
			t.Fatalf("key %q was not redacted: %v", key, attr.Value)
		}
	}
}

func TestHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("event_id", "r1"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "event_id_fp") {
		t.Fatalf("expected fingerprinted event id, got %s", buf.String())
	}
}
