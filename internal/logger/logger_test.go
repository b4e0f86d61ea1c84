package logger

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/config"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = orig
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(out)
}

func TestNewStampsServiceAndEnv(t *testing.T) {
	out := captureStdout(t, func() {
		log := New(config.Config{AppEnv: "prod"})
		log.Info().Msg("boot")
	})
	if !strings.Contains(out, `"svc":"linear-pulse"`) {
		t.Fatalf("missing service stamp in %q", out)
	}
	if !strings.Contains(out, `"env":"prod"`) {
		t.Fatalf("missing env stamp in %q", out)
	}
	if !strings.Contains(out, `"message":"boot"`) {
		t.Fatalf("missing message in %q", out)
	}
}
