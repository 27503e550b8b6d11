package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/amishk599/nutrilens/internal/config"
)

func TestLoadConfig_DefaultsWhenImplicitFileMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NUTRILENS_CONFIG", "")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want default 3", cfg.Retry.MaxAttempts)
	}
}

func TestLoadConfig_ExplicitMissingFileFails(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("loadConfig: expected error for missing explicit path")
	}
}

func TestLoadConfig_EnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("jobs:\n  max_concurrent: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NUTRILENS_CONFIG", path)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Jobs.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want 4", cfg.Jobs.MaxConcurrent)
	}
}

func TestBuildPipeline_RequiresDetectorURL(t *testing.T) {
	t.Setenv("NUTRILENS_CONFIG", "")
	t.Chdir(t.TempDir())
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buildPipeline(cfg, nil, setupLogger(false)); err == nil {
		t.Fatal("buildPipeline: expected error without detector.url")
	}
}

func TestBuildSources_PacingDoesNotStarveHealthySource(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"products": [{"nutriments": {"energy-kcal_100g": 52}}]}`))
	}))
	defer srv.Close()

	// Six queued callers need ~1s of pacing, far beyond one attempt's timeout.
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
sources:
  openfoodfacts:
    base_url: %s
    min_delay: 200ms
retry:
  max_attempts: 3
  base_delay: 10ms
  timeout: 100ms
`, srv.URL)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	primary, _ := buildSources(cfg, srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	const callers = 6
	var (
		wg     sync.WaitGroup
		noData atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := primary.Lookup(context.Background(), "apple")
			if err != nil {
				t.Errorf("Lookup: %v", err)
				return
			}
			if rec == nil {
				noData.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := noData.Load(); n != 0 {
		t.Errorf("%d of %d lookups against a healthy source returned no data", n, callers)
	}
	if n := hits.Load(); n != callers {
		t.Errorf("source hits = %d, want %d", n, callers)
	}
}

func TestVersionCmd_ReportsToolchain(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	if !strings.HasPrefix(out, "nutrilens ") {
		t.Errorf("output = %q, want nutrilens prefix", out)
	}
	if !strings.Contains(out, runtime.Version()) || !strings.Contains(out, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("output = %q, want toolchain %s and platform", out, runtime.Version())
	}
}
