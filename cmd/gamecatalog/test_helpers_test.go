package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"gamecatalog/internal/config"
	"gamecatalog/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	server     *httptest.Server
	requests   *atomic.Int64
}

// fakeUpstream answers thing requests for the identifiers in games.
func fakeUpstream(t *testing.T, games map[string]string, requests *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/thing") {
			http.NotFound(w, r)
			return
		}
		var b strings.Builder
		b.WriteString(`<items termsofuse="https://boardgamegeek.com/xmlapi/termsofuse">`)
		for _, id := range strings.Split(r.URL.Query().Get("id"), ",") {
			name, ok := games[id]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, `<item type="boardgame" id="%s"><name type="primary" sortindex="1" value="%s"/><yearpublished value="2017"/></item>`, id, name)
		}
		b.WriteString(`</items>`)
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(server.Close)
	return server
}

func setupCLITestEnv(t *testing.T, games map[string]string, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("BGG_API_TOKEN", "")
	t.Setenv("BUILD_MIN_ITEMS", "")

	requests := &atomic.Int64{}
	server := fakeUpstream(t, games, requests)
	opts = append([]testsupport.ConfigOption{testsupport.WithHosts(server.URL + "/xmlapi2")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "gamecatalog.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, server: server, requests: requests}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--log-level", "error"}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q\n%s", substr, output)
	}
}
