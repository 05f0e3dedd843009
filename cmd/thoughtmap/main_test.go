package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/thoughtmap/internal/config"
	"github.com/MrWong99/thoughtmap/internal/credential"
	"github.com/MrWong99/thoughtmap/pkg/concept"
	"github.com/MrWong99/thoughtmap/pkg/provider/llm"
	llmmock "github.com/MrWong99/thoughtmap/pkg/provider/llm/mock"
)

const validKey = "sk-test-0123456789abcdef"

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseCmd(t *testing.T) {
	t.Parallel()
	resp := "- 学習\n  - 記憶 [relation: の仕組み]\n  - 理解\n- 睡眠\n"

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"tree", []string{"parse"}, []string{"学習", "記憶", "(の仕組み)", "理解", "睡眠"}},
		{"json", []string{"parse", "--json"}, []string{`"text": "学習"`, `"children"`}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := execute(t, resp, tc.args...)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestParseCmd_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := execute(t, "", "parse", "--file", filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestKeyCmd_RoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf("credentials:\n  store: file\n  path: %s\n", filepath.Join(dir, "cred.yaml")))
	run := func(args ...string) string {
		t.Helper()
		out, err := execute(t, "", append([]string{"--config", cfgPath, "key"}, args...)...)
		if err != nil {
			t.Fatalf("key %v: %v", args, err)
		}
		return out
	}

	if out := run("status"); !strings.Contains(out, "no API key") {
		t.Errorf("status before save = %q", out)
	}
	if out := run("save", validKey); !strings.Contains(out, credential.Mask(validKey)) {
		t.Errorf("save = %q", out)
	}
	if out := run("status"); !strings.Contains(out, credential.Mask(validKey)) {
		t.Errorf("status after save = %q", out)
	}
	run("remove")
	if out := run("status"); !strings.Contains(out, "no API key") {
		t.Errorf("status after remove = %q", out)
	}
}

func TestKeyCmd_Invalid(t *testing.T) {
	t.Parallel()
	for _, args := range [][]string{
		{"key", "validate", "sk-short"},
		{"--config", "missing.yaml", "key", "status"},
	} {
		if _, err := execute(t, "", args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}

	_, err := execute(t, "", "key", "validate", "nope")
	if !errors.Is(err, credential.ErrInvalid) {
		t.Errorf("validate error = %v, want ErrInvalid", err)
	}
	if out, err := execute(t, "", "key", "validate", validKey); err != nil || !strings.Contains(out, "valid") {
		t.Errorf("validate = %q, %v", out, err)
	}
}

// fakeOpenAI answers chat completions with the given replies in order,
// repeating the last one.
func fakeOpenAI(t *testing.T, replies ...string) *httptest.Server {
	t.Helper()
	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+validKey {
			http.Error(w, "bad key "+got, http.StatusUnauthorized)
			return
		}
		mu.Lock()
		reply := replies[min(calls, len(replies)-1)]
		calls++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-3.5-turbo",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractCmd(t *testing.T) {
	t.Parallel()
	srv := fakeOpenAI(t, "- 学習\n  - 記憶\n", "1. 記憶はどこに保存される?\n2. 忘却とは?\n")
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf(
		"providers:\n  llm:\n    name: openai\n    base_url: %s/v1/\ncredentials:\n  store: memory\n", srv.URL))
	transcript := writeFile(t, dir, "transcript.txt", "学習と記憶について話しましょう")

	out, err := execute(t, "", "--config", cfgPath, "extract", "--file", transcript, "--key", validKey, "--followups-for", "記憶")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for _, w := range []string{"学習", "記憶", "忘却とは?"} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestExtractCmd_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "credentials:\n  store: memory\n")
	transcript := writeFile(t, dir, "t.txt", "hello")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"empty transcript", []string{"extract", "--key", validKey}, "transcript is empty"},
		{"invalid key", []string{"extract", "--file", transcript, "--key", "sk-short"}, "not valid"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, "", append([]string{"--config", cfgPath}, tc.args...)...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestRenderForest(t *testing.T) {
	t.Parallel()
	forest := []*concept.Node{
		{ID: "a", Text: "学習", Metadata: &concept.Metadata{Mentions: 3}, Relations: []concept.Relation{{TargetID: "b", Label: "の詳細"}}, Children: []*concept.Node{
			{ID: "b", Text: "記憶"},
		}},
	}
	out := renderForest(forest)
	for _, w := range []string{"学習", "×3", "記憶", "(の詳細)"} {
		if !strings.Contains(out, w) {
			t.Errorf("missing %q in:\n%s", w, out)
		}
	}
	if got := renderForest(nil); !strings.Contains(got, "no concepts") {
		t.Errorf("empty forest = %q", got)
	}
}

func TestFollowupsMarkdown(t *testing.T) {
	t.Parallel()
	md := followupsMarkdown("記憶", "学習", []string{"なぜ?", "どうやって?"})
	for _, w := range []string{"## 記憶", "*学習*", "1. なぜ?", "2. どうやって?"} {
		if !strings.Contains(md, w) {
			t.Errorf("missing %q in:\n%s", w, md)
		}
	}
	if md := followupsMarkdown("x", "", nil); !strings.Contains(md, "No follow-up") {
		t.Errorf("empty questions = %q", md)
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var gotKeys []string
	reg.RegisterLLM("fake", func(e config.ProviderEntry) (llm.Provider, error) {
		gotKeys = append(gotKeys, e.APIKey)
		return &llmmock.Provider{ModelName: e.Model}, nil
	})
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM:          config.ProviderEntry{Name: "fake", APIKey: "from-config", Model: "m"},
		LLMFallbacks: []config.ProviderEntry{{Name: "fake", Model: "fb"}, {Name: "unknown"}},
		STT:          config.ProviderEntry{Name: "unknown"},
	}}

	ps := buildProviders(cfg, reg)
	if len(ps.Fallbacks) != 1 || ps.Fallbacks[0].Name != "fake" {
		t.Errorf("fallbacks = %+v, want only the registered one", ps.Fallbacks)
	}
	if ps.STT != nil {
		t.Error("unknown STT provider should leave STT nil")
	}

	if _, err := ps.LLM(validKey); err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, err := ps.LLM(""); err != nil {
		t.Fatalf("factory: %v", err)
	}
	if len(gotKeys) != 3 || gotKeys[1] != validKey || gotKeys[2] != "from-config" {
		t.Errorf("keys passed to factory = %v", gotKeys)
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, 0)
	for _, name := range config.ValidProviderNames["llm"] {
		if !strings.Contains(strings.Join(reg.LLMNames(), ","), name) {
			t.Errorf("llm provider %q not registered", name)
		}
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "deepgram", APIKey: "dg-key"}); err != nil {
		t.Errorf("deepgram: %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", Model: "gpt-3.5-turbo"}); err == nil {
		t.Error("openai without a key should fail")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), ".env")
	if err := loadEnv(missing, false); err != nil {
		t.Errorf("implicit missing env file: %v", err)
	}
	if err := loadEnv(missing, true); err == nil {
		t.Error("explicit missing env file should fail")
	}
}
