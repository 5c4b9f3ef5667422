package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promptinfra/internal/config"
	"github.com/roach88/promptinfra/internal/pipeline"
)

// testEnv is a state directory with a config that uses only the template
// gateway and the file ledger.
type testEnv struct {
	dir    string
	config string
	env    map[string]string
}

func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`state_dir: %s
gateways:
  priority:
    - kind: openai
      api_key_env: TEST_OPENAI_KEY
    - kind: template
output:
  artifact_file: %s
tags:
  cost_center: platform
%s`, filepath.Join(dir, "state"), filepath.Join(dir, "main.tf"), extra)

	path := filepath.Join(dir, "promptinfra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return &testEnv{dir: dir, config: path, env: map[string]string{}}
}

func (e *testEnv) options(format string, ids ...string) *RootOptions {
	return &RootOptions{
		Format:     format,
		ConfigPath: e.config,
		Lookup: func(k string) (string, bool) {
			v, ok := e.env[k]
			return v, ok
		},
		Identity: pipeline.NewSequenceGenerator(ids...),
		AWSProbe: func(context.Context, string) (aws.Config, config.Capabilities) {
			return aws.Config{}, config.Capabilities{}
		},
	}
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

// response decodes a JSON CLIResponse whose data has type T.
type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// fakeTFC serves configuration-version creation and uploads. Uploads answer
// with uploadStatus.
func fakeTFC(t *testing.T, uploadStatus int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	var versions atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v2/workspaces/{ws}/configuration-versions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tf-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := versions.Add(1)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"data":{"id":"cv-%d","attributes":{"upload-url":"%s/upload/%d"}}}`, n, srv.URL, n)
	})
	mux.HandleFunc("PUT /upload/{n}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(uploadStatus)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func publishConfig(baseURL string) string {
	return fmt.Sprintf(`publish:
  enabled: true
  base_url: %s
  organization: acme
  workspace: staging
  token_env: TEST_TF_TOKEN
`, baseURL)
}
