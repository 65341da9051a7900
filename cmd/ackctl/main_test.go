package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/aridsondez/monjobs/internal/ack"
	"github.com/aridsondez/monjobs/internal/api"
	"github.com/aridsondez/monjobs/internal/queue"
	"github.com/aridsondez/monjobs/internal/queue/store/memory"
)

func TestBuildPayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		fields  []string
		want    map[string]any
		wantErr bool
	}{
		{name: "nothing", want: map[string]any{}},
		{name: "fields", fields: []string{"worker=w1", "note=a=b"}, want: map[string]any{"worker": "w1", "note": "a=b"}},
		{name: "json", raw: `{"code":0}`, want: map[string]any{"code": float64(0)}},
		{name: "fields override json", raw: `{"worker":"w0"}`, fields: []string{"worker=w1"}, want: map[string]any{"worker": "w1"}},
		{name: "json null", raw: `null`, want: map[string]any{}},
		{name: "bad field", fields: []string{"worker"}, wantErr: true},
		{name: "empty key", fields: []string{"=w1"}, wantErr: true},
		{name: "bad json", raw: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPayload(tt.raw, tt.fields)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"ackctl"}, args...))
	return out.String(), err
}

func TestAckAndGetCommands(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.Insert(context.Background(), queue.Job{Queue: queue.MustParse("orders"), ID: "J1"}))
	srv := httptest.NewServer(api.NewHandler(ack.NewService(st), time.Second))
	defer srv.Close()

	out, err := runApp(t, "--server", srv.URL, "ack", "-q", "orders", "-j", "J1", "--set", "worker=w1")
	require.NoError(t, err)
	assert.Contains(t, out, "acknowledged")

	_, err = runApp(t, "--server", srv.URL, "ack", "-q", "orders", "-j", "J1", "--set", "worker=w2")
	require.Error(t, err)
	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.ExitCode())

	out, err = runApp(t, "--server", srv.URL, "get", "-q", "orders", "-j", "J1")
	require.NoError(t, err)
	var job map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, map[string]any{"worker": "w1"}, job["acknowledgment"])
}
