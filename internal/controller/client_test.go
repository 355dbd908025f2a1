package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeController answers controller commands and records the queries it saw.
type fakeController struct {
	mu      sync.Mutex
	queries []url.Values
	respond func(q url.Values) (int, string)
}

func (f *fakeController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	status, body := f.respond(q)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeController) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return nil
	}
	return f.queries[len(f.queries)-1]
}

func newTestClient(t *testing.T, respond func(url.Values) (int, string)) (*Client, *fakeController) {
	t.Helper()
	fake := &fakeController{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/c4", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, fake
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "controller.local:9000"},
		{"ftp", "ftp://controller.local/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Config{BaseURL: tt.url}); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New(%q) error = %v, want ErrInvalidConfig", tt.url, err)
			}
		})
	}
}

func TestGetDevicesPreservesOrder(t *testing.T) {
	c, fake := newTestClient(t, func(url.Values) (int, string) {
		return http.StatusOK, `{"success":true,"31":{"deviceName":"B"},"7":{"deviceName":"A"},"100":{"deviceName":"C"}}`
	})

	got, err := c.GetDevices(context.Background())
	if err != nil {
		t.Fatalf("GetDevices() error = %v", err)
	}

	wantKeys := []string{"success", "31", "7", "100"}
	if len(got) != len(wantKeys) {
		t.Fatalf("len = %d, want %d", len(got), len(wantKeys))
	}
	for i, k := range wantKeys {
		if got[i].Key != k {
			t.Errorf("entry %d key = %q, want %q", i, got[i].Key, k)
		}
	}
	if string(got[0].Body) != "true" {
		t.Errorf("sentinel body = %s, want true", got[0].Body)
	}
	if cmd := fake.lastQuery().Get("command"); cmd != "getdevices" {
		t.Errorf("command = %q, want getdevices", cmd)
	}
}

func TestGetDevicesRejectsNonObject(t *testing.T) {
	c, _ := newTestClient(t, func(url.Values) (int, string) {
		return http.StatusOK, `["a","b"]`
	})
	if _, err := c.GetDevices(context.Background()); !errors.Is(err, ErrProtocol) {
		t.Errorf("GetDevices() error = %v, want ErrProtocol", err)
	}
}

func TestGetVariablesBatchesIDs(t *testing.T) {
	c, fake := newTestClient(t, func(url.Values) (int, string) {
		return http.StatusOK, `{"1100":"FAHRENHEIT","1130":72,"1132":null,"1104":true}`
	})

	got, err := c.GetVariables(context.Background(), "42", []string{"1100", "1130", "1100", "", "1132"})
	if err != nil {
		t.Fatalf("GetVariables() error = %v", err)
	}

	q := fake.lastQuery()
	if q.Get("command") != "get" || q.Get("proxyID") != "42" {
		t.Errorf("query = %v", q)
	}
	if ids := q.Get("variableID"); ids != "1100,1130,1132" {
		t.Errorf("variableID = %q, want deduplicated 1100,1130,1132", ids)
	}

	if got["1100"] != "FAHRENHEIT" || got["1130"] != "72" || got["1104"] != "true" {
		t.Errorf("values = %v", got)
	}
	if _, ok := got["1132"]; ok {
		t.Error("null values should be dropped")
	}
}

func TestGetVariablesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, `oops`, ErrTransport},
		{"not json", http.StatusOK, `<html>`, ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(url.Values) (int, string) { return tt.status, tt.body })
			if _, err := c.GetVariables(context.Background(), "1", []string{"1001"}); !errors.Is(err, tt.want) {
				t.Errorf("GetVariables() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGetVariablesUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: base, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.GetVariables(context.Background(), "1", []string{"1001"}); !errors.Is(err, ErrTransport) {
		t.Errorf("GetVariables() error = %v, want ErrTransport", err)
	}
}

func TestSetVariable(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"success", `{"success":"true"}`, nil},
		{"rejected", `{"success":"false"}`, ErrSetRejected},
		{"boolean success is not accepted", `{"success":true}`, ErrSetRejected},
		{"missing success", `{"result":"ok"}`, ErrProtocol},
		{"garbage", `ok`, ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestClient(t, func(url.Values) (int, string) { return http.StatusOK, tt.body })

			err := c.SetVariable(context.Background(), "42", "1132", "68")
			if tt.want == nil && err != nil {
				t.Fatalf("SetVariable() error = %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("SetVariable() error = %v, want %v", err, tt.want)
			}

			q := fake.lastQuery()
			if q.Get("command") != "set" || q.Get("proxyID") != "42" || q.Get("variableID") != "1132" || q.Get("newValue") != "68" {
				t.Errorf("query = %v", q)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	c, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	err = c.SetVariable(context.Background(), "1", "1001", "100")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("SetVariable() error = %v, want ErrTransport", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
	if !strings.Contains(err.Error(), "set") {
		t.Errorf("error %q should name the command", err)
	}
}
