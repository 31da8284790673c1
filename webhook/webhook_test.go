package webhook

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/spf13/viper"
)

func TestClientSend(t *testing.T) {
	var got Event
	var signature, timestamp string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get("X-Signature")
		timestamp = r.Header.Get("X-Timestamp")
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("body is not JSON: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(&Config{URL: srv.URL, Secret: "s3cret"})
	ev := Event{Job: "mails", File: "in.csv", Records: 3, Dropped: 1, Bytes: 120, Timestamp: 1700000000}
	if err := c.Send(ev); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got != ev {
		t.Errorf("received %+v, want %+v", got, ev)
	}
	if timestamp != strconv.FormatInt(ev.Timestamp, 10) {
		t.Errorf("X-Timestamp = %q", timestamp)
	}
	if want := c.Sign(ev.Timestamp, body); signature != want {
		t.Errorf("X-Signature = %q, want %q", signature, want)
	}
}

func TestClientSendStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewClient(&Config{URL: srv.URL}).Send(Event{Job: "x"}); err == nil {
		t.Fatal("Send() expected error for 502")
	}
}

func TestClientDisabled(t *testing.T) {
	c := NewClient(&Config{})
	if c.Enabled() {
		t.Fatal("Enabled() = true without URL")
	}
	if err := c.Send(Event{Job: "x"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestNewFromViper(t *testing.T) {
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewBufferString(`{"webhook": {"url": "http://hooks.local/x", "secret": "k", "timeout": "2s"}}`)); err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	c := New(v)
	if !c.Enabled() || c.config.Secret != "k" {
		t.Errorf("config = %+v", c.config)
	}
	if c.http.Timeout.Seconds() != 2 {
		t.Errorf("timeout = %v, want 2s", c.http.Timeout)
	}
}
