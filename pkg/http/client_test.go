package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestSendAndParseFormBodyAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.URL.Query().Get("pair") != "XBTUSD" || r.PostForm.Get("nonce") != "7" {
			t.Errorf("unexpected request query=%v form=%v", r.URL.Query(), r.PostForm)
		}
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("test-agent"))
	var out struct{ OK bool }
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodPost,
		URL:         srv.URL,
		QueryParams: url.Values{"pair": {"XBTUSD"}},
		Body:        url.Values{"nonce": {"7"}},
	}, &out)
	if err != nil || !out.OK {
		t.Fatalf("out=%+v err=%v", out, err)
	}
}

func TestSendAndParseStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down\n"))
	}))
	defer srv.Close()

	err := NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusBadGateway || se.Body != "upstream down" || !se.Retryable() {
		t.Fatalf("unexpected %+v", se)
	}
	if (&StatusError{Status: http.StatusBadRequest}).Retryable() {
		t.Fatalf("400 must not retry")
	}
}
