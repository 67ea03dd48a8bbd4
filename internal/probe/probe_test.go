package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeLogger struct{}

func (fakeLogger) Printf(string, ...any) {}

func newTestProbe(handler http.HandlerFunc) (*HTTPProbe, func()) {
	srv := httptest.NewServer(handler)
	p := NewHTTPProbe(Config{EndpointTemplate: srv.URL + "/%s/healthz"}, fakeLogger{})
	return p, srv.Close
}

func TestCheckHealthyWithScoreBody(t *testing.T) {
	p, done := newTestProbe(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"score": 87.5}`))
	})
	defer done()

	score, err := p.Check(context.Background(), "us-east-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 87.5 {
		t.Fatalf("score = %v, want 87.5", score)
	}
}

func TestCheckHealthyWithoutBody(t *testing.T) {
	p, done := newTestProbe(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	defer done()

	score, err := p.Check(context.Background(), "us-east-1")
	if err != nil {
		t.Fatal(err)
	}
	if score != 100 {
		t.Fatalf("score = %v, want 100", score)
	}
}

func TestCheckStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   float64
	}{
		{http.StatusInternalServerError, 0},
		{http.StatusBadGateway, 0},
		{http.StatusNotFound, 25},
		{http.StatusOK, 100},
	}
	for _, tc := range cases {
		p, done := newTestProbe(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		score, err := p.Check(context.Background(), "eu-west-1")
		done()
		if err != nil {
			t.Fatalf("status %d: unexpected error: %v", tc.status, err)
		}
		if score != tc.want {
			t.Fatalf("status %d: score = %v, want %v", tc.status, score, tc.want)
		}
	}
}

func TestCheckScoreClamped(t *testing.T) {
	p, done := newTestProbe(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"score": 250}`))
	})
	defer done()

	score, err := p.Check(context.Background(), "us-east-1")
	if err != nil {
		t.Fatal(err)
	}
	if score != 100 {
		t.Fatalf("score = %v, want clamp to 100", score)
	}
}

func TestCheckConnectionRefused(t *testing.T) {
	p := NewHTTPProbe(Config{EndpointTemplate: "http://127.0.0.1:1/%s"}, fakeLogger{})
	if _, err := p.Check(context.Background(), "us-east-1"); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}
