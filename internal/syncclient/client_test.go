package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendAccepted(t *testing.T) {
	var got Mutation
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/mutations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get(DeviceHeader) != "dev-1" {
			t.Errorf("missing device header: %q", r.Header.Get(DeviceHeader))
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(MutationResponse{OK: true, ServerKey: "srv-7"})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "key-1", "dev-1")
	resp, err := c.Send(context.Background(), Mutation{MutationID: "m1", Action: "CREATE_PRODUCT", Payload: json.RawMessage(`{"name":"x"}`)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !resp.OK || resp.ServerKey != "srv-7" {
		t.Errorf("resp = %+v", resp)
	}
	if got.DeviceID != "dev-1" || got.MutationID != "m1" {
		t.Errorf("request body = %+v", got)
	}
}

func TestSendConflictIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(MutationResponse{Conflict: &Conflict{
			RemoteUpdatedAt: "2024-02-01T00:00:00.000Z",
			RemotePayload:   json.RawMessage(`{"name":"remote"}`),
		}})
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "", "d").Send(context.Background(), Mutation{Action: "UPDATE_PRODUCT"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.OK || resp.Conflict == nil || resp.Conflict.RemoteUpdatedAt != "2024-02-01T00:00:00.000Z" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSendErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"server error", 503, `{"error":{"code":"internal","message":"down"}}`, func(err error) bool {
			var re *RemoteError
			return errors.As(err, &re) && re.Status == 503 && re.Temporary()
		}},
		{"rejected", 422, `{"ok":false,"error":"bad payload"}`, func(err error) bool {
			var re *RemoteError
			return errors.As(err, &re) && re.Message == "bad payload"
		}},
		{"unauthorized", 401, `{"error":{"code":"unauthorized","message":"bad key"}}`, func(err error) bool {
			return errors.Is(err, ErrUnauthorized)
		}},
		{"forbidden", 403, `{}`, func(err error) bool { return errors.Is(err, ErrForbidden) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "k", "d").Send(context.Background(), Mutation{Action: "CREATE_FEE"})
			if err == nil || !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestSendNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL, "", "d").Send(ctx, Mutation{Action: "CREATE_FEE"})
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("got %v, want *NetworkError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("deadline should be visible through the chain: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("health check must not send credentials")
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "secret", "d").HealthCheck(context.Background())
	if err != nil || resp.Status != "ok" {
		t.Fatalf("HealthCheck = %+v, %v", resp, err)
	}
}
