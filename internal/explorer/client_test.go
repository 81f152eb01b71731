package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"publishScope/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestTransactionSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathTransaction || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["hash"] != "0xAA" {
			t.Errorf("unexpected hash %q", body["hash"])
		}
		_, _ = w.Write([]byte(`{"code":0,"message":"Success","generated_at":1700000100,
			"data":{"hash":"0xAA","from":"0x1","create_at":1700000050,"to":{"address":"0x2"}}}`))
	})

	got, err := client.Transaction(context.Background(), "0xAA")
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	want := model.Enrichment{Message: "Success", Timestamp: 1700000050, TxHash: "0xaa", From: "0x1", To: "0x2"}
	if got != want {
		t.Fatalf("enrichment mismatch: %+v != %+v", got, want)
	}
}

func TestTransactionFallsBackToGeneratedAt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"message":"Success","generated_at":1700000100,
			"data":{"hash":"0xbb","from":"0x1","to":{"address":"0x2"}}}`))
	})

	got, err := client.Transaction(context.Background(), "0xbb")
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if got.Timestamp != 1700000100 {
		t.Fatalf("timestamp fallback mismatch: %d", got.Timestamp)
	}
}

func TestTransactionRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":10004,"message":"Record Not Found","data":null}`))
	})

	_, err := client.Transaction(context.Background(), "0xcc")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected rejected, got %v", err)
	}
	if errors.Is(err, model.ErrUpstreamUnavailable) {
		t.Fatalf("rejection must not look like an upstream failure")
	}
}

func TestTransactionUpstreamFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	if _, err := client.Transaction(context.Background(), "0xdd"); !errors.Is(err, model.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestTransactionUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		_, err := client.Transaction(context.Background(), "0xdd")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("status %d: expected unauthorized, got %v", status, err)
		}
		if errors.Is(err, model.ErrUpstreamUnavailable) {
			t.Fatalf("status %d: a bad key must not look transient", status)
		}
	}
}

func TestTransactionTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Transaction(context.Background(), "0xee"); !errors.Is(err, model.ErrUpstreamUnavailable) {
		t.Fatalf("expected timeout as upstream unavailable, got %v", err)
	}
}

func TestTokenHolders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["contract"] != "0xtoken" || body["row"] != float64(100) {
			t.Errorf("unexpected body %+v", body)
		}
		_, _ = w.Write([]byte(`{"code":0,"message":"Success","data":{"count":2,"list":[{"holder":"0xh1"},{"holder":"0xh2"}]}}`))
	})

	holders, err := client.TokenHolders(context.Background(), "0xtoken", 0, 100)
	if err != nil {
		t.Fatalf("holders: %v", err)
	}
	if len(holders) != 2 || holders[0] != "0xh1" || holders[1] != "0xh2" {
		t.Fatalf("holders mismatch: %v", holders)
	}
}

func TestERC20TransfersValueFormats(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"message":"Success","data":{"count":2,"list":[
			{"hash":"0x1","create_at":1700000000,"from":"0xa","to":"0xb","value":"1500000000000000000","symbol":"TRAC","decimals":18},
			{"hash":"0x2","create_at":1700000001,"from":"0xa","to":"0xb","value":2000000000000000000,"symbol":"TRAC","decimals":18}
		]}}`))
	})

	transfers, err := client.ERC20Transfers(context.Background(), "0xa", 0, 40)
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(transfers))
	}
	if transfers[0].Value != "1500000000000000000" || transfers[1].Value != "2000000000000000000" {
		t.Fatalf("value mismatch: %+v", transfers)
	}
}

func TestERC20TransfersEmptyPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"message":"Success","data":{"count":0,"list":null}}`))
	})

	transfers, err := client.ERC20Transfers(context.Background(), "0xa", 3, 40)
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if len(transfers) != 0 {
		t.Fatalf("expected empty page")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
