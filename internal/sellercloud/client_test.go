package sellercloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresuchdata/po-tool/internal/config"
	"github.com/andresuchdata/po-tool/internal/retry"
)

type fakeAPI struct {
	tokens   int32
	failures int32
	mux      *http.ServeMux
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{mux: http.NewServeMux()}
	api.mux.HandleFunc("/rest/api/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "ops" || body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&api.tokens, 1)
		io.WriteString(w, `{"access_token":"tok-1","expires_in":3600}`)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/token" && r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		api.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

func newTestClient(srv *httptest.Server) *Client {
	cfg := config.SellercloudConfig{BaseURL: srv.URL + "/rest/api", Username: "ops", Password: "pw"}
	return newClient(context.Background(), cfg, srv.Client()).WithPolicy(retry.Policy{Attempts: 3})
}

func TestExistingProductsPages(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.mux.HandleFunc("/rest/api/Catalog", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("model.sKU") != "A/S,A/M,B/S" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Query().Get("model.pageNumber") {
		case "":
			io.WriteString(w, `{"Items":[{"ID":"A/S"},{"ID":"A/M"}],"TotalResults":3}`)
		case "2":
			io.WriteString(w, `{"Items":[{"ID":"B/S"}],"TotalResults":3}`)
		default:
			io.WriteString(w, `{"Items":[],"TotalResults":3}`)
		}
	})

	c := newTestClient(srv)
	got, err := c.ExistingProducts(context.Background(), []string{"A/S", "A/M", "B/S"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[2] != "B/S" {
		t.Fatalf("got %v", got)
	}
	if api.tokens != 1 {
		t.Fatalf("token fetched %d times, want 1", api.tokens)
	}
}

func TestCreatePurchaseOrderAndReceive(t *testing.T) {
	api, srv := newFakeAPI(t)
	var received []ReceiveItem
	api.mux.HandleFunc("/rest/api/PurchaseOrders", func(w http.ResponseWriter, r *http.Request) {
		var in NewPurchaseOrder
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in.Products) != 1 || in.VendorID != 7 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{"Id":555}`)
	})
	api.mux.HandleFunc("/rest/api/PurchaseOrders/555/receive", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Items []ReceiveItem }
		_ = json.NewDecoder(r.Body).Decode(&body)
		received = body.Items
	})

	c := newTestClient(srv)
	id, err := c.CreatePurchaseOrder(context.Background(), NewPurchaseOrder{
		VendorID: 7,
		Products: []POProduct{{ProductID: "ATS-00000001/M", QtyUnitsOrdered: 4, UnitPrice: 12.5}},
	})
	if err != nil || id != 555 {
		t.Fatalf("id = %d, err = %v", id, err)
	}
	if err := c.Receive(context.Background(), id, []ReceiveItem{{ID: "ATS-00000001/M", QtyToReceive: 4}}); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(received) != 1 || received[0].QtyToReceive != 4 {
		t.Fatalf("received = %+v", received)
	}
}

func TestCallRetriesTransientErrors(t *testing.T) {
	prev := retry.Sleep
	retry.Sleep = func(context.Context, time.Duration) error { return nil }
	defer func() { retry.Sleep = prev }()

	api, srv := newFakeAPI(t)
	api.mux.HandleFunc("/rest/api/QueuedJobs/42", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&api.failures, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `{"Status":2}`)
	})

	st, err := newTestClient(srv).JobStatus(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != JobCompleted || !st.Finished() {
		t.Fatalf("status = %v", st)
	}
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	api, srv := newFakeAPI(t)
	var calls int32
	api.mux.HandleFunc("/rest/api/QueuedJobs/Priority", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "unknown job")
	})

	err := newTestClient(srv).SetJobPriority(context.Background(), 1, PriorityCritical)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want APIError 400", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
