package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeCall struct {
	Service string
	Method  string
	Args    []json.RawMessage
}

// fakeServer answers legacy JSON-RPC calls through handle.
func fakeServer(t *testing.T, handle func(call fakeCall) (any, *rpcError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jsonrpc" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			ID     int64 `json:"id"`
			Params struct {
				Service string            `json:"service"`
				Method  string            `json:"method"`
				Args    []json.RawMessage `json:"args"`
			} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result, rerr := handle(fakeCall{Service: req.Params.Service, Method: req.Params.Method, Args: req.Params.Args})
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rerr != nil {
			resp["error"] = rerr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		Host:       srv.URL,
		Protocol:   ProtocolJSONRPC,
		Database:   "legacy",
		User:       "admin",
		Password:   "secret",
		HTTPClient: srv.Client(),
	}
}

func TestConnectRejectsFalseUid(t *testing.T) {
	srv := fakeServer(t, func(c fakeCall) (any, *rpcError) {
		return false, nil
	})
	_, err := Connect(context.Background(), testConfig(srv))
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.User != "admin" || authErr.Database != "legacy" {
		t.Fatalf("unexpected auth error %+v", authErr)
	}
}

func TestSearchReadSendsDomainAndOptions(t *testing.T) {
	var got fakeCall
	srv := fakeServer(t, func(c fakeCall) (any, *rpcError) {
		if c.Service == "common" {
			return 7, nil
		}
		got = c
		return []map[string]any{{"id": 3, "name": "Cash", "active": false}}, nil
	})
	s, err := Connect(context.Background(), testConfig(srv))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if s.UID() != 7 {
		t.Fatalf("expected uid 7, got %d", s.UID())
	}

	rows, err := s.SearchRead(context.Background(), ModelJournal, Eq("type", "cash"), []string{"name", "active"}, Order("id asc"), Limit(10), WithInactive())
	if err != nil {
		t.Fatalf("search_read: %v", err)
	}
	if len(rows) != 1 || string(rows[0]["name"]) != `"Cash"` {
		t.Fatalf("unexpected rows %v", rows)
	}
	if got.Service != "object" || got.Method != "execute_kw" {
		t.Fatalf("expected object.execute_kw, got %s.%s", got.Service, got.Method)
	}
	if len(got.Args) != 7 {
		t.Fatalf("expected 7 execute_kw args, got %d", len(got.Args))
	}
	if string(got.Args[3]) != `"account.journal"` || string(got.Args[4]) != `"search_read"` {
		t.Fatalf("unexpected model/method %s %s", got.Args[3], got.Args[4])
	}
	if string(got.Args[5]) != `[[["type","=","cash"]]]` {
		t.Fatalf("unexpected domain args %s", got.Args[5])
	}
	var kw map[string]any
	if err := json.Unmarshal(got.Args[6], &kw); err != nil {
		t.Fatalf("kwargs: %v", err)
	}
	if kw["order"] != "id asc" || kw["limit"] != float64(10) {
		t.Fatalf("unexpected kwargs %v", kw)
	}
	ctxKw, _ := kw["context"].(map[string]any)
	if ctxKw["active_test"] != false {
		t.Fatalf("expected active_test=false, got %v", kw["context"])
	}
}

func TestExecuteKwErrors(t *testing.T) {
	tests := []struct {
		name  string
		fault *rpcError
		check func(error) bool
	}{
		{
			name:  "access denied becomes auth error",
			fault: &rpcError{Code: 200, Message: "Odoo Server Error", Data: rpcErrorData{Name: "odoo.exceptions.AccessDenied", Message: "Access denied"}},
			check: func(err error) bool { var e *AuthError; return errors.As(err, &e) },
		},
		{
			name:  "other faults are remote logic errors",
			fault: &rpcError{Code: 200, Message: "Odoo Server Error", Data: rpcErrorData{Name: "ValueError", Message: "Invalid field 'foo'"}},
			check: func(err error) bool {
				var e *RemoteLogicError
				return errors.As(err, &e) && e.Model == ModelFolio && strings.Contains(e.Message, "foo")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeServer(t, func(c fakeCall) (any, *rpcError) {
				if c.Service == "common" {
					return 2, nil
				}
				return nil, tt.fault
			})
			s, err := Connect(context.Background(), testConfig(srv))
			if err != nil {
				t.Fatalf("connect: %v", err)
			}
			_, err = s.SearchIds(context.Background(), ModelFolio, nil)
			if !tt.check(err) {
				t.Fatalf("unexpected error %T: %v", err, err)
			}
			if IsRetryable(err) {
				t.Fatalf("%v must not be retryable", err)
			}
		})
	}
}

func TestNon2xxIsTransportError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":5}`))
			return
		}
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	s, err := Connect(context.Background(), testConfig(srv))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, err = s.Count(context.Background(), ModelPartner, nil)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", te.StatusCode)
	}
	if !IsRetryable(err) {
		t.Fatal("transport errors are retryable")
	}
}

func TestReadFieldsSkipsEmptyIds(t *testing.T) {
	s := &Session{uid: 1}
	rows, err := s.ReadFields(context.Background(), ModelFolio, nil, []string{"name"})
	if err != nil || rows != nil {
		t.Fatalf("expected no call for empty ids, got %v %v", rows, err)
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Host: "legacy.example.com", Protocol: ProtocolJSONRPC, Port: 8069}, "http://legacy.example.com:8069/jsonrpc"},
		{Config{Host: "https://legacy.example.com/", Protocol: ProtocolJSONRPCSSL, Port: 443}, "https://legacy.example.com:443/jsonrpc"},
		{Config{Host: "127.0.0.1:9000", Protocol: ProtocolJSONRPC}, "http://127.0.0.1:9000/jsonrpc"},
	}
	for _, tt := range tests {
		if got := tt.cfg.endpoint(); got != tt.want {
			t.Fatalf("endpoint(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}
