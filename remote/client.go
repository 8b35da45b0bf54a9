package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	ProtocolJSONRPC    = "jsonrpc"
	ProtocolJSONRPCSSL = "jsonrpc+ssl"
)

type Config struct {
	Host     string
	Protocol string
	Port     int
	Database string
	User     string
	Password string

	Timeout           time.Duration
	RequestsPerSecond float64
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

func (c Config) endpoint() string {
	scheme := "http"
	if c.Protocol == ProtocolJSONRPCSSL {
		scheme = "https"
	}
	host := strings.TrimRight(c.Host, "/")
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if c.Port > 0 {
		return fmt.Sprintf("%s://%s:%d/jsonrpc", scheme, host, c.Port)
	}
	return fmt.Sprintf("%s://%s/jsonrpc", scheme, host)
}

// Reader is the read-only surface of the legacy server the engine relies on.
type Reader interface {
	Count(ctx context.Context, model string, domain Domain, opts ...SearchOption) (int, error)
	SearchIds(ctx context.Context, model string, domain Domain, opts ...SearchOption) ([]int, error)
	ReadFields(ctx context.Context, model string, ids []int, fields []string) ([]Row, error)
	SearchRead(ctx context.Context, model string, domain Domain, fields []string, opts ...SearchOption) ([]Row, error)
}

// Row is one undecoded record as returned by the legacy server.
type Row map[string]json.RawMessage

// Session is an authenticated JSON-RPC connection to one legacy database.
type Session struct {
	cfg      Config
	endpoint string
	uid      int
	http     *http.Client
	limiter  *rate.Limiter
	seq      atomic.Int64
}

var _ Reader = (*Session)(nil)

// Connect logs in and returns a session bound to the resulting uid.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Database == "" || cfg.User == "" {
		return nil, errors.New("remote host, database and user are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	s := &Session{
		cfg:      cfg,
		endpoint: cfg.endpoint(),
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, 1),
	}

	raw, err := s.call(ctx, "common", "login", cfg.Database, cfg.User, cfg.Password)
	if err != nil {
		var rle *RemoteLogicError
		if errors.As(err, &rle) {
			return nil, &AuthError{Database: cfg.Database, User: cfg.User, Err: err}
		}
		return nil, err
	}
	var uid int
	if err := json.Unmarshal(raw, &uid); err != nil || uid <= 0 {
		// a rejected login answers false
		return nil, &AuthError{Database: cfg.Database, User: cfg.User}
	}
	s.uid = uid
	return s, nil
}

func (s *Session) UID() int {
	if s == nil {
		return 0
	}
	return s.uid
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    rpcErrorData `json:"data"`
}

type rpcErrorData struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (s *Session) call(ctx context.Context, service, method string, args ...any) (json.RawMessage, error) {
	if s == nil || s.http == nil {
		return nil, ErrNotConnected
	}
	op := service + "." + method
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      s.seq.Add(1),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(payload)))}
	}

	var parsed rpcResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if parsed.Error != nil {
		msg := parsed.Error.Data.Message
		if msg == "" {
			msg = parsed.Error.Message
		}
		return nil, &RemoteLogicError{Method: op, Code: parsed.Error.Code, Name: parsed.Error.Data.Name, Message: msg}
	}
	return parsed.Result, nil
}

func (s *Session) executeKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	if s == nil || s.uid == 0 {
		return nil, ErrNotConnected
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	raw, err := s.call(ctx, "object", "execute_kw", s.cfg.Database, s.uid, s.cfg.Password, model, method, args, kwargs)
	if err != nil {
		var rle *RemoteLogicError
		if errors.As(err, &rle) {
			rle.Model = model
			rle.Method = method
			if strings.Contains(rle.Name, "AccessDenied") {
				return nil, &AuthError{Database: s.cfg.Database, User: s.cfg.User, Err: rle}
			}
		}
		return nil, err
	}
	return raw, nil
}

type searchOptions struct {
	order    string
	limit    int
	offset   int
	inactive bool
}

type SearchOption func(*searchOptions)

// Order sets the legacy order clause, e.g. "id asc".
func Order(order string) SearchOption {
	return func(o *searchOptions) { o.order = order }
}

func Limit(n int) SearchOption {
	return func(o *searchOptions) { o.limit = n }
}

func Offset(n int) SearchOption {
	return func(o *searchOptions) { o.offset = n }
}

// WithInactive includes archived records.
func WithInactive() SearchOption {
	return func(o *searchOptions) { o.inactive = true }
}

func buildKwargs(opts []SearchOption) map[string]any {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}
	kw := map[string]any{}
	if o.order != "" {
		kw["order"] = o.order
	}
	if o.limit > 0 {
		kw["limit"] = o.limit
	}
	if o.offset > 0 {
		kw["offset"] = o.offset
	}
	if o.inactive {
		kw["context"] = map[string]any{"active_test": false}
	}
	return kw
}

func (s *Session) Count(ctx context.Context, model string, domain Domain, opts ...SearchOption) (int, error) {
	kw := buildKwargs(opts)
	delete(kw, "order")
	delete(kw, "limit")
	delete(kw, "offset")
	raw, err := s.executeKw(ctx, model, "search_count", []any{domain.terms()}, kw)
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, &TransportError{Op: model + ".search_count", Err: err}
	}
	return n, nil
}

func (s *Session) SearchIds(ctx context.Context, model string, domain Domain, opts ...SearchOption) ([]int, error) {
	raw, err := s.executeKw(ctx, model, "search", []any{domain.terms()}, buildKwargs(opts))
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, &TransportError{Op: model + ".search", Err: err}
	}
	return ids, nil
}

func (s *Session) ReadFields(ctx context.Context, model string, ids []int, fields []string) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	kw := map[string]any{"context": map[string]any{"active_test": false}}
	if len(fields) > 0 {
		kw["fields"] = fields
	}
	raw, err := s.executeKw(ctx, model, "read", []any{ids}, kw)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, &TransportError{Op: model + ".read", Err: err}
	}
	return rows, nil
}

func (s *Session) SearchRead(ctx context.Context, model string, domain Domain, fields []string, opts ...SearchOption) ([]Row, error) {
	kw := buildKwargs(opts)
	if len(fields) > 0 {
		kw["fields"] = fields
	}
	raw, err := s.executeKw(ctx, model, "search_read", []any{domain.terms()}, kw)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, &TransportError{Op: model + ".search_read", Err: err}
	}
	return rows, nil
}
