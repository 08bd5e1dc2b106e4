package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/remotectl/internal/auth"
	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/ops"
	"github.com/danmuck/remotectl/internal/ops/builtin"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/result"
	"github.com/danmuck/remotectl/internal/server"
	"github.com/danmuck/remotectl/internal/storage"
	"github.com/danmuck/remotectl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func clientCodec(t *testing.T) *codec.Registry {
	t.Helper()
	reg := codec.NewRegistry()
	if err := builtin.RegisterTypes(reg); err != nil {
		t.Fatalf("register types: %v", err)
	}
	return reg
}

func opChain(t *testing.T, reg *codec.Registry, dialect command.Dialect, entry string, args ...any) command.Chain {
	t.Helper()
	raw := make([][]byte, 0, len(args))
	for _, a := range args {
		b, err := reg.Marshal(a)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		raw = append(raw, b)
	}
	payload, _ := command.MarshalInvocation(command.Invocation{Entry: entry, Args: raw})
	def, _ := command.MarshalDefinition(command.Definition{Name: entry, Dialect: dialect})
	c, err := command.New(dialect, payload, def, nil)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	ch, err := command.NewChain(dialect, c)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	return ch
}

func newRouter(t *testing.T, limits frame.Limits, limiter *MapLimiter) *gin.Engine {
	t.Helper()
	recv, err := server.NewStandard(server.Config{Contexts: storage.Empty(), Limits: limits})
	if err != nil {
		t.Fatalf("receiver: %v", err)
	}
	return NewRouter(RouterConfig{NodeID: "test"}, NewHandler(recv, limits, limiter))
}

func post(t *testing.T, r http.Handler, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, DefaultPath, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.RemoteAddr = "10.0.0.1:5555"
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func newTestServerOrSkip(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	func() {
		defer func() {
			if r := recover(); r != nil {
				srv = nil
			}
		}()
		srv = httptest.NewServer(handler)
	}()
	if srv == nil {
		t.Skip("skipping listener test in restricted environment")
	}
	return srv
}

func TestHandlerExecutesChain(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	r := newRouter(t, frame.DefaultLimits(), nil)
	body, _ := command.EncodeChain(opChain(t, reg, command.DialectOp, "value.const", "hello"), frame.DefaultLimits())

	rr := post(t, r, ChainMediaType, body)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != ResultMediaType {
		t.Fatalf("status=%d type=%q body=%s", rr.Code, rr.Header().Get("Content-Type"), rr.Body.String())
	}
	res, err := result.Read(rr.Body, frame.DefaultLimits(), reg)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v, _ := res.Decode(reg); v != "hello" {
		t.Fatalf("unexpected result %s", res)
	}
}

func TestHandlerStatuses(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	valid, _ := command.EncodeChain(opChain(t, reg, command.DialectOp, "value.const", "hello"), frame.DefaultLimits())
	unknown, _ := command.EncodeChain(opChain(t, reg, "python", "anything"), frame.DefaultLimits())
	big, _ := command.EncodeChain(opChain(t, reg, command.DialectOp, "value.const", string(make([]byte, 4096))), frame.DefaultLimits())

	r := newRouter(t, frame.Limits{MaxPayloadBytes: 1024}, nil)
	cases := []struct {
		name        string
		contentType string
		body        []byte
		want        int
	}{
		{"wrong content type", "application/json", valid, http.StatusUnsupportedMediaType},
		{"missing content type", "", valid, http.StatusUnsupportedMediaType},
		{"content type with params", ChainMediaType + "; charset=binary", valid, http.StatusOK},
		{"unknown dialect", ChainMediaType, unknown, http.StatusBadRequest},
		{"garbage", ChainMediaType, []byte("this is not a frame at all, not even close to one"), http.StatusBadRequest},
		{"oversized", ChainMediaType, big, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := post(t, r, tc.contentType, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("got %d want %d body=%s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, DefaultPath, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("GET: got %d", rr.Code)
	}
}

func TestHandlerRateLimits(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	recv, _ := server.NewStandard(server.Config{})
	h := NewHandler(recv, frame.DefaultLimits(), NewMapLimiter(1, 1, time.Minute))
	fixed := time.Unix(1_700_000_000, 0)
	h.now = func() time.Time { return fixed }
	r := NewRouter(RouterConfig{}, h)

	body, _ := command.EncodeChain(opChain(t, reg, command.DialectOp, "value.const", 1), frame.DefaultLimits())
	if rr := post(t, r, ChainMediaType, body); rr.Code != http.StatusOK {
		t.Fatalf("first request: %d", rr.Code)
	}
	if rr := post(t, r, ChainMediaType, body); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", rr.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	testlog.Start(t)
	r := newRouter(t, frame.DefaultLimits(), nil)
	for _, path := range []string{"/health", "/metrics"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: %d", path, rr.Code)
		}
	}
}

func TestTransportRoundTrip(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	srv := newTestServerOrSkip(t, newRouter(t, frame.DefaultLimits(), nil))
	defer srv.Close()

	tr := NewTransport(srv.URL+DefaultPath, reg)
	res, err := tr.Send(context.Background(), opChain(t, reg, command.DialectOp, "math.div", 0))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	v, _ := res.Decode(reg)
	var ae *builtin.ArithmeticError
	if res.Kind() != result.KindFailure || !errors.As(v.(error), &ae) {
		t.Fatalf("expected arithmetic failure, got %s", res)
	}

	_, err = NewTransport(srv.URL+"/health", reg).Send(context.Background(), opChain(t, reg, command.DialectOp, "value.const", 1))
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("expected StatusError, got %v", err)
	}
}

func TestTransportOverH2C(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	srv := newTestServerOrSkip(t, NewServer("", newRouter(t, frame.DefaultLimits(), nil)).Handler)
	defer srv.Close()

	res, err := NewTransport(srv.URL+DefaultPath, reg, WithH2C()).Send(context.Background(), opChain(t, reg, command.DialectOp, "value.const", "h2"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if v, _ := res.Decode(reg); v != "h2" {
		t.Fatalf("unexpected result %s", res)
	}
}

func TestStatusFor(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		err  error
		want int
	}{
		{frame.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: boom", server.ErrContextUnavailable), http.StatusInternalServerError},
		{&command.ChainTypeNotFoundError{Dialect: "x"}, http.StatusBadRequest},
		{&server.UnsupportedCommandTypeError{Dialect: "lua"}, http.StatusBadRequest},
		{frame.ErrBadMagic, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("%v: got %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestMapLimiter(t *testing.T) {
	testlog.Start(t)
	var disabled *MapLimiter
	if !disabled.Allow("k", time.Now()) || NewMapLimiter(0, 1, 0) != nil {
		t.Fatalf("non-positive settings must disable limiting")
	}

	l := NewMapLimiter(1, 2, time.Second)
	now := time.Unix(0, 0)
	if !l.Allow("a", now) || !l.Allow("a", now) || l.Allow("a", now) {
		t.Fatalf("burst of 2 not enforced")
	}
	if !l.Allow("b", now) {
		t.Fatalf("keys must be independent")
	}
	if !l.Allow(" ", now) {
		t.Fatalf("empty keys are never limited")
	}

	later := now.Add(time.Hour)
	for i := 0; i < 256; i++ {
		l.Allow("c", later)
	}
	if l.Len() != 1 {
		t.Fatalf("idle buckets not evicted, have %d", l.Len())
	}
}

func TestRequireTokenGuardsChainRoute(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	recv, err := server.NewStandard(server.Config{})
	if err != nil {
		t.Fatalf("receiver: %v", err)
	}
	r := NewRouter(RouterConfig{Auth: auth.StaticToken{Token: "s3cret"}}, NewHandler(recv, recv.Limits(), nil))
	body, err := command.EncodeChain(opChain(t, reg, command.DialectOp, "value.const", 1), frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", auth.Bearer("nope"), http.StatusUnauthorized},
		{"basic scheme", "Basic czNjcmV0", http.StatusUnauthorized},
		{"valid", auth.Bearer("s3cret"), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, DefaultPath, bytes.NewReader(body))
			req.Header.Set("Content-Type", ChainMediaType)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("got %d want %d", rr.Code, tc.want)
			}
		})
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", rr.Code)
	}
}

func TestTransportSendsToken(t *testing.T) {
	testlog.Start(t)
	reg := clientCodec(t)
	recv, err := server.NewStandard(server.Config{})
	if err != nil {
		t.Fatalf("receiver: %v", err)
	}
	r := NewRouter(RouterConfig{Auth: auth.StaticToken{Token: "s3cret"}}, NewHandler(recv, recv.Limits(), nil))
	srv := newTestServerOrSkip(t, r)
	defer srv.Close()

	chain := opChain(t, reg, command.DialectOp, "value.const", "ok")
	if _, err := NewTransport(srv.URL+DefaultPath, reg).Send(context.Background(), chain); err == nil {
		t.Fatalf("expected unauthorized without token")
	}
	res, err := NewTransport(srv.URL+DefaultPath, reg, WithToken("s3cret")).Send(context.Background(), chain)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if v, _ := res.Decode(reg); v != "ok" {
		t.Fatalf("unexpected result %s", res)
	}
}

func TestOpsRouteListsOperations(t *testing.T) {
	testlog.Start(t)
	reg := ops.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		t.Fatalf("builtin ops: %v", err)
	}
	recv, err := server.NewStandard(server.Config{Ops: reg})
	if err != nil {
		t.Fatalf("receiver: %v", err)
	}
	r := NewRouter(RouterConfig{NodeID: "test", Ops: reg, Auth: auth.StaticToken{Token: "s3cret"}}, NewHandler(recv, recv.Limits(), nil))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, OpsPath, nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("ops listing must sit behind auth, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, OpsPath, nil)
	req.Header.Set("Authorization", auth.Bearer("s3cret"))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("ops listing: %d", rr.Code)
	}
	var body struct {
		Node string         `json:"node"`
		Ops  []ops.Metadata `json:"ops"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Node != "test" || len(body.Ops) != len(builtin.Operations()) {
		t.Fatalf("unexpected listing %+v", body)
	}
	for i := 1; i < len(body.Ops); i++ {
		if body.Ops[i-1].ID >= body.Ops[i].ID {
			t.Fatalf("listing not sorted at %d: %s >= %s", i, body.Ops[i-1].ID, body.Ops[i].ID)
		}
	}

	bare := NewRouter(RouterConfig{}, NewHandler(recv, recv.Limits(), nil))
	rr = httptest.NewRecorder()
	bare.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, OpsPath, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("ops route without a registry: %d", rr.Code)
	}
}
