package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/ucan/internal/bus"
	"github.com/danmuck/ucan/internal/protocol/binding"
	"github.com/danmuck/ucan/internal/protocol/frame"
	"github.com/danmuck/ucan/internal/protocol/handshake"
	"github.com/danmuck/ucan/internal/testutil/testlog"
	"github.com/danmuck/ucan/internal/ucan"
	"github.com/gin-gonic/gin"
)

type stubNode struct {
	handle *ucan.Handle
	vars   *binding.Vars
}

func (n stubNode) Name() string         { return "dash" }
func (n stubNode) Handle() *ucan.Handle { return n.handle }
func (n stubNode) Vars() *binding.Vars  { return n.vars }

func newNode(t *testing.T, start bool) stubNode {
	t.Helper()
	vars := binding.NewVars()
	speed, err := vars.Declare("speed", binding.KindU16)
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	temp, err := vars.Declare("temp", binding.KindU8)
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	h := ucan.New(bus.NewLoopback().Open(), ucan.TickFunc(func() handshake.Tick { return 1000 }))
	if !start {
		return stubNode{handle: h, vars: vars}
	}
	if err := h.Init(handshake.NodeInfo{Role: handshake.RoleMaster, SelfID: 0x010, Clients: []uint32{0x100, 0x101}}); err != nil {
		t.Fatalf("init: %v", err)
	}
	err = h.Start(ucan.Config{
		Tx: []binding.FrameSpec{{ID: 0x240, Items: []binding.Binding{speed}}},
		Rx: []binding.FrameSpec{{ID: 0x360, Items: []binding.Binding{temp}}},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return stubNode{handle: h, vars: vars}
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	out := map[string]any{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode body: %v body=%s", err, rr.Body.String())
		}
	}
	return rr, out
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s := New(newNode(t, true), nil)

	rr, body := do(t, s, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || body["service"] != "dash" {
		t.Fatalf("unexpected health status=%d body=%v", rr.Code, body)
	}
	rr, body = do(t, s, http.MethodGet, "/ready", "")
	if rr.Code != http.StatusOK || body["ready"] != true || body["state"] != "started" {
		t.Fatalf("unexpected ready status=%d body=%v", rr.Code, body)
	}
}

func TestReadyBeforeStart(t *testing.T) {
	testlog.Start(t)
	s := New(newNode(t, false), nil)
	rr, body := do(t, s, http.MethodGet, "/ready", "")
	if rr.Code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Fatalf("expected 503 before start, got status=%d body=%v", rr.Code, body)
	}
	if rr, _ := do(t, s, http.MethodGet, "/clients", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for clients before init, got=%d", rr.Code)
	}
	if rr, _ := do(t, s, http.MethodGet, "/frames", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for frames before start, got=%d", rr.Code)
	}
}

func TestClientsReportsRegistry(t *testing.T) {
	testlog.Start(t)
	node := newNode(t, true)
	if _, err := node.handle.Receive(frame.Response(0x101)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	_ = node.handle.Evaluate()

	s := New(node, nil)
	rr, body := do(t, s, http.MethodGet, "/clients", "")
	if rr.Code != http.StatusOK || body["role"] != "master" || body["self_id"] != "0x010" {
		t.Fatalf("unexpected clients status=%d body=%v", rr.Code, body)
	}
	clients, ok := body["clients"].([]any)
	if !ok || len(clients) != 2 {
		t.Fatalf("expected two clients, got=%v", body["clients"])
	}
	first := clients[0].(map[string]any)
	second := clients[1].(map[string]any)
	if first["id"] != "0x100" || first["status"] != "waiting" {
		t.Fatalf("unexpected first client: %v", first)
	}
	if second["id"] != "0x101" || second["status"] != "active" || second["responded"] != true {
		t.Fatalf("unexpected second client: %v", second)
	}
}

func TestValuesAndFrames(t *testing.T) {
	testlog.Start(t)
	s := New(newNode(t, true), []string{"http://dash.local"})

	rr, body := do(t, s, http.MethodPut, "/values/speed", `{"value": 4660}`)
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected set status=%d body=%v", rr.Code, body)
	}

	rr, body = do(t, s, http.MethodGet, "/frames", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected frames status=%d", rr.Code)
	}
	tx := body["tx"].([]any)[0].(map[string]any)
	if tx["id"] != "0x240" || tx["bytes"] != "34 12" {
		t.Fatalf("unexpected tx frame: %v", tx)
	}

	rr, body = do(t, s, http.MethodGet, "/values", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected values status=%d", rr.Code)
	}
	values := body["values"].([]any)
	if len(values) != 2 || values[0].(map[string]any)["name"] != "speed" || values[0].(map[string]any)["value"] != float64(4660) {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestSetValueErrors(t *testing.T) {
	testlog.Start(t)
	s := New(newNode(t, true), nil)
	cases := []struct {
		path string
		body string
		want int
	}{
		{"/values/missing", `{"value": 1}`, http.StatusNotFound},
		{"/values/temp", `{"value": 256}`, http.StatusBadRequest},
		{"/values/temp", `{}`, http.StatusBadRequest},
		{"/values/temp", `not json`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr, _ := do(t, s, http.MethodPut, tc.path, tc.body)
		if rr.Code != tc.want {
			t.Fatalf("PUT %s %s: expected %d, got=%d body=%s", tc.path, tc.body, tc.want, rr.Code, rr.Body.String())
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s := New(newNode(t, true), nil)
	do(t, s, http.MethodGet, "/health", "")
	rr, _ := do(t, s, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ucan_admin_requests_total") {
		t.Fatalf("expected admin request metric, status=%d", rr.Code)
	}
}
