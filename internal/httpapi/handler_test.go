package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"pkt.systems/tclib/api"
	"pkt.systems/tclib/internal/compress"
	"pkt.systems/tclib/internal/correlation"
	"pkt.systems/tclib/participant"
	"pkt.systems/tclib/session"
)

type stubDispatcher struct {
	registered bool
	handle     func(ctx context.Context, kind api.ServiceKind, sess session.Session) error
}

func (s *stubDispatcher) Registered() bool { return s.registered }

func (s *stubDispatcher) Handle(ctx context.Context, kind api.ServiceKind, sess session.Session) error {
	if s.handle == nil {
		return sess.SetResult(uint32(api.ResultOK))
	}
	return s.handle(ctx, kind, sess)
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	New(cfg).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, service string, body []byte, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+RoutePrefix+service, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", ContentType)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", service, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) api.ErrorResponse {
	t.Helper()
	var out api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return out
}

func TestControllerTypeThroughEngine(t *testing.T) {
	engine := participant.New(participant.Config{})
	if err := engine.Register(participant.NopCallbacks{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	srv := newTestServer(t, Config{Dispatcher: engine})

	resp := post(t, srv, "controller-type", nil, http.Header{correlation.Header: {"corr-1"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if got := resp.Header.Get(correlation.Header); got != "corr-1" {
		t.Fatalf("correlation header %q", got)
	}
	if resp.Header.Get(headerRequestID) == "" {
		t.Fatal("missing request id")
	}
	if got := resp.Header.Get(HeaderResult); got != "ok" {
		t.Fatalf("result header %q", got)
	}
	raw, _ := io.ReadAll(resp.Body)
	result, fields, err := session.DecodeResponse(raw)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if api.ResultCode(result) != api.ResultOK || len(fields) != 1 || fields[0].Num != uint64(api.ControllerUnknown) {
		t.Fatalf("unexpected response %d %+v", result, fields)
	}
}

func TestErrorStatuses(t *testing.T) {
	big := session.Encode([]session.Field{session.Binary(bytes.Repeat([]byte{1}, 2048))})
	cases := []struct {
		name       string
		registered bool
		service    string
		body       []byte
		handle     func(context.Context, api.ServiceKind, session.Session) error
		status     int
		code       string
	}{
		{name: "unknown service", registered: true, service: "frobnicate", status: http.StatusNotFound, code: "unknown_service"},
		{name: "unregistered", service: "setup", status: http.StatusServiceUnavailable, code: "not_registered"},
		{name: "malformed", registered: true, service: "save-config", body: []byte{0xff, 0xff}, status: http.StatusBadRequest, code: "malformed_payload"},
		{name: "too large", registered: true, service: "save-config", body: big, status: http.StatusRequestEntityTooLarge, code: "payload_too_large"},
		{
			name: "engine unregistered", registered: true, service: "setup",
			handle: func(context.Context, api.ServiceKind, session.Session) error { return participant.ErrNotRegistered },
			status: http.StatusServiceUnavailable, code: "not_registered",
		},
		{
			name: "transport failure", registered: true, service: "setup",
			handle: func(context.Context, api.ServiceKind, session.Session) error { return errors.New("boom") },
			status: http.StatusInternalServerError, code: "internal_error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, Config{
				Dispatcher:      &stubDispatcher{registered: tc.registered, handle: tc.handle},
				MaxPayloadBytes: 1024,
				DisableTracing:  true,
			})
			resp := post(t, srv, tc.service, tc.body, nil)
			if resp.StatusCode != tc.status {
				t.Fatalf("status %d, want %d", resp.StatusCode, tc.status)
			}
			if got := decodeError(t, resp); got.ErrorCode != tc.code {
				t.Fatalf("error code %q, want %q", got.ErrorCode, tc.code)
			}
		})
	}
}

func TestFieldsReachDispatcher(t *testing.T) {
	var seen []session.Field
	stub := &stubDispatcher{registered: true, handle: func(_ context.Context, kind api.ServiceKind, sess session.Session) error {
		if kind != api.ServiceNotifySessionConfig {
			t.Errorf("kind %s", kind)
		}
		for i := range sess.Count() {
			switch sess.TypeAt(i) {
			case session.TypeUint32:
				v, _ := sess.ReadUint32(i)
				seen = append(seen, session.Uint32(v))
			case session.TypeString:
				v, _ := sess.ReadString(i)
				seen = append(seen, session.String(v))
			}
		}
		return sess.SetResult(uint32(api.ResultInvalidConfigID))
	}}
	srv := newTestServer(t, Config{Dispatcher: stub})
	body := session.Encode([]session.Field{session.Uint32(7), session.Uint32(3), session.Uint32(uint32(api.ConfigVTN)), session.String("vtn1")})
	resp := post(t, srv, "notify-session-config", body, nil)
	raw, _ := io.ReadAll(resp.Body)
	result, _, err := session.DecodeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if api.ResultCode(result) != api.ResultInvalidConfigID {
		t.Fatalf("result %d", result)
	}
	if len(seen) != 4 || seen[3].Str != "vtn1" || seen[0].Num != 7 {
		t.Fatalf("fields %+v", seen)
	}
}

func TestCompressionAndTimeout(t *testing.T) {
	payload := bytes.Repeat([]byte("controller-key "), 1024)
	stub := &stubDispatcher{registered: true, handle: func(_ context.Context, _ api.ServiceKind, sess session.Session) error {
		if err := sess.DisableTimeout(); err != nil {
			return err
		}
		bin, err := sess.ReadBinary(0)
		if err != nil {
			return err
		}
		if err := sess.WriteBinary(bin); err != nil {
			return err
		}
		return sess.SetResult(uint32(api.ResultOK))
	}}
	srv := newTestServer(t, Config{Dispatcher: stub, CompressThreshold: 128})
	body := compress.Bytes(session.Encode([]session.Field{session.Binary(payload)}))
	resp := post(t, srv, "commit-driver-result", body, http.Header{
		"Content-Encoding": {compress.Encoding},
		"Accept-Encoding":  {compress.Encoding},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %+v", resp.StatusCode, decodeError(t, resp))
	}
	if !compress.Applied(resp.Header) {
		t.Fatal("response not compressed")
	}
	raw, _ := io.ReadAll(resp.Body)
	plain, err := compress.Decompress(raw, 0)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	_, fields, err := session.DecodeResponse(plain)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fields) != 1 || !bytes.Equal(fields[0].Bin, payload) {
		t.Fatal("echoed payload mismatch")
	}
}

func TestHealthz(t *testing.T) {
	for _, registered := range []bool{false, true} {
		srv := newTestServer(t, Config{Dispatcher: &stubDispatcher{registered: registered}, DisableTracing: true})
		resp, err := srv.Client().Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		want := http.StatusServiceUnavailable
		if registered {
			want = http.StatusOK
		}
		if resp.StatusCode != want {
			t.Fatalf("registered=%v health %d, want %d", registered, resp.StatusCode, want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Config{Dispatcher: &stubDispatcher{registered: true}})
	resp, err := srv.Client().Get(srv.URL + RoutePrefix + "setup")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
