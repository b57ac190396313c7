package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sortbin/internal/api"
	"sortbin/internal/testsupport"
)

func serve(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestTestRouteReportsRunning(t *testing.T) {
	d, _ := newTestDaemon(t)
	w := serve(t, d.api.server.Handler, http.MethodGet, "/test", "", "")
	if w.Code != http.StatusOK || w.Body.String() != "Server is running!" {
		t.Fatalf("unexpected /test response %d %q", w.Code, w.Body.String())
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	d, _ := newTestDaemon(t)
	h := d.api.server.Handler

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "cam-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "cam-42" {
		t.Fatalf("expected caller request id echoed, got %q", got)
	}

	w = serve(t, h, http.MethodGet, "/test", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}
}

func TestImageRejectedOutsideSession(t *testing.T) {
	d, _ := newTestDaemon(t)
	h := d.api.server.Handler

	w := serve(t, h, http.MethodPost, "/image", string(testsupport.JPEG(64)), "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 while idle, got %d", w.Code)
	}
	resp := decodeBody[api.DeviceResponse](t, w)
	if resp.Status != "error" || resp.Message == "" {
		t.Fatalf("unexpected error envelope: %+v", resp)
	}

	w = serve(t, h, http.MethodPost, "/image", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty image, got %d", w.Code)
	}
}

func TestImageRejectedForUnknownIdentity(t *testing.T) {
	d, _ := newTestDaemon(t)
	h := d.api.server.Handler

	serve(t, h, http.MethodPost, "/api/session/start", "", "")
	w := serve(t, h, http.MethodPost, "/api/identity", `{"unknown":true}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown identity, got %d: %s", w.Code, w.Body.String())
	}
	identity := decodeBody[api.IdentityResponse](t, w)
	if !identity.Unknown || identity.Identity != "Unknown" || identity.Session.State != "awaiting_identity" {
		t.Fatalf("unexpected identity response: %+v", identity)
	}

	w = serve(t, h, http.MethodPost, "/image", string(testsupport.JPEG(64)), "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown user, got %d", w.Code)
	}
}

func TestDuplicateImageIsForbidden(t *testing.T) {
	d, _ := newTestDaemon(t)
	h := d.api.server.Handler

	serve(t, h, http.MethodPost, "/api/session/start", "", "")
	serve(t, h, http.MethodPost, "/api/identity", `{"name":"Bob","id":7}`, "")
	if w := serve(t, h, http.MethodPost, "/image", string(testsupport.JPEG(64)), ""); w.Code != http.StatusOK {
		t.Fatalf("expected first image accepted, got %d: %s", w.Code, w.Body.String())
	}
	w := serve(t, h, http.MethodPost, "/image", string(testsupport.JPEG(64)), "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for duplicate image, got %d", w.Code)
	}

	snap := d.machine.Snapshot()
	if snap.User == nil || snap.User.ID != 7 || snap.User.Name != "bob" {
		t.Fatalf("expected bob with supplied id, got %+v", snap.User)
	}
}

func TestDistanceValidation(t *testing.T) {
	d, _ := newTestDaemon(t)
	h := d.api.server.Handler

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing status", `{}`, http.StatusBadRequest},
		{"null status", `{"status":null}`, http.StatusBadRequest},
		{"fractional", `{"status":1.5}`, http.StatusBadRequest},
		{"word", `{"status":"near"}`, http.StatusBadRequest},
		{"not json", `status=1`, http.StatusBadRequest},
		{"far away", `{"status":3}`, http.StatusOK},
		{"close while idle", `{"status":1}`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, h, http.MethodPost, "/distance", tc.body, "")
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}

	snap := d.machine.Snapshot()
	if snap.LastProximityStatus == nil || *snap.LastProximityStatus != 1 {
		t.Fatalf("expected last proximity 1, got %v", snap.LastProximityStatus)
	}
	if snap.State != "idle" {
		t.Fatalf("expected idle session, got %s", snap.State)
	}
}

func TestManagementRoutesRequireToken(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.WithAPIToken("secret"))
	h := d.api.server.Handler

	if w := serve(t, h, http.MethodGet, "/api/session", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodGet, "/api/session", "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	w := serve(t, h, http.MethodGet, "/api/session", "", "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if got := decodeBody[api.Session](t, w); got.State != "idle" {
		t.Fatalf("expected idle session, got %q", got.State)
	}

	if w := serve(t, h, http.MethodGet, "/test", "", ""); w.Code != http.StatusOK {
		t.Fatalf("device routes must not require a token, got %d", w.Code)
	}
}

func TestIdentityRouteErrors(t *testing.T) {
	d, _ := newTestDaemon(t)
	h := d.api.server.Handler

	w := serve(t, h, http.MethodPost, "/api/identity", `{"name":"alice"}`, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 outside a session, got %d", w.Code)
	}
	if resp := decodeBody[api.ErrorResponse](t, w); resp.Kind != "invalid_state_transition" {
		t.Fatalf("unexpected error kind %+v", resp)
	}

	serve(t, h, http.MethodPost, "/api/session/start", "", "")
	if w := serve(t, h, http.MethodPost, "/api/identity", `{}`, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty identity request, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodPost, "/api/identity", `{`, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", w.Code)
	}

	w = serve(t, h, http.MethodPost, "/api/identity/audio", "RIFF....", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with transcription disabled, got %d", w.Code)
	}
	if resp := decodeBody[api.ErrorResponse](t, w); resp.Kind != "precondition_failed" {
		t.Fatalf("unexpected error kind %+v", resp)
	}
}

func TestUserRoutes(t *testing.T) {
	d, _ := newTestDaemon(t)
	h := d.api.server.Handler
	testsupport.MustCreateUser(t, d.store, "carol", 12)

	w := serve(t, h, http.MethodGet, "/api/users", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	list := decodeBody[api.UserListResponse](t, w)
	if len(list.Users) != 1 || list.Users[0].Name != "carol" || list.Users[0].ScoreDisplay != "-" {
		t.Fatalf("unexpected users: %+v", list.Users)
	}

	w = serve(t, h, http.MethodGet, "/api/users/Carol", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for case-insensitive lookup, got %d", w.Code)
	}
	detail := decodeBody[api.UserDetailResponse](t, w)
	if detail.User.ID != 12 || detail.History == nil || len(detail.History) != 0 {
		t.Fatalf("unexpected user detail: %+v", detail)
	}

	if w := serve(t, h, http.MethodGet, "/api/users/nobody", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodGet, "/api/users/carol?limit=zero", "", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestMethodMismatchIsRejected(t *testing.T) {
	d, _ := newTestDaemon(t)
	w := serve(t, d.api.server.Handler, http.MethodGet, "/image", "", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestDecodeProximityAcceptsIntegers(t *testing.T) {
	code, err := decodeProximity(strings.NewReader(`{"status": 2}`))
	if err != nil || code != 2 {
		t.Fatalf("expected 2, got %d (%v)", code, err)
	}
}
