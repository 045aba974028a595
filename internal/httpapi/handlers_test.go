package httpapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"passgate.org/internal/access"
	"passgate.org/internal/auth"
	"passgate.org/internal/stream"
)

const (
	adminBadge    int64 = 1
	terminalBadge int64 = 5
	userBadge     int64 = 7
	otherBadge    int64 = 9
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	repo    *access.InMemory
	engine  *access.Engine
	signer  *auth.Signer
	stream  *stream.Stream
}

func newTestAPI(t *testing.T, opts ...access.Option) *apiClient {
	t.Helper()

	repo := access.NewInMemory()
	for id := int64(1); id <= 3; id++ {
		repo.PutPassage(access.Passage{ID: id, Level: int(id)})
	}
	gate := int64(2)
	now := time.Now().UTC()
	for _, u := range []access.User{
		{Badge: adminBadge, Email: "admin@example.com", Role: auth.RoleAdmin},
		{Badge: terminalBadge, Email: "gate2@example.com", Role: auth.RolePassage, PassageReference: &gate},
		{Badge: userBadge, Email: "u7@example.com", Role: auth.RoleUser},
		{Badge: otherBadge, Email: "u9@example.com", Role: auth.RoleUser},
	} {
		u.Tokens = access.InitialTokens
		u.CreatedAt, u.UpdatedAt = now, now
		repo.PutUser(u)
	}

	feed := stream.New(16)
	engine, err := access.New(repo, append([]access.Option{access.WithTransitSink(feed)}, opts...)...)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	signer, err := auth.NewSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	api := New(Options{
		Engine:     engine,
		Signer:     signer,
		Stream:     feed,
		Ready:      ReadyProbe{Store: repo},
		Version:    "test",
		RateBurst:  1000,
		RatePerSec: 1000,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		repo:    repo,
		engine:  engine,
		signer:  signer,
		stream:  feed,
	}
}

func (c *apiClient) token(badge int64, role auth.Role) string {
	c.t.Helper()
	tok, _, err := c.signer.Issue(auth.Identity{Badge: badge, Role: role})
	if err != nil {
		c.t.Fatalf("issue token: %v", err)
	}
	return tok
}

func bearerHeader(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, headers)
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		defer resp.Body.Close()
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body.String())
	}
}

func expectKind(t *testing.T, resp *http.Response, status int, kind access.Kind) {
	t.Helper()
	expectStatus(t, resp, status)
	body := decode[map[string]any](t, resp)
	if body["kind"] != kind.String() {
		t.Fatalf("expected kind %s, got %v", kind, body["kind"])
	}
	if body["error"] != kind.Message() {
		t.Fatalf("expected message %q, got %v", kind.Message(), body["error"])
	}
	if rid, _ := body["request_id"].(string); rid == "" {
		t.Fatalf("expected request_id in error body")
	}
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if body := decode[map[string]any](t, resp); body["status"] != "ok" {
		t.Fatalf("unexpected health body %v", body)
	}

	resp = c.get("/readyz", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.get("/v1/info", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	info := decode[map[string]any](t, resp)
	if info["max_unauthorized_attempts"] != float64(5) {
		t.Fatalf("unexpected info %v", info)
	}
}

func TestAuthRequired(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/v1/transits", nil, nil)
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
	expectKind(t, resp, http.StatusUnauthorized, access.KindUnauthorized)

	resp = c.get("/v1/transits", nil, bearerHeader("not-a-jwt"))
	expectKind(t, resp, http.StatusUnauthorized, access.KindTokenInvalid)
}

func TestRoleGates(t *testing.T) {
	c := newTestAPI(t)
	user := bearerHeader(c.token(userBadge, auth.RoleUser))
	terminal := bearerHeader(c.token(terminalBadge, auth.RolePassage))

	resp := c.get("/v1/transits", nil, user)
	expectKind(t, resp, http.StatusForbidden, access.KindForbiddenAdminRole)

	resp = c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": 2, "badge_id": userBadge}, user)
	expectKind(t, resp, http.StatusForbidden, access.KindForbiddenAdminOrPassageRole)

	resp = c.get("/v1/reports/passages", nil, terminal)
	expectKind(t, resp, http.StatusForbidden, access.KindForbiddenAdminOrUserRole)
}

func TestLogin(t *testing.T) {
	c := newTestAPI(t)
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := c.repo.FindUser(t.Context(), userBadge)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	u.PasswordHash = hash
	c.repo.PutUser(u)

	resp := c.do(http.MethodPost, "/v1/auth/login", map[string]any{"email": "U7@example.com", "password": "wrong"}, nil)
	expectKind(t, resp, http.StatusUnauthorized, access.KindLoginFailed)

	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]any{"email": "U7@example.com", "password": "s3cret"}, nil)
	expectStatus(t, resp, http.StatusOK)
	tok := decode[tokenResponse](t, resp)
	if tok.BadgeID != userBadge || tok.Role != auth.RoleUser || tok.Token == "" {
		t.Fatalf("unexpected token response %+v", tok)
	}
	claims, err := c.signer.Parse(tok.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.BadgeID != userBadge {
		t.Fatalf("claims badge %d", claims.BadgeID)
	}
}

func TestRecordTransitSuspendsAfterThreshold(t *testing.T) {
	c := newTestAPI(t, access.WithMaxUnauthorizedAttempts(3))
	admin := bearerHeader(c.token(adminBadge, auth.RoleAdmin))

	for i := 1; i <= 3; i++ {
		resp := c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": 1, "badge_id": userBadge}, admin)
		expectStatus(t, resp, http.StatusCreated)
		if resp.Header.Get("Location") == "" {
			t.Fatalf("expected Location header")
		}
		tr := decode[access.Transit](t, resp)
		if tr.IsAuthorized {
			t.Fatalf("transit %d should be unauthorized", i)
		}
		u, _ := c.repo.FindUser(t.Context(), userBadge)
		if i < 3 && (u.IsSuspended || u.UnauthorizedAttempts != i) {
			t.Fatalf("after %d attempts: suspended=%v attempts=%d", i, u.IsSuspended, u.UnauthorizedAttempts)
		}
		if i == 3 && (!u.IsSuspended || u.UnauthorizedAttempts != 0) {
			t.Fatalf("expected suspension, got suspended=%v attempts=%d", u.IsSuspended, u.UnauthorizedAttempts)
		}
	}

	resp := c.get("/v1/badges/suspended", nil, admin)
	expectStatus(t, resp, http.StatusOK)
	list := decode[struct {
		Items []suspendedBadge `json:"items"`
		Count int              `json:"count"`
	}](t, resp)
	if list.Count != 1 || list.Items[0].Badge != userBadge {
		t.Fatalf("unexpected suspended list %+v", list)
	}

	// suspended callers lose read access
	user := bearerHeader(c.token(userBadge, auth.RoleUser))
	resp = c.get("/v1/reports/users", url.Values{"start": {"2020-01-01"}, "end": {time.Now().UTC().Format(time.RFC3339)}}, user)
	expectKind(t, resp, http.StatusForbidden, access.KindForbiddenSuspended)

	resp = c.do(http.MethodPost, "/v1/badges/reactivate", map[string]any{"badges": []int64{userBadge}}, admin)
	expectStatus(t, resp, http.StatusOK)
	reactivated := decode[map[string]any](t, resp)
	if reactivated["count"] != float64(1) {
		t.Fatalf("unexpected reactivation body %v", reactivated)
	}
	u, _ := c.repo.FindUser(t.Context(), userBadge)
	if u.IsSuspended || u.UnauthorizedAttempts != 0 {
		t.Fatalf("manual reactivation did not reset badge: %+v", u)
	}
}

func TestRecordTransitAuthorizedAndValidation(t *testing.T) {
	c := newTestAPI(t)
	admin := bearerHeader(c.token(adminBadge, auth.RoleAdmin))

	resp := c.do(http.MethodPost, "/v1/authorizations", map[string]any{"badge_id": userBadge, "passage_id": 2}, admin)
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/authorizations", map[string]any{"badge_id": userBadge, "passage_id": 2}, admin)
	expectKind(t, resp, http.StatusConflict, access.KindAuthorizationConflict)

	resp = c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": 2, "badge_id": userBadge, "violation_dpi": true}, admin)
	expectStatus(t, resp, http.StatusCreated)
	tr := decode[access.Transit](t, resp)
	if !tr.IsAuthorized || !tr.ViolationDPI {
		t.Fatalf("unexpected transit %+v", tr)
	}

	resp = c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": 2, "badge_id": 404}, admin)
	expectKind(t, resp, http.StatusNotFound, access.KindUserNotFound)

	resp = c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": 99, "badge_id": userBadge}, admin)
	expectKind(t, resp, http.StatusNotFound, access.KindPassageNotFound)

	resp = c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": 2, "badge_id": userBadge, "is_authorized": true}, admin)
	expectKind(t, resp, http.StatusBadRequest, access.KindValidation)

	resp = c.do(http.MethodDelete, "/v1/authorizations/7/2", nil, admin)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = c.do(http.MethodDelete, "/v1/authorizations/7/2", nil, admin)
	expectKind(t, resp, http.StatusNotFound, access.KindAuthorizationNotFound)
}

func TestPassageTerminalOwnership(t *testing.T) {
	c := newTestAPI(t)
	terminal := bearerHeader(c.token(terminalBadge, auth.RolePassage))

	resp := c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": 2, "badge_id": userBadge}, terminal)
	expectKind(t, resp, http.StatusForbidden, access.KindForbidden)

	resp = c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": 1, "badge_id": terminalBadge}, terminal)
	expectKind(t, resp, http.StatusForbidden, access.KindForbidden)

	resp = c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": 2, "badge_id": terminalBadge}, terminal)
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
}

func TestTransitAdministration(t *testing.T) {
	c := newTestAPI(t)
	admin := bearerHeader(c.token(adminBadge, auth.RoleAdmin))
	user := bearerHeader(c.token(otherBadge, auth.RoleUser))

	resp := c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": 3, "badge_id": userBadge}, admin)
	expectStatus(t, resp, http.StatusCreated)
	created := decode[access.Transit](t, resp)
	path := "/v1/transits/" + itoa(created.ID)

	resp = c.get(path, nil, user)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[access.Transit](t, resp); got.ID != created.ID {
		t.Fatalf("unexpected transit %+v", got)
	}

	resp = c.do(http.MethodPut, path, map[string]any{"violation_dpi": true}, admin)
	expectStatus(t, resp, http.StatusOK)
	updated := decode[access.Transit](t, resp)
	if !updated.ViolationDPI || updated.IsAuthorized != created.IsAuthorized {
		t.Fatalf("unexpected update %+v", updated)
	}

	resp = c.do(http.MethodPut, path, map[string]any{}, admin)
	expectKind(t, resp, http.StatusBadRequest, access.KindValidation)

	resp = c.get("/v1/transits", url.Values{"badge": {"7"}, "limit": {"10"}}, admin)
	expectStatus(t, resp, http.StatusOK)
	list := decode[listTransitsResponse](t, resp)
	if list.Count != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	resp = c.get("/v1/transits", url.Values{"limit": {"0"}}, admin)
	expectKind(t, resp, http.StatusBadRequest, access.KindValidation)

	resp = c.do(http.MethodDelete, path, nil, admin)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = c.get(path, nil, admin)
	expectKind(t, resp, http.StatusNotFound, access.KindTransitNotFound)
}

func TestBadgeStats(t *testing.T) {
	c := newTestAPI(t)
	admin := bearerHeader(c.token(adminBadge, auth.RoleAdmin))
	for _, p := range []int{1, 1, 3} {
		resp := c.do(http.MethodPost, "/v1/transits", map[string]any{"passage_id": p, "badge_id": userBadge}, admin)
		expectStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}

	window := url.Values{
		"start": {time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)},
		"end":   {time.Now().UTC().Format(time.RFC3339Nano)},
	}

	resp := c.get("/v1/badges/7/stats", window, bearerHeader(c.token(userBadge, auth.RoleUser)))
	expectStatus(t, resp, http.StatusOK)
	stats := decode[badgeStatsResponse](t, resp)
	if stats.TotalUnauthorized != 3 || len(stats.Passages) != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Passages[0].Passage != 1 || stats.Passages[0].Unauthorized != 2 {
		t.Fatalf("unexpected passage 1 counts %+v", stats.Passages[0])
	}

	resp = c.get("/v1/badges/7/stats", window, bearerHeader(c.token(otherBadge, auth.RoleUser)))
	expectKind(t, resp, http.StatusForbidden, access.KindForbidden)

	future := url.Values{
		"start": {time.Now().UTC().Add(time.Hour).Format(time.RFC3339)},
		"end":   {time.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339)},
	}
	resp = c.get("/v1/badges/7/stats", future, admin)
	expectKind(t, resp, http.StatusBadRequest, access.KindInvalidDateRange)

	reversed := url.Values{"start": {"2024-02-01"}, "end": {"2024-01-01"}}
	resp = c.get("/v1/badges/7/stats", reversed, admin)
	expectKind(t, resp, http.StatusBadRequest, access.KindStartAfterEnd)

	resp = c.get("/v1/badges/7/stats", url.Values{"start": {"yesterday"}}, admin)
	expectKind(t, resp, http.StatusBadRequest, access.KindValidation)
}

func TestReports(t *testing.T) {
	c := newTestAPI(t)
	admin := bearerHeader(c.token(adminBadge, auth.RoleAdmin))
	for _, req := range []map[string]any{
		{"passage_id": 1, "badge_id": userBadge},
		{"passage_id": 2, "badge_id": otherBadge, "violation_dpi": true},
	} {
		resp := c.do(http.MethodPost, "/v1/transits", req, admin)
		expectStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}
	window := url.Values{"start": {"2020-01-01"}, "end": {time.Now().UTC().Format(time.DateOnly)}}

	resp := c.get("/v1/reports/passages", window, admin)
	expectStatus(t, resp, http.StatusOK)
	passages := decode[struct {
		Items []access.PassageRow `json:"items"`
	}](t, resp)
	if len(passages.Items) != 2 || passages.Items[1].Violations != 1 {
		t.Fatalf("unexpected passage report %+v", passages.Items)
	}

	// non-admins only see their own row
	resp = c.get("/v1/reports/users", window, bearerHeader(c.token(userBadge, auth.RoleUser)))
	expectStatus(t, resp, http.StatusOK)
	users := decode[struct {
		Items []access.UserRow `json:"items"`
	}](t, resp)
	if len(users.Items) != 1 || users.Items[0].Badge != userBadge || users.Items[0].Status != "active" {
		t.Fatalf("unexpected user report %+v", users.Items)
	}

	csvWindow := url.Values{"start": window["start"], "end": window["end"], "format": {"csv"}}
	resp = c.get("/v1/reports/users", csvWindow, admin)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	records, err := csv.NewReader(resp.Body).ReadAll()
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 || records[0][0] != "badge_id" || records[1][0] != "7" {
		t.Fatalf("unexpected csv %v", records)
	}

	pdf := url.Values{"start": window["start"], "end": window["end"], "format": {"pdf"}}
	resp = c.get("/v1/reports/passages", pdf, admin)
	expectKind(t, resp, http.StatusBadRequest, access.KindInvalidFormat)
}

func TestUnknownRoute(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/v1/nope", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
