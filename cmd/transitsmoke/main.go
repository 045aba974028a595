// Command transitsmoke drives a running passgate-api through one full
// strike streak: unauthorized transits until suspension, then a manual
// reactivation.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"slices"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"passgate.org/internal/config"
)

type badgeRef struct {
	Badge int64 `json:"badge_id"`
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) call(ctx context.Context, method, path string, body, out any) (int, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("%s %s -> %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

func main() {
	log.SetFlags(0)
	config.LoadDotenv()
	var (
		base     = flag.String("url", envOr("PASSGATE_SMOKE_URL", "http://localhost:8080"), "API base URL")
		grpcAddr = flag.String("grpc", envOr("PASSGATE_SMOKE_GRPC", "localhost:9090"), "gRPC health address (empty skips)")
		email    = flag.String("email", os.Getenv("PASSGATE_BOOTSTRAP_ADMIN_EMAIL"), "admin email")
		password = flag.String("password", os.Getenv("PASSGATE_BOOTSTRAP_ADMIN_PASSWORD"), "admin password")
		passage  = flag.Int64("passage", 3, "passage the admin badge holds no grant for")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *grpcAddr != "" {
		checkGRPC(ctx, *grpcAddr)
	}

	c := &client{base: *base, http: &http.Client{Timeout: 10 * time.Second}}

	var info struct {
		MaxAttempts int `json:"max_unauthorized_attempts"`
	}
	if _, err := c.call(ctx, http.MethodGet, "/v1/info", nil, &info); err != nil {
		log.Fatalf("info: %v", err)
	}

	var login struct {
		Token   string `json:"token"`
		BadgeID int64  `json:"badge_id"`
	}
	if _, err := c.call(ctx, http.MethodPost, "/v1/auth/login", map[string]string{"email": *email, "password": *password}, &login); err != nil {
		log.Fatalf("login: %v", err)
	}
	c.token = login.Token

	for i := 1; i <= info.MaxAttempts; i++ {
		var tr struct {
			ID           int64 `json:"transit_id"`
			IsAuthorized bool  `json:"is_authorized"`
		}
		body := map[string]any{"passage_id": *passage, "badge_id": login.BadgeID}
		if _, err := c.call(ctx, http.MethodPost, "/v1/transits", body, &tr); err != nil {
			log.Fatalf("transit %d: %v", i, err)
		}
		if tr.IsAuthorized {
			log.Fatalf("transit %d unexpectedly authorized; pick a passage without a grant", tr.ID)
		}
	}

	var suspended struct {
		Items []badgeRef `json:"items"`
	}
	if _, err := c.call(ctx, http.MethodGet, "/v1/badges/suspended", nil, &suspended); err != nil {
		log.Fatalf("suspended: %v", err)
	}
	if !slices.ContainsFunc(suspended.Items, func(it badgeRef) bool { return it.Badge == login.BadgeID }) {
		log.Fatalf("badge %d not suspended after %d unauthorized transits", login.BadgeID, info.MaxAttempts)
	}

	var reactivated struct {
		Reactivated []int64 `json:"reactivated"`
	}
	if _, err := c.call(ctx, http.MethodPost, "/v1/badges/reactivate", map[string]any{"badges": []int64{login.BadgeID}}, &reactivated); err != nil {
		log.Fatalf("reactivate: %v", err)
	}
	if !slices.Contains(reactivated.Reactivated, login.BadgeID) {
		log.Fatalf("badge %d not reactivated: %v", login.BadgeID, reactivated.Reactivated)
	}

	fmt.Printf("✅ transit smoke test passed: badge=%d strikes=%d\n", login.BadgeID, info.MaxAttempts)
}

func checkGRPC(ctx context.Context, addr string) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial grpc %s: %v", addr, err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		log.Fatalf("grpc health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("grpc health: %v", resp.GetStatus())
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
