package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"snapstreak/internal/usertoken"
	"snapstreak/pkg/domain"
	"snapstreak/pkg/store"
	"snapstreak/services/challenge/internal/app"
	"snapstreak/services/challenge/internal/classifier"
)

const testSecret = "test-secret"

type stubDetector struct {
	pred domain.Prediction
	err  error
}

func (s *stubDetector) Predict(context.Context, string) (domain.Prediction, error) {
	return s.pred, s.err
}

func newTestServer(t *testing.T) (*httptest.Server, *stubDetector) {
	t.Helper()
	detector := &stubDetector{}
	engine := app.NewChallenges(store.NewMemoryStore(), detector, nil)

	verifier, err := usertoken.NewVerifier(usertoken.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	ts := httptest.NewServer(New(Config{
		Challenges:    engine,
		TokenVerifier: verifier,
	}).Router())
	t.Cleanup(ts.Close)
	return ts, detector
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := usertoken.Sign(testSecret, "", "", userID, time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRoutesRequireToken(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/challenges/today", "/challenges", "/streak", "/achievements"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without token: got %d", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: got %d", resp.StatusCode)
	}
}

func TestTodayAndSubmitFlow(t *testing.T) {
	ts, detector := newTestServer(t)
	token := tokenFor(t, "u1")

	resp := doJSON(t, http.MethodGet, ts.URL+"/challenges/today", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("today: got %d", resp.StatusCode)
	}
	var today struct {
		Challenge domain.Challenge  `json:"challenge"`
		Streak    domain.UserStreak `json:"streak"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&today); err != nil {
		t.Fatalf("decode today: %v", err)
	}
	if today.Challenge.Class == "" || today.Streak.CurrentStreak != 0 {
		t.Fatalf("unexpected today payload: %+v", today)
	}

	detector.pred = domain.Prediction{Class: today.Challenge.Class, Score: 90}
	resp = doJSON(t, http.MethodPost, ts.URL+"/challenges/submit", token, map[string]string{
		"imageUrl": "http://photos/p.jpg",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: got %d", resp.StatusCode)
	}
	var result app.SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Passed || result.Challenge.ID != today.Challenge.ID {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Streak.CurrentStreak != 1 {
		t.Fatalf("streak not credited: %+v", result.Streak)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/challenges", token, nil)
	var history struct {
		Data         []domain.Challenge   `json:"data"`
		Total        int                  `json:"total"`
		Streak       domain.UserStreak    `json:"streak"`
		Achievements []domain.Achievement `json:"achievements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if history.Total != 1 || history.Streak.CurrentStreak != 1 || len(history.Achievements) != 1 {
		t.Fatalf("unexpected history payload: %+v", history)
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	ts, detector := newTestServer(t)
	token := tokenFor(t, "u1")

	resp := doJSON(t, http.MethodPost, ts.URL+"/challenges/submit", token, map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing image: got %d", resp.StatusCode)
	}

	// Mint today's challenge so the submission reaches the detector.
	_ = doJSON(t, http.MethodGet, ts.URL+"/challenges/today", token, nil)

	detector.err = classifier.ErrUnavailable
	resp = doJSON(t, http.MethodPost, ts.URL+"/challenges/submit", token, map[string]string{
		"imageUrl": "http://photos/p.jpg",
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("classifier down: got %d", resp.StatusCode)
	}

	detector.err = classifier.ErrNoDetection
	resp = doJSON(t, http.MethodPost, ts.URL+"/challenges/submit", token, map[string]string{
		"imageUrl": "http://photos/p.jpg",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("no detection: got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/challenges/missing/submit", token, map[string]string{
		"imageUrl": "http://photos/p.jpg",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown challenge: got %d", resp.StatusCode)
	}
}
