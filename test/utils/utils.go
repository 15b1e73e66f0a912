package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/dzrentit/rentit-app-backend/db"
	"github.com/dzrentit/rentit-app-backend/service"
)

const jwtSecret = "secret"

// TestService is a test service for the API.
type TestService struct {
	s   *service.Service
	t   *testing.T
	url string
	c   *http.Client
}

// NewTestService creates a new test service backed by a throwaway MongoDB
// container and a real HTTP server on a random local port.
func NewTestService(t *testing.T) *TestService {
	return NewTestServiceWithClock(t, db.RealTimeProvider{})
}

// NewTestServiceWithClock is NewTestService with an injected time source.
func NewTestServiceWithClock(t *testing.T, clock db.TimeProvider) *TestService {
	ctx := context.Background()

	// Start MongoDB container
	container, err := db.StartMongoContainer(ctx)
	qt.Assert(t, err, qt.IsNil, qt.Commentf("Failed to start MongoDB container"))
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	// Get MongoDB connection string
	mongoURI, err := container.ConnectionString(ctx)
	qt.Assert(t, err, qt.IsNil, qt.Commentf("Failed to get MongoDB connection string"))

	s, err := service.NewWithClock(mongoURI, jwtSecret, true, clock)
	qt.Assert(t, err, qt.IsNil)
	port := 20000 + rand.New(rand.NewSource(time.Now().UnixNano())).Intn(8192)
	err = s.Start("127.0.0.1", port)
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(s.Close)
	time.Sleep(time.Second * 1) // Wait for HTTP server to start
	return &TestService{
		s:   s,
		t:   t,
		url: fmt.Sprintf("http://localhost:%d", port),
		c:   http.DefaultClient,
	}
}

// Database exposes the underlying database for test assertions.
func (s *TestService) Database() *db.Database {
	return s.s.Database
}

// Request sends a request to the service and returns the response body and status code.
// The body is expected to be a JSON object or null.
// If jwt is not empty, it will be sent as a Bearer token.
func (s *TestService) Request(method, jwt string, jsonBody any, urlPath ...string) ([]byte, int) {
	body, err := json.Marshal(jsonBody)
	qt.Assert(s.t, err, qt.IsNil)
	u, err := url.Parse(s.url)
	qt.Assert(s.t, err, qt.IsNil)
	joined := path.Join(urlPath...)
	// A query string in the last path element must not be path-escaped.
	if idx := strings.Index(joined, "?"); idx >= 0 {
		u.RawQuery = joined[idx+1:]
		joined = joined[:idx]
	}
	u.Path = path.Join(u.Path, joined)
	headers := http.Header{}
	if jwt != "" {
		headers = http.Header{"Authorization": []string{"Bearer " + jwt}}
	}
	req, err := http.NewRequest(method, u.String(), bytes.NewReader(body))
	qt.Assert(s.t, err, qt.IsNil)
	req.Header = headers
	resp, err := s.c.Do(req)
	if err != nil {
		s.t.Logf("http error: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.t.Logf("read error: %v", err)
	}
	return data, resp.StatusCode
}
