// Package testutil provides a mock SWAPI server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// NotFoundBody is what the upstream answers for unknown resources.
const NotFoundBody = `{"detail":"Not found"}`

// MockResponse defines a canned response for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSWAPI is a configurable in-process SWAPI. Resources live under
// /api/<kind>/<id>/; anything unknown answers 404 with NotFoundBody.
type MockSWAPI struct {
	server *httptest.Server

	mu          sync.RWMutex
	resources   map[string][]byte
	handlers    map[string]http.HandlerFunc
	pathCount   map[string]int
	total       int
	conditional int
	lastHeader  http.Header
}

// NewMockSWAPI starts a new mock server.
func NewMockSWAPI() *MockSWAPI {
	m := &MockSWAPI{
		resources: make(map[string][]byte),
		handlers:  make(map[string]http.HandlerFunc),
		pathCount: make(map[string]int),
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.total++
		m.pathCount[r.URL.Path]++
		m.lastHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			m.conditional++
		}
		handler, hasHandler := m.handlers[r.URL.Path]
		body, hasResource := m.resources[r.URL.Path]
		m.mu.Unlock()

		if hasHandler {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if !hasResource {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(NotFoundBody))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))

	return m
}

// URL returns the server root.
func (m *MockSWAPI) URL() string {
	return m.server.URL
}

// BaseURL returns the API root, e.g. http://127.0.0.1:1234/api/.
func (m *MockSWAPI) BaseURL() string {
	return m.server.URL + "/api/"
}

// ResourceURL returns the absolute URL of a resource.
func (m *MockSWAPI) ResourceURL(kind string, id int) string {
	return fmt.Sprintf("%s%s/%d/", m.BaseURL(), kind, id)
}

// ResourcePath returns the request path of a resource.
func ResourcePath(kind string, id int) string {
	return fmt.Sprintf("/api/%s/%d/", kind, id)
}

// Close shuts down the server.
func (m *MockSWAPI) Close() {
	m.server.Close()
}

// AddResource serves obj as JSON at /api/<kind>/<id>/.
func (m *MockSWAPI) AddResource(kind string, id int, obj map[string]any) {
	body, err := json.Marshal(obj)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal %s/%d: %v", kind, id, err))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[ResourcePath(kind, id)] = body
}

// SetHandler overrides the response for a path.
func (m *MockSWAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockSWAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests served.
func (m *MockSWAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}

// PathCount returns the number of requests for one path.
func (m *MockSWAPI) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCount[path]
}

// KindCount returns the number of requests for one resource kind.
func (m *MockSWAPI) KindCount(kind string) int {
	prefix := "/api/" + kind + "/"
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for path, c := range m.pathCount {
		if strings.HasPrefix(path, prefix) {
			n += c
		}
	}
	return n
}

// ConditionalCount returns the number of conditional requests.
func (m *MockSWAPI) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditional
}

// LastRequestHeader returns the headers of the latest request.
func (m *MockSWAPI) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// Reset clears the request counters. Resources and handlers stay.
func (m *MockSWAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = 0
	m.conditional = 0
	m.lastHeader = nil
	m.pathCount = make(map[string]int)
}

// Person describes a person to seed. Reference ids are turned into URLs on
// the mock server; a zero Homeworld leaves the field empty.
type Person struct {
	Name      string
	Homeworld int
	Films     []int
	Species   []int
	Starships []int
	Vehicles  []int
}

// AddPerson serves a person with the scalar fields SWAPI returns.
func (m *MockSWAPI) AddPerson(id int, p Person) {
	homeworld := ""
	if p.Homeworld > 0 {
		homeworld = m.ResourceURL("planets", p.Homeworld)
	}
	m.AddResource("people", id, map[string]any{
		"name":       p.Name,
		"height":     "172",
		"mass":       "77",
		"hair_color": "blond",
		"skin_color": "fair",
		"eye_color":  "blue",
		"birth_year": "19BBY",
		"gender":     "male",
		"homeworld":  homeworld,
		"films":      m.urls("films", p.Films),
		"species":    m.urls("species", p.Species),
		"starships":  m.urls("starships", p.Starships),
		"vehicles":   m.urls("vehicles", p.Vehicles),
		"url":        m.ResourceURL("people", id),
	})
}

func (m *MockSWAPI) urls(kind string, ids []int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.ResourceURL(kind, id))
	}
	return out
}

// SeedLuke serves Luke Skywalker as people/1 with every resource he
// references: two films, Tatooine, one starship and two vehicles.
func (m *MockSWAPI) SeedLuke() {
	m.AddResource("films", 1, map[string]any{"title": "A New Hope", "episode_id": 4})
	m.AddResource("films", 2, map[string]any{"title": "The Empire Strikes Back", "episode_id": 5})
	m.AddResource("planets", 1, map[string]any{"name": "Tatooine", "climate": "arid"})
	m.AddResource("starships", 12, map[string]any{"name": "X-wing", "model": "T-65 X-wing"})
	m.AddResource("vehicles", 14, map[string]any{"name": "Snowspeeder"})
	m.AddResource("vehicles", 30, map[string]any{"name": "Imperial Speeder Bike"})

	m.AddPerson(1, Person{
		Name:      "Luke Skywalker",
		Homeworld: 1,
		Films:     []int{1, 2},
		Starships: []int{12},
		Vehicles:  []int{14, 30},
	})
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"detail":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 response asking to retry after secs.
func NewRateLimitResponse(secs int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"detail":"Request was throttled."}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Retry-After":  fmt.Sprint(secs),
		},
	}
}

// NewConditionalHandler serves data with etag and answers 304 when the
// request carries the same etag.
func NewConditionalHandler(etag, data string, maxAge time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Expires", time.Now().Add(maxAge).UTC().Format(http.TimeFormat))

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
