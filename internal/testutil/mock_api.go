// Package testutil provides an httptest-backed stand-in for the Rick and
// Morty API with paginated fixtures and failure injection.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockAPI is a configurable mock of the paginated API.
type MockAPI struct {
	server *httptest.Server

	mu       sync.RWMutex
	pages    map[string][][]string // kind -> pages -> raw record JSON
	handlers map[string]http.HandlerFunc
	failures []int // status codes served before normal handling; 0 drops the connection
	requests []string
	headers  map[string]string

	etags       bool
	notModified int
}

// NewMockAPI starts a new mock server.
func NewMockAPI() *MockAPI {
	m := &MockAPI{
		pages:    make(map[string][][]string),
		handlers: make(map[string]http.HandlerFunc),
		headers:  make(map[string]string),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// BaseURL returns the API base, e.g. http://127.0.0.1:1234/api.
func (m *MockAPI) BaseURL() string {
	return m.server.URL + "/api"
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetRecords splits records into pages of perPage entries for kind.
func (m *MockAPI) SetRecords(kind string, perPage int, records ...string) {
	var pages [][]string
	for start := 0; start < len(records); start += perPage {
		end := start + perPage
		if end > len(records) {
			end = len(records)
		}
		pages = append(pages, records[start:end])
	}
	if len(pages) == 0 {
		pages = [][]string{{}}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[kind] = pages
}

// SetHandler overrides the handler for an exact URL path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetHeader adds a header to every fixture response.
func (m *MockAPI) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// EnableETags makes fixture pages carry an ETag and answer 304 Not Modified
// to a matching If-None-Match.
func (m *MockAPI) EnableETags() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etags = true
}

// NotModifiedCount returns how many 304 responses were served.
func (m *MockAPI) NotModifiedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notModified
}

// FailNext makes the next requests fail with the given status codes, in
// order. A status of 0 aborts the connection to simulate a network error.
func (m *MockAPI) FailNext(statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, statuses...)
}

// RequestCount returns the number of requests received.
func (m *MockAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Requests returns the request URIs received, in order.
func (m *MockAPI) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, r.URL.RequestURI())
	var failure *int
	if len(m.failures) > 0 {
		status := m.failures[0]
		m.failures = m.failures[1:]
		failure = &status
	}
	handler, hasHandler := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if failure != nil {
		if *failure == 0 {
			hijackAndClose(w)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(*failure)
		fmt.Fprintf(w, `{"error":"injected %d"}`, *failure)
		return
	}

	if hasHandler {
		handler(w, r)
		return
	}

	m.servePage(w, r)
}

// servePage mirrors the real API: page 0 and 1 are the first page and a
// page past the end answers 404.
func (m *MockAPI) servePage(w http.ResponseWriter, r *http.Request) {
	kind := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/"), "/")

	m.mu.RLock()
	pages, ok := m.pages[kind]
	headers := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		headers[k] = v
	}
	etags := m.etags
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for k, v := range headers {
		w.Header().Set(k, v)
	}

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"There is nothing here"}`))
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad page"}`))
			return
		}
		if n > 1 {
			page = n
		}
	}
	if page > len(pages) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"There is nothing here"}`))
		return
	}

	base := "http://" + r.Host + "/api/" + kind + "/"
	body := PageJSON(countRecords(pages), len(pages), pageURL(base, page+1, page < len(pages)), pageURL(base, page-1, page > 1), pages[page-1]...)

	if etags {
		etag := fmt.Sprintf(`"%08x"`, crc32.ChecksumIEEE([]byte(body)))
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			m.mu.Lock()
			m.notModified++
			m.mu.Unlock()
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func countRecords(pages [][]string) int {
	n := 0
	for _, p := range pages {
		n += len(p)
	}
	return n
}

func pageURL(base string, page int, ok bool) string {
	if !ok {
		return ""
	}
	return base + "?page=" + strconv.Itoa(page)
}

func hijackAndClose(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

// PageJSON renders a page body. Empty next/prev render as null.
func PageJSON(count, pages int, next, prev string, results ...string) string {
	return fmt.Sprintf(`{"info":{"count":%d,"pages":%d,"next":%s,"prev":%s},"results":[%s]}`,
		count, pages, nullable(next), nullable(prev), strings.Join(results, ","))
}

func nullable(s string) string {
	if s == "" {
		return "null"
	}
	b, _ := json.Marshal(s)
	return string(b)
}

// CharacterJSON renders a character fixture.
func CharacterJSON(id int, name string, episodes ...string) string {
	return mustJSON(map[string]any{
		"id":       id,
		"name":     name,
		"status":   "Alive",
		"species":  "Human",
		"type":     "",
		"gender":   "Male",
		"origin":   map[string]string{"name": "Earth (C-137)", "url": "https://rickandmortyapi.com/api/location/1"},
		"location": map[string]string{"name": "Citadel of Ricks", "url": "https://rickandmortyapi.com/api/location/3"},
		"image":    fmt.Sprintf("https://rickandmortyapi.com/api/character/avatar/%d.jpeg", id),
		"episode":  nonNil(episodes),
		"url":      fmt.Sprintf("https://rickandmortyapi.com/api/character/%d", id),
		"created":  "2017-11-04T18:48:46.250Z",
	})
}

// LocationJSON renders a location fixture.
func LocationJSON(id int, name string) string {
	return mustJSON(map[string]any{
		"id":        id,
		"name":      name,
		"type":      "Planet",
		"dimension": "Dimension C-137",
		"residents": []string{"https://rickandmortyapi.com/api/character/38"},
		"url":       fmt.Sprintf("https://rickandmortyapi.com/api/location/%d", id),
		"created":   "2017-11-10T12:42:04.162Z",
	})
}

// EpisodeJSON renders an episode fixture.
func EpisodeJSON(id int, name, airDate string) string {
	return mustJSON(map[string]any{
		"id":         id,
		"name":       name,
		"air_date":   airDate,
		"episode":    fmt.Sprintf("S01E%02d", id),
		"characters": []string{"https://rickandmortyapi.com/api/character/1"},
		"url":        fmt.Sprintf("https://rickandmortyapi.com/api/episode/%d", id),
		"created":    "2017-11-10T12:56:33.798Z",
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
