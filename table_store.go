package transact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TableStore implements RecordStore against a table-oriented REST API:
//
//	POST   {base}/{table}        create
//	PATCH  {base}/{table}/{id}   update
//	DELETE {base}/{table}/{id}   delete
//
// Create and update responses carry the record inside a "result" envelope.
// The store performs no retries of its own; retry policy belongs to the
// transaction options.
type TableStore struct {
	baseURL  string
	client   *http.Client
	username string
	password string
}

// TableStoreOption customizes a TableStore.
type TableStoreOption func(*TableStore)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(client *http.Client) TableStoreOption {
	return func(s *TableStore) {
		s.client = client
	}
}

// WithBasicAuth sends the given credentials with every request.
func WithBasicAuth(username, password string) TableStoreOption {
	return func(s *TableStore) {
		s.username = username
		s.password = password
	}
}

// NewTableStore creates a TableStore for the API rooted at baseURL, e.g.
// "https://instance.example.com/api/now/table".
func NewTableStore(baseURL string, opts ...TableStoreOption) *TableStore {
	s := &TableStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type resultEnvelope struct {
	Result Record `json:"result"`
}

// Create inserts a record and returns it with its assigned identifier.
func (s *TableStore) Create(ctx context.Context, table string, data Record) (Record, error) {
	return s.send(ctx, http.MethodPost, s.recordURL(table, ""), data)
}

// Update applies the given fields to a record and returns the updated record.
func (s *TableStore) Update(ctx context.Context, table, id string, data Record) (Record, error) {
	return s.send(ctx, http.MethodPatch, s.recordURL(table, id), data)
}

// Delete removes a record.
func (s *TableStore) Delete(ctx context.Context, table, id string) error {
	_, err := s.send(ctx, http.MethodDelete, s.recordURL(table, id), nil)
	return err
}

func (s *TableStore) recordURL(table, id string) string {
	u := s.baseURL + "/" + url.PathEscape(table)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (s *TableStore) send(ctx context.Context, method, rawURL string, data Record) (Record, error) {
	var body io.Reader
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal record: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s %s: status %d: %s", method, rawURL, resp.StatusCode, bytes.TrimSpace(payload))
	}
	if resp.StatusCode == http.StatusNoContent || method == http.MethodDelete {
		return nil, nil
	}

	var envelope resultEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return envelope.Result, nil
}
