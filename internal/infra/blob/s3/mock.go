package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a Store whose client talks to an in-memory fake
// transport. It handles the Head/Get/Put/Delete/ListObjectsV2 subset used
// by the archiver.
func NewMockForTests() *Store {
	rt := &mockRoundTripper{state: make(map[string]mockObj)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket"}
}

type mockRoundTripper struct {
	mu    sync.Mutex
	state map[string]mockObj
}

type mockObj struct {
	body        []byte
	contentType string
}

func emptyResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && strings.Contains(req.URL.RawQuery, "list-type=2") {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range m.state {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("<?xml version=\"1.0\"?><ListBucketResult><IsTruncated>false</IsTruncated>")
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(m.state[k].body))
		}
		b.WriteString("</ListBucketResult>")
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(b.String())), Header: http.Header{"Content-Type": {"application/xml"}}}, nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		st, ok := m.state[key]
		if !ok {
			return emptyResponse(http.StatusNotFound), nil
		}
		body := st.body
		if req.Method == http.MethodHead {
			body = nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
			"Content-Length": {fmt.Sprintf("%d", len(st.body))},
			"Content-Type":   {st.contentType},
			"ETag":           {"\"etag123\""},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}}, nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		if _, exists := m.state[key]; !exists {
			m.state[key] = mockObj{body: body, contentType: req.Header.Get("Content-Type")}
		}
		resp := emptyResponse(http.StatusOK)
		resp.Header.Set("ETag", "\"etag123\"")
		return resp, nil
	case http.MethodDelete:
		delete(m.state, key)
		return emptyResponse(http.StatusNoContent), nil
	}
	return emptyResponse(http.StatusNotImplemented), nil
}

// decodeChunked unwraps a single-chunk aws-chunked payload: <hex>\r\n<body>\r\n0\r\n...
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	var size int64
	if _, err := fmt.Sscanf(parts[0], "%x", &size); err != nil {
		return nil, false
	}
	if int64(len(parts[1])) != size || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}
