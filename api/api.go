package api

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client provides a client to the Otter agent API.
type Client struct {
	config Config
}

// Config is the config used to embed into the API client.
type Config struct {
	// Address is the address of the Otter agent.
	Address string

	// httpClient is the client to use.
	httpClient *http.Client
}

// DefaultConfig returns a default configuration for the client.
func DefaultConfig() *Config {
	return &Config{
		Address:    "http://127.0.0.1:8000",
		httpClient: http.DefaultClient,
	}
}

// NewClient returns a new client configured against an agent address.
func NewClient(config *Config) (*Client, error) {
	def := DefaultConfig()

	if config.Address == "" {
		config.Address = def.Address
	}
	if config.httpClient == nil {
		config.httpClient = def.httpClient
	}

	if _, err := url.Parse(config.Address); err != nil {
		return nil, fmt.Errorf("invalid agent address %q: %v", config.Address, err)
	}

	return &Client{config: *config}, nil
}

type request struct {
	config *Config
	method string
	url    *url.URL
	params url.Values
	body   io.Reader
	obj    interface{}
}

// multiCloser is to wrap a ReadCloser such that when close is called, multiple
// closes occur.
type multiCloser struct {
	reader       io.Reader
	inorderClose []io.Closer
}

func (c *Client) query(endpoint string, out interface{}) error {
	r, err := c.newRequest("GET", endpoint)
	if err != nil {
		return err
	}
	_, resp, err := requireOK(c.doRequest(r))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := decodeBody(resp, out); err != nil {
		return err
	}
	return nil
}

// write issues a state changing request against the agent. The trigger
// endpoints acknowledge with a 202 since execution outcomes are only
// readable from group state afterward.
func (c *Client) write(method, endpoint string, obj interface{}) error {
	r, err := c.newRequest(method, endpoint)
	if err != nil {
		return err
	}
	r.obj = obj

	_, resp, err := requireOK(c.doRequest(r))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) newRequest(method, path string) (*request, error) {
	base, _ := url.Parse(c.config.Address)
	u, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	r := &request{
		config: &c.config,
		method: method,
		url: &url.URL{
			Scheme: base.Scheme,
			User:   base.User,
			Host:   base.Host,
			Path:   u.Path,
		},
		params: make(map[string][]string),
	}

	// Add in the query parameters, if any
	for key, values := range u.Query() {
		for _, value := range values {
			r.params.Add(key, value)
		}
	}

	return r, nil
}

// requireOK is used to wrap doRequest and check for a 2xx response.
func requireOK(d time.Duration, resp *http.Response, e error) (time.Duration, *http.Response, error) {
	if e != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return d, nil, e
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var buf bytes.Buffer
		io.Copy(&buf, resp.Body)
		resp.Body.Close()
		return d, nil, fmt.Errorf("Unexpected response code: %d (%s)", resp.StatusCode, buf.Bytes())
	}
	return d, resp, nil
}

func (c *Client) doRequest(r *request) (time.Duration, *http.Response, error) {
	req, err := r.toHTTP()
	if err != nil {
		return 0, nil, err
	}
	start := time.Now()
	resp, err := c.config.httpClient.Do(req)
	diff := time.Now().Sub(start)

	// If the response is compressed, we swap the body's reader.
	if resp != nil && resp.Header != nil {
		var reader io.ReadCloser
		switch resp.Header.Get("Content-Encoding") {
		case "gzip":
			greader, err := gzip.NewReader(resp.Body)
			if err != nil {
				return 0, nil, err
			}

			// The gzip reader doesn't close the wrapped reader so we use
			// multiCloser.
			reader = &multiCloser{
				reader:       greader,
				inorderClose: []io.Closer{greader, resp.Body},
			}
		default:
			reader = resp.Body
		}
		resp.Body = reader
	}

	return diff, resp, err
}

// decodeBody is used to JSON decode a body
func decodeBody(resp *http.Response, out interface{}) error {
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

func encodeBody(obj interface{}) (io.Reader, error) {
	buf := bytes.NewBuffer(nil)
	enc := json.NewEncoder(buf)
	if err := enc.Encode(obj); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *request) toHTTP() (*http.Request, error) {
	// Encode the query parameters
	r.url.RawQuery = r.params.Encode()

	// Check if we should encode the body
	if r.body == nil && r.obj != nil {
		b, err := encodeBody(r.obj)
		if err != nil {
			return nil, err
		}
		r.body = b
	}

	// Create the HTTP request
	req, err := http.NewRequest(r.method, r.url.RequestURI(), r.body)
	if err != nil {
		return nil, err
	}

	req.URL.Host = r.url.Host
	req.URL.Scheme = r.url.Scheme
	req.Host = r.url.Host
	return req, nil
}

func (m *multiCloser) Close() error {
	for _, c := range m.inorderClose {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiCloser) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}
