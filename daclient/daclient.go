// Copyright 2025 The attestor-go Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package daclient is a minimal JSON-RPC 2.0 client for a data-availability
// node's blob API. It submits namespaced blobs and retrieves them by height.
// Every call is a single attempt; retry policy belongs to the caller, which
// knows its budget. Consensus-level concerns such as fee handling belong to
// the node.
package daclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/net/context/ctxhttp"
)

// Blob is one namespaced payload as the node's blob API represents it.
type Blob struct {
	Namespace  string `json:"namespace"`
	Data       []byte `json:"data"`
	Commitment []byte `json:"commitment,omitempty"`
}

// SubmitResult is the node's answer to a successful blob submission.
type SubmitResult struct {
	Height     uint64 `json:"height"`
	Commitment []byte `json:"commitment"`
}

// RspError carries the HTTP status and body of a failed request, so callers
// can distinguish a node-side rejection from transport trouble.
type RspError struct {
	Err        error
	StatusCode int
	Body       []byte
}

func (e RspError) Error() string {
	return fmt.Sprintf("%v (status: %d, body: %q)", e.Err, e.StatusCode, e.Body)
}

// Options are the options for creating a new Client.
type Options struct {
	// HTTPClient to use; a default client with a 30s timeout if nil.
	HTTPClient *http.Client
	// AuthToken is sent as a bearer token when non-empty.
	AuthToken string
	// UserAgent to report; a package default if empty.
	UserAgent string
}

// Client talks JSON-RPC 2.0 to one DA node.
type Client struct {
	uri        string
	httpClient *http.Client
	authToken  string
	userAgent  string
	reqID      atomic.Uint64
}

// New constructs a Client for the given base URI.
func New(uri string, opts Options) (*Client, error) {
	if _, err := url.Parse(uri); err != nil {
		return nil, fmt.Errorf("invalid DA node URI %q: %v", uri, err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "attestor-go/daclient"
	}
	return &Client{
		uri:        uri,
		httpClient: httpClient,
		authToken:  opts.AuthToken,
		userAgent:  userAgent,
	}, nil
}

// BaseURI returns the base URI the client is configured for.
func (c *Client) BaseURI() string {
	return c.uri
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// Call performs one JSON-RPC call, decoding the result into rsp (which may
// be nil when the result is irrelevant).
func (c *Client) Call(ctx context.Context, method string, rsp interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %v", method, err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.uri, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	httpRsp, err := ctxhttp.Do(ctx, c.httpClient, httpReq)
	if err != nil {
		return err
	}
	defer httpRsp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(httpRsp.Body); err != nil {
		return RspError{Err: fmt.Errorf("failed to read response from %s: %v", method, err), StatusCode: httpRsp.StatusCode}
	}
	if httpRsp.StatusCode != http.StatusOK {
		return RspError{Err: fmt.Errorf("%s returned HTTP %s", method, httpRsp.Status), StatusCode: httpRsp.StatusCode, Body: buf.Bytes()}
	}

	var decoded rpcResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		return RspError{Err: fmt.Errorf("failed to parse %s response: %v", method, err), StatusCode: httpRsp.StatusCode, Body: buf.Bytes()}
	}
	if decoded.Error != nil {
		return RspError{Err: fmt.Errorf("%s failed: %s (code %d)", method, decoded.Error.Message, decoded.Error.Code), StatusCode: httpRsp.StatusCode, Body: buf.Bytes()}
	}
	if rsp != nil {
		if err := json.Unmarshal(decoded.Result, rsp); err != nil {
			return RspError{Err: fmt.Errorf("failed to parse %s result: %v", method, err), StatusCode: httpRsp.StatusCode, Body: buf.Bytes()}
		}
	}
	return nil
}

// SubmitBlob posts one blob under the namespace and returns its inclusion
// height and commitment. A failure is reported after the single attempt;
// callers own the retry budget.
func (c *Client) SubmitBlob(ctx context.Context, namespace string, data []byte) (*SubmitResult, error) {
	blob := Blob{
		Namespace: base64.StdEncoding.EncodeToString([]byte(namespace)),
		Data:      data,
	}
	var result SubmitResult
	if err := c.Call(ctx, "blob.Submit", &result, []Blob{blob}); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBlobs retrieves all blobs posted under the namespace at a height.
func (c *Client) GetBlobs(ctx context.Context, namespace string, height uint64) ([]Blob, error) {
	var blobs []Blob
	ns := base64.StdEncoding.EncodeToString([]byte(namespace))
	if err := c.Call(ctx, "blob.GetAll", &blobs, height, []string{ns}); err != nil {
		return nil, err
	}
	return blobs, nil
}
