package agentrpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

type Client struct {
	registerAgent    *connect.Client[RegisterAgentRequest, RegisterAgentResponse]
	heartbeat        *connect.Client[HeartbeatRequest, HeartbeatResponse]
	updateTaskStatus *connect.Client[UpdateTaskStatusRequest, UpdateTaskStatusResponse]
	subscribe        *connect.Client[SubscribeRequest, DispatchMessage]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(codec{})}, opts...)
	return &Client{
		registerAgent:    connect.NewClient[RegisterAgentRequest, RegisterAgentResponse](httpClient, baseURL+RegisterAgentProcedure, opts...),
		heartbeat:        connect.NewClient[HeartbeatRequest, HeartbeatResponse](httpClient, baseURL+HeartbeatProcedure, opts...),
		updateTaskStatus: connect.NewClient[UpdateTaskStatusRequest, UpdateTaskStatusResponse](httpClient, baseURL+UpdateTaskStatusProcedure, opts...),
		subscribe:        connect.NewClient[SubscribeRequest, DispatchMessage](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

func (c *Client) RegisterAgent(ctx context.Context, req *RegisterAgentRequest) (*RegisterAgentResponse, error) {
	resp, err := c.registerAgent.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	resp, err := c.heartbeat.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) UpdateTaskStatus(ctx context.Context, req *UpdateTaskStatusRequest) (*UpdateTaskStatusResponse, error) {
	resp, err := c.updateTaskStatus.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Subscribe opens the dispatch stream. The caller must Close it.
//
// The server answers once it has a first message to deliver, so Subscribe
// blocks until then. Callers that dispatch to themselves must subscribe
// from another goroutine.
func (c *Client) Subscribe(ctx context.Context, req *SubscribeRequest) (*connect.ServerStreamForClient[DispatchMessage], error) {
	return c.subscribe.CallServerStream(ctx, connect.NewRequest(req))
}

// Listen subscribes as agentID and passes every dispatched message to
// handle until ctx is done, handle fails or the stream breaks. It returns
// nil when ctx ends the stream.
func (c *Client) Listen(ctx context.Context, agentID string, handle func(*DispatchMessage) error) error {
	stream, err := c.Subscribe(ctx, &SubscribeRequest{AgentID: agentID})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer stream.Close()
	for stream.Receive() {
		if err := handle(stream.Msg()); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return stream.Err()
}

type apiKeyTransport struct {
	apiKey string
	next   http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("X-API-Key", t.apiKey)
	return t.next.RoundTrip(r)
}

// NewHTTPClient returns a client that authenticates every call with apiKey.
// It has no timeout so Subscribe streams can stay open.
func NewHTTPClient(apiKey string) *http.Client {
	return &http.Client{Transport: &apiKeyTransport{apiKey: apiKey, next: http.DefaultTransport}}
}
