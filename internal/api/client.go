package api

import "connectrpc.com/connect"

// NewClient returns a client for one procedure served at baseURL.
func NewClient[Req, Res any](httpClient connect.HTTPClient, baseURL, procedure string) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](httpClient, baseURL+procedure, connect.WithCodec(jsonCodec{}))
}

// NewRequest wraps msg and identifies the caller as actor.
func NewRequest[T any](actor string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if actor != "" {
		req.Header().Set(ActorHeader, actor)
	}
	return req
}
