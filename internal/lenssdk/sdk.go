// Package lenssdk is the client for the RepoLens backend: a thin HTTP
// transport over imroc/req plus a reconnecting websocket event stream.
package lenssdk

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/imroc/req/v3"
	"github.com/repolens/repolens/internal/version"
)

// SDK is the main client for the RepoLens backend API.
type SDK struct {
	client  *req.Client
	baseURL string
	Repo    *RepoAPI
	Events  *EventsAPI
}

// New creates an SDK from the resolved base URL in cfg. The transport does
// not retry on its own; retry policy is owned by the query cache.
func New(cfg *Config) (*SDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := cfg.ResolveBaseURL()
	apiBase, err := url.JoinPath(base, APIPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadBaseURL, base)
	}

	client := req.C().
		SetBaseURL(apiBase).
		SetTimeout(cfg.timeout()).
		SetUserAgent(LensUserAgent).
		SetCommonHeader(HeaderLensVersion, version.Version).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	header := http.Header{}
	header.Set(HeaderUserAgent, LensUserAgent)
	header.Set(HeaderLensVersion, version.Version)

	eventsURL, err := url.JoinPath(apiBase, eventsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadBaseURL, base)
	}

	return &SDK{
		client:  client,
		baseURL: apiBase,
		Repo:    newRepoAPI(client),
		Events:  newEventsAPI(toWebsocketURL(eventsURL), header),
	}, nil
}

// BaseURL returns the fully resolved API base, prefix included.
func (s *SDK) BaseURL() string {
	return s.baseURL
}

// Close stops the event stream and releases transport resources.
func (s *SDK) Close() {
	s.Events.Stop()
	s.client.GetClient().CloseIdleConnections()
}
