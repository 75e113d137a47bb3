package lenssdk

import (
	"context"
	"net/url"
	"strings"

	"github.com/imroc/req/v3"
)

const (
	v1Status   = "/status"
	v1Settings = "/settings"
	v1Tree     = "/tree"
	v1Files    = "/files/"
	v1Graph    = "/classgraph"
	v1Lint     = "/lint"
	v1Rescan   = "/rescan"
	eventsPath = "/events"
)

// RepoAPI exposes the repository analysis endpoints.
type RepoAPI struct {
	client *req.Client
}

func newRepoAPI(client *req.Client) *RepoAPI {
	return &RepoAPI{client: client}
}

func (r *RepoAPI) Status(ctx context.Context) (resp *RepoStatus, err error) {
	res, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1Status)

	if err := handleAPIError(res, err, "status"); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *RepoAPI) Settings(ctx context.Context) (resp *Settings, err error) {
	res, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1Settings)

	if err := handleAPIError(res, err, "settings"); err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdateSettings applies a partial settings write and returns the resulting
// settings as stored by the backend.
func (r *RepoAPI) UpdateSettings(ctx context.Context, update *SettingsUpdate) (resp *Settings, err error) {
	res, err := r.client.R().
		SetContext(ctx).
		SetBody(update).
		SetSuccessResult(&resp).
		Patch(v1Settings)

	if err := handleAPIError(res, err, "update settings"); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *RepoAPI) Tree(ctx context.Context) (resp *TreeSnapshot, err error) {
	res, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1Tree)

	if err := handleAPIError(res, err, "tree"); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *RepoAPI) File(ctx context.Context, path string) (resp *FileDetail, err error) {
	res, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1Files + escapePath(path))

	if err := handleAPIError(res, err, "file "+path); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *RepoAPI) ClassGraph(ctx context.Context) (resp *ClassGraph, err error) {
	res, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1Graph)

	if err := handleAPIError(res, err, "classgraph"); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *RepoAPI) Lint(ctx context.Context) (resp *LintReport, err error) {
	res, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1Lint)

	if err := handleAPIError(res, err, "lint"); err != nil {
		return nil, err
	}
	return resp, nil
}

// TriggerRescan asks the backend for a full rescan. The ack does not imply
// fresh data; completion arrives on the event stream.
func (r *RepoAPI) TriggerRescan(ctx context.Context) (resp *RescanAck, err error) {
	res, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Post(v1Rescan)

	if err := handleAPIError(res, err, "rescan"); err != nil {
		return nil, err
	}
	return resp, nil
}

// escapePath escapes a repo-relative path segment by segment, keeping the
// separators intact.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
