// Package redmine provides a typed client for the Redmine REST API.
//
// The client covers the four endpoints a report run needs: the project
// hierarchy, the user directory, group membership, and the paginated stream
// of time entries. All list endpoints are paginated with offset/limit;
// transient failures are retried with exponential backoff.
package redmine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	trerrors "github.com/NBISweden/timereport/pkg/errors"
	"github.com/NBISweden/timereport/pkg/logging"
)

// apiKeyHeader authenticates every request.
const apiKeyHeader = "X-Redmine-API-Key"

// Client talks to one Redmine instance.
type Client struct {
	http     *resty.Client
	baseURL  string
	pageSize int
	log      logging.Logger
}

// Options configures a Client.
type Options struct {
	// BaseURL is the Redmine instance, e.g. "https://projects.nbis.se".
	BaseURL string

	// APIKey is the Redmine API key.
	APIKey string

	// PageSize is the pagination limit for list endpoints (default 100).
	PageSize int

	// Timeout is the per-request timeout (default 2m).
	Timeout time.Duration

	// Logger receives pagination progress. Defaults to a nop logger.
	Logger logging.Logger
}

// NewClient creates a Redmine API client.
func NewClient(opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader(apiKeyHeader, opts.APIKey)

	return &Client{
		http:     httpClient,
		baseURL:  opts.BaseURL,
		pageSize: opts.PageSize,
		log:      opts.Logger,
	}
}

// EntryURL returns the direct edit link for a time entry, used in warnings
// so the operator can locate the source record.
func (c *Client) EntryURL(entryID int) string {
	return fmt.Sprintf("%s/time_entries/%d/edit", c.baseURL, entryID)
}

// getJSON fetches one page into result, retrying transient failures.
// 4xx responses are permanent; 5xx and transport errors are retried.
func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, result any) error {
	operation := func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(result).
			Get(path)
		if err != nil {
			return fmt.Errorf("GET %s: %w", path, err)
		}
		switch {
		case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("GET %s: %w", path, trerrors.ErrUnauthorized))
		case resp.StatusCode() >= 500:
			return fmt.Errorf("GET %s: server error %d", path, resp.StatusCode())
		case resp.IsError():
			return backoff.Permanent(fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode()))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(time.Minute),
	), ctx)

	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		c.log.Warn("retrying Redmine request",
			logging.F("path", path),
			logging.F("wait", wait),
			logging.Err(err))
	})
}

// FetchProjects returns the full project forest keyed by project id.
// Archived parents may still be referenced, so the caller must treat a
// missing parent as an unknown project rather than a top level.
func (c *Client) FetchProjects(ctx context.Context) (map[int]Project, error) {
	projects := make(map[int]Project)

	offset := 0
	for {
		var page projectsPage
		params := map[string]string{
			"offset": fmt.Sprint(offset),
			"limit":  fmt.Sprint(c.pageSize),
		}
		if err := c.getJSON(ctx, "/projects.json", params, &page); err != nil {
			return nil, fmt.Errorf("fetching projects: %w", err)
		}

		for _, p := range page.Projects {
			project := Project{ID: p.ID, Name: p.Name}
			if p.Parent != nil {
				parentID := p.Parent.ID
				project.Parent = &parentID
			}
			projects[p.ID] = project
		}

		offset += len(page.Projects)
		if len(page.Projects) == 0 || offset >= page.TotalCount {
			break
		}
	}

	c.log.Debug("fetched projects", logging.F("count", len(projects)))
	return projects, nil
}

// FetchUsers returns the user directory keyed by user id.
func (c *Client) FetchUsers(ctx context.Context) (map[int]User, error) {
	users := make(map[int]User)

	offset := 0
	for {
		var page usersPage
		params := map[string]string{
			"offset": fmt.Sprint(offset),
			"limit":  fmt.Sprint(c.pageSize),
		}
		if err := c.getJSON(ctx, "/users.json", params, &page); err != nil {
			return nil, fmt.Errorf("fetching users: %w", err)
		}

		for _, u := range page.Users {
			users[u.ID] = User{
				ID:        u.ID,
				FirstName: u.FirstName,
				LastName:  u.LastName,
				Mail:      u.Mail,
			}
		}

		offset += len(page.Users)
		if len(page.Users) == 0 || offset >= page.TotalCount {
			break
		}
	}

	c.log.Debug("fetched users", logging.F("count", len(users)))
	return users, nil
}

// ResolveGroupMembers looks up a group by display name and returns the set
// of its members' user ids. Returns ErrGroupNotFound when no group matches.
func (c *Client) ResolveGroupMembers(ctx context.Context, groupName string) (map[int]struct{}, error) {
	var page groupsPage
	if err := c.getJSON(ctx, "/groups.json", nil, &page); err != nil {
		return nil, fmt.Errorf("fetching groups: %w", err)
	}

	groupID := 0
	found := false
	for _, g := range page.Groups {
		if g.Name == groupName {
			groupID = g.ID
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("group %q: %w", groupName, trerrors.ErrGroupNotFound)
	}

	var group groupResponse
	params := map[string]string{"include": "users"}
	if err := c.getJSON(ctx, fmt.Sprintf("/groups/%d.json", groupID), params, &group); err != nil {
		return nil, fmt.Errorf("fetching group %d members: %w", groupID, err)
	}

	members := make(map[int]struct{}, len(group.Group.Users))
	for _, u := range group.Group.Users {
		members[u.ID] = struct{}{}
	}

	c.log.Debug("resolved group members",
		logging.F("group", groupName),
		logging.F("members", len(members)))
	return members, nil
}

// ForEachTimeEntry streams every time entry in the inclusive [from, to]
// date range through fn, one page at a time. Iteration stops on the first
// fn error. Entries are visited exactly once, in API order.
func (c *Client) ForEachTimeEntry(ctx context.Context, from, to time.Time, fn func(TimeEntry) error) error {
	spentOn := fmt.Sprintf("><%s|%s", from.Format("2006-01-02"), to.Format("2006-01-02"))

	offset := 0
	for {
		var page timeEntriesPage
		params := map[string]string{
			"spent_on": spentOn,
			"offset":   fmt.Sprint(offset),
			"limit":    fmt.Sprint(c.pageSize),
		}
		if err := c.getJSON(ctx, "/time_entries.json", params, &page); err != nil {
			return fmt.Errorf("fetching time entries: %w", err)
		}

		if len(page.TimeEntries) == 0 {
			break
		}

		for _, wire := range page.TimeEntries {
			if err := fn(wire.toTimeEntry()); err != nil {
				return err
			}
		}

		offset += len(page.TimeEntries)
		c.log.Info("fetched time entries", logging.F("count", offset))
		if offset >= page.TotalCount {
			break
		}
	}

	return nil
}
