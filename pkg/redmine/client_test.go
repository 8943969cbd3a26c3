package redmine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trerrors "github.com/NBISweden/timereport/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		PageSize: 2,
		Timeout:  5 * time.Second,
	})
}

func TestFetchUsersPaginates(t *testing.T) {
	var gotKey string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users.json", r.URL.Path)
		gotKey = r.Header.Get("X-Redmine-API-Key")

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		w.Header().Set("Content-Type", "application/json")
		switch offset {
		case 0:
			fmt.Fprint(w, `{"users":[
				{"id":1,"firstname":"Alice","lastname":"Andersson","mail":"alice@nbis.se"},
				{"id":2,"firstname":"Bo","lastname":"Berg","mail":"bo@nbis.se"}],
				"total_count":3,"offset":0,"limit":2}`)
		case 2:
			fmt.Fprint(w, `{"users":[
				{"id":3,"firstname":"Cia","lastname":"Ceder","mail":"cia@nbis.se"}],
				"total_count":3,"offset":2,"limit":2}`)
		default:
			t.Fatalf("unexpected offset %d", offset)
		}
	})

	client := newTestClient(t, handler)
	users, err := client.FetchUsers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	require.Len(t, users, 3)
	assert.Equal(t, "Alice Andersson", users[1].FullName())
	assert.Equal(t, "cia@nbis.se", users[3].Mail)
}

func TestFetchProjectsParentLinks(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/projects.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"projects":[
			{"id":1,"name":"Long-term Support"},
			{"id":2,"name":"Some Subproject","parent":{"id":1,"name":"Long-term Support"}}],
			"total_count":2,"offset":0,"limit":2}`)
	})

	client := newTestClient(t, handler)
	projects, err := client.FetchProjects(context.Background())
	require.NoError(t, err)

	require.Len(t, projects, 2)
	assert.Nil(t, projects[1].Parent)
	require.NotNil(t, projects[2].Parent)
	assert.Equal(t, 1, *projects[2].Parent)
}

func TestResolveGroupMembers(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/groups.json":
			fmt.Fprint(w, `{"groups":[{"id":10,"name":"Experts"},{"id":11,"name":"Admins"}]}`)
		case "/groups/10.json":
			require.Equal(t, "users", r.URL.Query().Get("include"))
			fmt.Fprint(w, `{"group":{"id":10,"name":"Experts","users":[{"id":1},{"id":3}]}}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	client := newTestClient(t, handler)
	members, err := client.ResolveGroupMembers(context.Background(), "Experts")
	require.NoError(t, err)

	assert.Equal(t, map[int]struct{}{1: {}, 3: {}}, members)
}

func TestResolveGroupMembersNotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"groups":[{"id":10,"name":"Experts"}]}`)
	})

	client := newTestClient(t, handler)
	_, err := client.ResolveGroupMembers(context.Background(), "Nobody")
	assert.ErrorIs(t, err, trerrors.ErrGroupNotFound)
}

func TestForEachTimeEntryStreamsAllPages(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/time_entries.json", r.URL.Path)
		require.Equal(t, "><2025-12-01|2026-11-30", r.URL.Query().Get("spent_on"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		w.Header().Set("Content-Type", "application/json")
		switch offset {
		case 0:
			fmt.Fprint(w, `{"time_entries":[
				{"id":100,"user":{"id":1,"name":"Alice Andersson"},"project":{"id":5,"name":"Some Subproject"},
				 "issue":{"id":1234},"activity":{"id":8,"name":"Support"},"hours":3.5,"spent_on":"2026-01-15","comments":""},
				{"id":101,"user":{"id":2,"name":"Bo Berg"},"project":{"id":6,"name":"Admin"},
				 "activity":{"id":9,"name":"Administration"},"hours":8,"spent_on":"2026-01-16","comments":"planning"}],
				"total_count":3,"offset":0,"limit":2}`)
		case 2:
			fmt.Fprint(w, `{"time_entries":[
				{"id":102,"user":{"id":1,"name":"Alice Andersson"},"project":{"id":5,"name":"Some Subproject"},
				 "issue":{"id":1234},"activity":{"id":8,"name":"Support"},"hours":1,"spent_on":"2026-01-17","comments":""}],
				"total_count":3,"offset":2,"limit":2}`)
		default:
			t.Fatalf("unexpected offset %d", offset)
		}
	})

	client := newTestClient(t, handler)

	from := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC)

	var entries []TimeEntry
	err := client.ForEachTimeEntry(context.Background(), from, to, func(e TimeEntry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, 100, entries[0].ID)
	assert.Equal(t, "Support", entries[0].Activity)
	require.NotNil(t, entries[0].IssueID)
	assert.Equal(t, 1234, *entries[0].IssueID)
	assert.Nil(t, entries[1].IssueID)
	assert.Equal(t, 8.0, entries[1].Hours)
	assert.Equal(t, time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC), entries[1].SpentOn)
}

func TestForEachTimeEntryStopsOnCallbackError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"time_entries":[
			{"id":100,"user":{"id":1,"name":"A"},"project":{"id":5,"name":"P"},
			 "activity":{"id":8,"name":"Support"},"hours":1,"spent_on":"2026-01-15","comments":""}],
			"total_count":1,"offset":0,"limit":2}`)
	})

	client := newTestClient(t, handler)
	sentinel := fmt.Errorf("stop here")
	err := client.ForEachTimeEntry(context.Background(), time.Now(), time.Now(), func(TimeEntry) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"users":[],"total_count":0,"offset":0,"limit":2}`)
	})

	client := newTestClient(t, handler)
	_, err := client.FetchUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestGetJSONUnauthorizedIsPermanent(t *testing.T) {
	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := newTestClient(t, handler)
	_, err := client.FetchUsers(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, trerrors.ErrUnauthorized)
	assert.Equal(t, 1, attempts, "401 must not be retried")
}

func TestEntryURL(t *testing.T) {
	client := NewClient(Options{BaseURL: "https://projects.nbis.se", APIKey: "k"})
	assert.Equal(t, "https://projects.nbis.se/time_entries/123/edit", client.EntryURL(123))
}
