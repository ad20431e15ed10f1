package foreign

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/house-cat/echo-notifications/internal/config"
	"github.com/house-cat/echo-notifications/internal/model"
)

func newTestClient(sites map[string]string) *Client {
	return NewClient(config.Foreign{
		Timeout: time.Second,
		Sites:   sites,
	})
}

func TestQueryNotificationsParsesSections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "query", r.URL.Query().Get("action"))
		assert.Equal(t, "notifications", r.URL.Query().Get("meta"))
		assert.Equal(t, "42", r.URL.Query().Get("notglobaluserid"))
		assert.Equal(t, "frwiki", r.URL.Query().Get("notwikis"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"query": {
				"notifications": {
					"alert": {
						"rawcount": 3,
						"list": [{"timestamp": {"mw": "20250101120000"}}]
					},
					"message": {
						"rawcount": 0,
						"list": []
					}
				}
			}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(map[string]string{"frwiki": srv.URL})

	results := c.QueryNotifications(context.Background(), 42, []string{"frwiki"})
	require.Contains(t, results, "frwiki")

	alert := results["frwiki"][model.SectionAlert]
	assert.True(t, alert.HasCount)
	assert.Equal(t, 3, alert.Count)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), alert.Timestamp)

	message := results["frwiki"][model.SectionMessage]
	assert.True(t, message.HasCount)
	assert.Equal(t, 0, message.Count)
	assert.True(t, message.Timestamp.IsZero())
}

func TestQueryNotificationsSkipsFailedWikis(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":{"notifications":{"alert":{"rawcount":1,"list":[]}}}}`))
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	c := newTestClient(map[string]string{
		"frwiki": good.URL,
		"dewiki": bad.URL,
	})

	results := c.QueryNotifications(context.Background(), 42, []string{"frwiki", "dewiki", "itwiki"})

	require.Contains(t, results, "frwiki")
	assert.NotContains(t, results, "dewiki")
	assert.NotContains(t, results, "itwiki") // not configured at all
	assert.Equal(t, 1, results["frwiki"][model.SectionAlert].Count)
}

func TestQueryNotificationsIgnoresMalformedTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"query": {
				"notifications": {
					"alert": {
						"rawcount": 2,
						"list": [{"timestamp": {"mw": "not-a-timestamp"}}]
					}
				}
			}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(map[string]string{"frwiki": srv.URL})

	results := c.QueryNotifications(context.Background(), 42, []string{"frwiki"})
	require.Contains(t, results, "frwiki")

	alert := results["frwiki"][model.SectionAlert]
	assert.Equal(t, 2, alert.Count)
	assert.True(t, alert.Timestamp.IsZero())
}

func TestQueryNotificationsTimeoutBounded(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer slow.Close()

	c := NewClient(config.Foreign{
		Timeout: 50 * time.Millisecond,
		Sites:   map[string]string{"frwiki": slow.URL},
	})

	start := time.Now()
	results := c.QueryNotifications(context.Background(), 42, []string{"frwiki"})

	assert.Empty(t, results)
	assert.Less(t, time.Since(start), time.Second)
}
