package notifuser

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/house-cat/echo-notifications/internal/attribute"
	"github.com/house-cat/echo-notifications/internal/config"
	"github.com/house-cat/echo-notifications/internal/foreign"
	"github.com/house-cat/echo-notifications/internal/model"
)

// memNotif is one in-memory notification row.
type memNotif struct {
	eventID   int64
	eventType string
	timestamp time.Time
	read      bool
}

// memStore backs the fake gateway and mapper with one shared row set.
type memStore struct {
	rows map[int64][]*memNotif // by user id
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64][]*memNotif)}
}

func (s *memStore) add(userID, eventID int64, eventType string, ts time.Time) {
	s.rows[userID] = append(s.rows[userID], &memNotif{
		eventID:   eventID,
		eventType: eventType,
		timestamp: ts,
	})
}

func typeSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

type fakeGateway struct {
	store *memStore
}

func (g *fakeGateway) CountCapped(_ context.Context, _ model.DataSource, userID int64, eventTypes []string, cap int) (int, error) {
	set := typeSet(eventTypes)
	count := 0
	for _, n := range g.store.rows[userID] {
		if !n.read && set[n.eventType] {
			count++
			if count >= cap {
				break
			}
		}
	}
	return count, nil
}

func (g *fakeGateway) MarkRead(_ context.Context, userID int64, eventIDs []int64) (int64, error) {
	return g.flip(userID, eventIDs, true), nil
}

func (g *fakeGateway) MarkUnRead(_ context.Context, userID int64, eventIDs []int64) (int64, error) {
	return g.flip(userID, eventIDs, false), nil
}

func (g *fakeGateway) flip(userID int64, eventIDs []int64, read bool) int64 {
	ids := make(map[int64]bool, len(eventIDs))
	for _, id := range eventIDs {
		ids[id] = true
	}
	var changed int64
	for _, n := range g.store.rows[userID] {
		if ids[n.eventID] && n.read != read {
			n.read = read
			changed++
		}
	}
	return changed
}

type fakeMapper struct {
	store *memStore
}

func (m *fakeMapper) FetchUnreadByUser(_ context.Context, _ model.DataSource, userID int64, limit int, eventTypes []string) ([]model.Notification, error) {
	set := typeSet(eventTypes)
	var unread []model.Notification
	for _, n := range m.store.rows[userID] {
		if !n.read && set[n.eventType] {
			unread = append(unread, model.Notification{
				UserID:    userID,
				EventID:   n.eventID,
				EventType: n.eventType,
				Timestamp: n.timestamp,
			})
		}
	}
	sort.Slice(unread, func(i, j int) bool {
		return unread[i].Timestamp.After(unread[j].Timestamp)
	})
	if len(unread) > limit {
		unread = unread[:limit]
	}
	return unread, nil
}

// fakeCache is an in-memory stand-in for the Redis cache, including the
// compute-on-miss path.
type fakeCache struct {
	entries map[string][]byte
	touched map[string]time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: make(map[string][]byte),
		touched: make(map[string]time.Time),
	}
}

func (c *fakeCache) Get(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *fakeCache) GetWithSetCallback(ctx context.Context, key string, _ time.Duration, dest any, compute func(ctx context.Context) (any, error)) error {
	if raw, ok := c.entries[key]; ok {
		return json.Unmarshal(raw, dest)
	}
	value, err := compute(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) TouchCheckKey(_ context.Context, key string) error {
	c.touched[key] = time.Now()
	return nil
}

func (c *fakeCache) CheckKeyTime(_ context.Context, key string) (time.Time, error) {
	if ts, ok := c.touched[key]; ok {
		return ts, nil
	}
	now := time.Now()
	c.touched[key] = now
	return now, nil
}

type indexUpdate struct {
	wiki                     string
	alertCount, messageCount int
	alertTime, messageTime   time.Time
}

type fakeIndex struct {
	updates []indexUpdate
}

func (i *fakeIndex) UpdateCount(_ context.Context, _ int64, wiki string, alertCount int, alertTime time.Time, messageCount int, messageTime time.Time) error {
	i.updates = append(i.updates, indexUpdate{
		wiki:         wiki,
		alertCount:   alertCount,
		alertTime:    alertTime,
		messageCount: messageCount,
		messageTime:  messageTime,
	})
	return nil
}

type fakeForeign struct {
	enabled bool
	counts  map[model.Section]int
	times   map[model.Section]time.Time
	wikis   []string
}

func (f *fakeForeign) IsEnabledByUser() bool { return f.enabled }

func (f *fakeForeign) Count(_ context.Context, section model.Section) (int, error) {
	return f.counts[section], nil
}

func (f *fakeForeign) Timestamp(_ context.Context, section model.Section) (time.Time, error) {
	return f.times[section], nil
}

func (f *fakeForeign) Wikis(_ context.Context, _ model.Section) ([]string, error) {
	return f.wikis, nil
}

type fakeForeignAPI struct {
	results map[string]foreign.SiteResult
	queried [][]string
}

func (f *fakeForeignAPI) QueryNotifications(_ context.Context, _ int64, wikis []string) map[string]foreign.SiteResult {
	f.queried = append(f.queried, wikis)
	return f.results
}

func testAttributes() *attribute.Manager {
	return attribute.NewManager(
		map[string]config.EventDefinition{
			"mention":        {Category: "mention"},
			"edit-user-talk": {Category: "edit-user-talk", Section: "message"},
		},
		map[string]config.CategoryDefinition{
			"mention":        {Priority: 4},
			"edit-user-talk": {Priority: 1},
		},
	)
}

type fixture struct {
	store   *memStore
	cache   *fakeCache
	index   *fakeIndex
	foreign *fakeForeign
	api     *fakeForeignAPI
	user    model.User
	cfg     Config
}

func newFixture() *fixture {
	return &fixture{
		store:   newMemStore(),
		cache:   newFakeCache(),
		index:   &fakeIndex{},
		foreign: &fakeForeign{enabled: true},
		api:     &fakeForeignAPI{},
		user:    model.User{ID: 1, Name: "Alice", GlobalID: 100},
		cfg: Config{
			WikiID:           "enwiki",
			CrossWikiEnabled: true,
			MaxUpdateCount:   2000,
			CacheVersion:     "v1",
		},
	}
}

func (f *fixture) notifUser(t *testing.T) *NotifUser {
	t.Helper()
	u, err := New(
		f.user, f.cache,
		&fakeGateway{store: f.store}, &fakeMapper{store: f.store},
		testAttributes(), f.index, f.foreign, f.api, f.cfg,
	)
	require.NoError(t, err)
	return u
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCapNotificationCount(t *testing.T) {
	for n := 0; n <= MaxBadgeCount+1; n++ {
		assert.Equal(t, n, CapNotificationCount(n))
	}
	assert.Equal(t, MaxBadgeCount+1, CapNotificationCount(MaxBadgeCount+2))
	assert.Equal(t, MaxBadgeCount+1, CapNotificationCount(100000))
}

func TestAnonymousUserRejected(t *testing.T) {
	f := newFixture()
	_, err := New(
		model.User{}, f.cache,
		&fakeGateway{store: f.store}, &fakeMapper{store: f.store},
		testAttributes(), f.index, f.foreign, f.api, f.cfg,
	)
	assert.ErrorIs(t, err, ErrAnonymousUser)
}

func TestZeroNotifications(t *testing.T) {
	f := newFixture()
	u := f.notifUser(t)
	ctx := context.Background()

	for _, section := range []model.Section{model.SectionAlert, model.SectionMessage, model.SectionAll} {
		count, err := u.NotificationCount(ctx, true, model.DataSourceReplica, section, ScopeLocal)
		require.NoError(t, err)
		assert.Equal(t, 0, count, section)

		ts, err := u.LastUnreadNotificationTime(ctx, true, model.DataSourceReplica, section, ScopeLocal)
		require.NoError(t, err)
		assert.True(t, ts.IsZero(), section)
	}
}

func TestLocalCountsBySection(t *testing.T) {
	f := newFixture()
	f.store.add(1, 10, "mention", baseTime)
	f.store.add(1, 11, "mention", baseTime.Add(time.Hour))
	f.store.add(1, 12, "edit-user-talk", baseTime.Add(2*time.Hour))
	u := f.notifUser(t)
	ctx := context.Background()

	snapshot, err := u.CountsAndTimestamps(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 2, snapshot.Local[model.SectionAlert].Count)
	assert.Equal(t, 1, snapshot.Local[model.SectionMessage].Count)
	assert.Equal(t, 3, snapshot.Local[model.SectionAll].Count)
	assert.True(t, snapshot.Local[model.SectionAlert].Timestamp.Equal(baseTime.Add(time.Hour)))
	assert.True(t, snapshot.Local[model.SectionAll].Timestamp.Equal(baseTime.Add(2*time.Hour)))
	assert.Nil(t, snapshot.Global)
}

func TestCountCappedAtBadgeLimit(t *testing.T) {
	f := newFixture()
	for i := 0; i < 150; i++ {
		f.store.add(1, int64(i+1), "mention", baseTime.Add(time.Duration(i)*time.Minute))
	}
	u := f.notifUser(t)

	count, err := u.LocalNotificationCount(context.Background(), true, model.DataSourceReplica, model.SectionAll)
	require.NoError(t, err)
	assert.Equal(t, MaxBadgeCount+1, count)
}

func TestMarkReadInvalidatesCache(t *testing.T) {
	f := newFixture()
	f.store.add(1, 10, "mention", baseTime)
	f.store.add(1, 11, "mention", baseTime.Add(time.Hour))
	u := f.notifUser(t)
	ctx := context.Background()

	count, err := u.AlertCount(ctx, true, model.DataSourceReplica)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	updated, err := u.MarkRead(ctx, []int64{10})
	require.NoError(t, err)
	assert.True(t, updated)

	// A fresh request-scoped instance must observe the new count through
	// the shared cache.
	u2 := f.notifUser(t)
	count, err = u2.AlertCount(ctx, true, model.DataSourceReplica)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkReadFiltersInvalidIDs(t *testing.T) {
	f := newFixture()
	u := f.notifUser(t)

	updated, err := u.MarkRead(context.Background(), []int64{0, -5})
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestMarkReadReadOnlyMode(t *testing.T) {
	f := newFixture()
	f.store.add(1, 10, "mention", baseTime)
	f.cfg.ReadOnly = func() bool { return true }
	u := f.notifUser(t)

	updated, err := u.MarkRead(context.Background(), []int64{10})
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = u.MarkAllRead(context.Background(), []model.Section{model.SectionAll})
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestMarkAllReadIdempotent(t *testing.T) {
	f := newFixture()
	f.store.add(1, 10, "mention", baseTime)
	f.store.add(1, 11, "edit-user-talk", baseTime.Add(time.Hour))
	u := f.notifUser(t)
	ctx := context.Background()

	updated, err := u.MarkAllRead(ctx, []model.Section{model.SectionAll})
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = u.MarkAllRead(ctx, []model.Section{model.SectionAll})
	require.NoError(t, err)
	assert.False(t, updated, "second mark-all-read must report no further change")

	count, err := u.LocalNotificationCount(ctx, false, model.DataSourceMaster, model.SectionAll)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMarkAllReadSectionScoped(t *testing.T) {
	f := newFixture()
	f.store.add(1, 10, "mention", baseTime)
	f.store.add(1, 11, "edit-user-talk", baseTime.Add(time.Hour))
	u := f.notifUser(t)
	ctx := context.Background()

	updated, err := u.MarkAllRead(ctx, []model.Section{model.SectionMessage})
	require.NoError(t, err)
	assert.True(t, updated)

	count, err := u.LocalNotificationCount(ctx, false, model.DataSourceMaster, model.SectionAlert)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "alerts must stay unread")
}

func TestGlobalDisabledForcesLocal(t *testing.T) {
	f := newFixture()
	f.cfg.CrossWikiEnabled = false
	f.foreign.counts = map[model.Section]int{model.SectionAlert: 50}
	f.store.add(1, 10, "mention", baseTime)
	u := f.notifUser(t)
	ctx := context.Background()

	for _, scope := range []ForeignScope{ScopeLocal, ScopeGlobal, ScopePreference} {
		count, err := u.NotificationCount(ctx, true, model.DataSourceReplica, model.SectionAlert, scope)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "cross-wiki disabled must ignore scope %v", scope)
	}
}

func TestGlobalMergesForeignCounts(t *testing.T) {
	f := newFixture()
	f.store.add(1, 10, "mention", baseTime)
	foreignTime := baseTime.Add(3 * time.Hour)
	f.foreign.counts = map[model.Section]int{
		model.SectionAlert:   3,
		model.SectionMessage: 2,
		model.SectionAll:     5,
	}
	f.foreign.times = map[model.Section]time.Time{
		model.SectionAlert: foreignTime,
		model.SectionAll:   foreignTime,
	}
	u := f.notifUser(t)
	ctx := context.Background()

	snapshot, err := u.CountsAndTimestamps(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, snapshot.Global)

	assert.Equal(t, 4, snapshot.Global[model.SectionAlert].Count)
	assert.Equal(t, 2, snapshot.Global[model.SectionMessage].Count)
	assert.Equal(t, 6, snapshot.Global[model.SectionAll].Count)
	assert.True(t, snapshot.Global[model.SectionAlert].Timestamp.Equal(foreignTime))
	assert.True(t, snapshot.Global[model.SectionAll].Timestamp.Equal(foreignTime))
}

func TestGlobalWithoutGlobalAccountFallsBackToLocal(t *testing.T) {
	f := newFixture()
	f.user.GlobalID = 0
	f.store.add(1, 10, "mention", baseTime)
	f.foreign.counts = map[model.Section]int{model.SectionAlert: 9}
	u := f.notifUser(t)

	count, err := u.NotificationCount(context.Background(), true, model.DataSourceReplica, model.SectionAlert, ScopeGlobal)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBundleTrustModeQueriesForeignAPIs(t *testing.T) {
	f := newFixture()
	f.cfg.TrustMode = model.TrustModeBundle
	f.foreign.wikis = []string{"dewiki", "frwiki"}
	// Index counts are deliberately wrong; they must not be used.
	f.foreign.counts = map[model.Section]int{model.SectionAlert: 42}
	apiTime := baseTime.Add(4 * time.Hour)
	f.api.results = map[string]foreign.SiteResult{
		"dewiki": {
			model.SectionAlert: {Count: 2, HasCount: true, Timestamp: apiTime},
		},
		"frwiki": {
			model.SectionMessage: {Count: 1, HasCount: true},
		},
	}
	u := f.notifUser(t)
	ctx := context.Background()

	snapshot, err := u.CountsAndTimestamps(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, snapshot.Global)

	assert.Equal(t, 2, snapshot.Global[model.SectionAlert].Count)
	assert.Equal(t, 1, snapshot.Global[model.SectionMessage].Count)
	assert.True(t, snapshot.Global[model.SectionAlert].Timestamp.Equal(apiTime))
	require.NotEmpty(t, f.api.queried)
	assert.Equal(t, []string{"dewiki", "frwiki"}, f.api.queried[0])
}

func TestSectionTrustModeUsesAPIForSectionSplit(t *testing.T) {
	f := newFixture()
	f.cfg.TrustMode = model.TrustModeSection
	f.foreign.wikis = []string{"dewiki"}
	// The per-section index split is untrusted in this mode and must be
	// ignored in favor of the wikis' own APIs.
	f.foreign.counts = map[model.Section]int{model.SectionAlert: 42}
	f.api.results = map[string]foreign.SiteResult{
		"dewiki": {
			model.SectionAlert: {Count: 2, HasCount: true},
		},
	}
	u := f.notifUser(t)
	ctx := context.Background()

	snapshot, err := u.CountsAndTimestamps(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, 2, snapshot.Global[model.SectionAlert].Count)
	assert.Equal(t, 0, snapshot.Global[model.SectionMessage].Count)
	assert.Equal(t, 2, snapshot.Global[model.SectionAll].Count)
}

func TestResetNotificationCountUpdatesIndex(t *testing.T) {
	f := newFixture()
	f.store.add(1, 10, "mention", baseTime)
	f.store.add(1, 11, "edit-user-talk", baseTime.Add(time.Hour))
	u := f.notifUser(t)
	ctx := context.Background()

	require.NoError(t, u.ResetNotificationCount(ctx, model.DataSourceMaster))

	require.Len(t, f.index.updates, 1)
	update := f.index.updates[0]
	assert.Equal(t, "enwiki", update.wiki)
	assert.Equal(t, 1, update.alertCount)
	assert.Equal(t, 1, update.messageCount)
	assert.True(t, update.alertTime.Equal(baseTime))
	assert.True(t, update.messageTime.Equal(baseTime.Add(time.Hour)))

	ts, err := u.GlobalUpdateTime(ctx)
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}

func TestResetSkipsIndexWhenCrossWikiDisabled(t *testing.T) {
	f := newFixture()
	f.cfg.CrossWikiEnabled = false
	f.store.add(1, 10, "mention", baseTime)
	u := f.notifUser(t)

	require.NoError(t, u.ResetNotificationCount(context.Background(), model.DataSourceMaster))
	assert.Empty(t, f.index.updates)
}

func TestTalkFlagClearedWhenNoUnreadTalkRemains(t *testing.T) {
	f := newFixture()
	f.store.add(1, 11, "edit-user-talk", baseTime)
	u := f.notifUser(t)
	ctx := context.Background()

	u.FlagCacheWithNewTalkNotification(ctx)

	updated, err := u.MarkRead(ctx, []int64{11})
	require.NoError(t, err)
	require.True(t, updated)

	assert.False(t, u.hasNewTalkFlag(ctx))
}

func TestTalkFlagRestoredOnMarkUnread(t *testing.T) {
	f := newFixture()
	f.store.add(1, 11, "edit-user-talk", baseTime)
	u := f.notifUser(t)
	ctx := context.Background()

	updated, err := u.MarkRead(ctx, []int64{11})
	require.NoError(t, err)
	require.True(t, updated)

	updated, err = u.MarkUnRead(ctx, []int64{11})
	require.NoError(t, err)
	require.True(t, updated)

	assert.True(t, u.hasNewTalkFlag(ctx))
}

func TestClearTalkNotification(t *testing.T) {
	f := newFixture()
	f.store.add(1, 11, "edit-user-talk", baseTime)
	u := f.notifUser(t)
	ctx := context.Background()

	u.FlagCacheWithNewTalkNotification(ctx)
	require.NoError(t, u.ClearTalkNotification(ctx))

	count, err := u.LocalNotificationCount(ctx, false, model.DataSourceMaster, model.SectionMessage)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.False(t, u.hasNewTalkFlag(ctx))
}
