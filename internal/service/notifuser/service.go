// Package notifuser computes and caches per-user unread notification counts
// and timestamps, locally and across wikis, and keeps those caches consistent
// when notifications are marked read or unread.
package notifuser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/house-cat/echo-notifications/internal/attribute"
	"github.com/house-cat/echo-notifications/internal/foreign"
	"github.com/house-cat/echo-notifications/internal/model"
)

const (
	// MaxBadgeCount is the highest number a badge renders exactly; anything
	// above shows as "99+". Counts are capped at MaxBadgeCount+1 everywhere
	// so the capped queries stay cheap.
	MaxBadgeCount = 99

	cacheTTL     = 24 * time.Hour
	talkFlagTTL  = 24 * time.Hour
	countsKey    = "echo-notification-counts"
	updatedKey   = "echo-notification-updated"
	newTalkKey   = "echo-new-talk-notification"
	webDelivery  = "web"
	talkCategory = "edit-user-talk"
)

// ErrAnonymousUser is returned when constructing a NotifUser for an
// unauthenticated identity.
var ErrAnonymousUser = errors.New("user must be logged in to view notifications")

// ForeignScope states whether an operation covers local data only, global
// data, or defers to the user's cross-wiki preference.
type ForeignScope int

const (
	ScopePreference ForeignScope = iota
	ScopeLocal
	ScopeGlobal
)

type countGateway interface {
	CountCapped(ctx context.Context, source model.DataSource, userID int64, eventTypes []string, cap int) (int, error)
	MarkRead(ctx context.Context, userID int64, eventIDs []int64) (int64, error)
	MarkUnRead(ctx context.Context, userID int64, eventIDs []int64) (int64, error)
}

type notifMapper interface {
	FetchUnreadByUser(ctx context.Context, source model.DataSource, userID int64, limit int, eventTypes []string) ([]model.Notification, error)
}

type countsCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	GetWithSetCallback(ctx context.Context, key string, ttl time.Duration, dest any, compute func(ctx context.Context) (any, error)) error
	TouchCheckKey(ctx context.Context, key string) error
	CheckKeyTime(ctx context.Context, key string) (time.Time, error)
}

type unreadWikisIndex interface {
	UpdateCount(ctx context.Context, globalUserID int64, wiki string, alertCount int, alertTime time.Time, messageCount int, messageTime time.Time) error
}

type foreignReader interface {
	IsEnabledByUser() bool
	Count(ctx context.Context, section model.Section) (int, error)
	Timestamp(ctx context.Context, section model.Section) (time.Time, error)
	Wikis(ctx context.Context, section model.Section) ([]string, error)
}

type foreignAPI interface {
	QueryNotifications(ctx context.Context, globalUserID int64, wikis []string) map[string]foreign.SiteResult
}

// Config carries the aggregation knobs. It is immutable after startup.
type Config struct {
	WikiID           string
	CrossWikiEnabled bool
	MaxUpdateCount   int
	TrustMode        model.TrustMode
	CacheVersion     string
	// ReadOnly reports whether the store is in read-only maintenance mode;
	// mutating operations then become no-ops.
	ReadOnly func() bool
}

// NotifUser aggregates unread notification state for one user. Instances are
// request-scoped: memoized fields are never shared across requests.
type NotifUser struct {
	user        model.User
	cache       countsCache
	gateway     countGateway
	mapper      notifMapper
	attributes  *attribute.Manager
	unreadWikis unreadWikisIndex
	foreign     foreignReader
	foreignAPI  foreignAPI
	cfg         Config

	localCounts  model.Counts
	globalCounts model.Counts
	foreignData  map[string]foreign.SiteResult
	foreignOnce  bool
}

// New creates a NotifUser bound to one identity. Anonymous users are
// rejected up front.
func New(
	user model.User,
	cache countsCache,
	gw countGateway,
	mapper notifMapper,
	attributes *attribute.Manager,
	unreadWikis unreadWikisIndex,
	foreignNotifs foreignReader,
	foreignClient foreignAPI,
	cfg Config,
) (*NotifUser, error) {
	if user.IsAnon() {
		return nil, ErrAnonymousUser
	}

	if cfg.ReadOnly == nil {
		cfg.ReadOnly = func() bool { return false }
	}
	if cfg.MaxUpdateCount <= 0 {
		cfg.MaxUpdateCount = 2000
	}

	return &NotifUser{
		user:        user,
		cache:       cache,
		gateway:     gw,
		mapper:      mapper,
		attributes:  attributes,
		unreadWikis: unreadWikis,
		foreign:     foreignNotifs,
		foreignAPI:  foreignClient,
		cfg:         cfg,
	}, nil
}

// CapNotificationCount caps a raw count at MaxBadgeCount+1. Applied at every
// aggregation boundary so an uncapped number never reaches a cache or caller.
func CapNotificationCount(n int) int {
	if n > MaxBadgeCount+1 {
		return MaxBadgeCount + 1
	}
	return n
}

// MessageCount returns the user's unread message count, scoped by
// preference.
func (u *NotifUser) MessageCount(ctx context.Context, useCache bool, source model.DataSource) (int, error) {
	return u.NotificationCount(ctx, useCache, source, model.SectionMessage, ScopePreference)
}

// AlertCount returns the user's unread alert count, scoped by preference.
func (u *NotifUser) AlertCount(ctx context.Context, useCache bool, source model.DataSource) (int, error) {
	return u.NotificationCount(ctx, useCache, source, model.SectionAlert, ScopePreference)
}

// LocalNotificationCount returns the unread count for the section on this
// wiki only.
func (u *NotifUser) LocalNotificationCount(ctx context.Context, useCache bool, source model.DataSource, section model.Section) (int, error) {
	return u.NotificationCount(ctx, useCache, source, section, ScopeLocal)
}

// NotificationCount returns the unread count for the section, at most
// MaxBadgeCount+1. When cross-wiki notifications are disabled globally the
// scope argument is ignored and local data is returned.
func (u *NotifUser) NotificationCount(
	ctx context.Context,
	useCache bool,
	source model.DataSource,
	section model.Section,
	scope ForeignScope,
) (int, error) {
	counts, err := u.counts(ctx, useCache, source, u.resolveScope(scope))
	if err != nil {
		return 0, err
	}
	return counts[section].Count, nil
}

// LastUnreadAlertTime returns the timestamp of the latest unread alert, or
// the zero time when there is none.
func (u *NotifUser) LastUnreadAlertTime(ctx context.Context, useCache bool, source model.DataSource) (time.Time, error) {
	return u.LastUnreadNotificationTime(ctx, useCache, source, model.SectionAlert, ScopePreference)
}

// LastUnreadMessageTime returns the timestamp of the latest unread message,
// or the zero time when there is none.
func (u *NotifUser) LastUnreadMessageTime(ctx context.Context, useCache bool, source model.DataSource) (time.Time, error) {
	return u.LastUnreadNotificationTime(ctx, useCache, source, model.SectionMessage, ScopePreference)
}

// LastUnreadNotificationTime returns the timestamp of the latest unread
// notification in the section, or the zero time when there is none. Scope
// rules match NotificationCount.
func (u *NotifUser) LastUnreadNotificationTime(
	ctx context.Context,
	useCache bool,
	source model.DataSource,
	section model.Section,
	scope ForeignScope,
) (time.Time, error) {
	counts, err := u.counts(ctx, useCache, source, u.resolveScope(scope))
	if err != nil {
		return time.Time{}, err
	}
	return counts[section].Timestamp, nil
}

// MarkRead marks the given events read. It returns false without error when
// there is nothing valid to update or the store is read-only.
func (u *NotifUser) MarkRead(ctx context.Context, eventIDs []int64) (bool, error) {
	eventIDs = filterEventIDs(eventIDs)
	if len(eventIDs) == 0 || u.cfg.ReadOnly() {
		return false, nil
	}

	changed, err := u.gateway.MarkRead(ctx, u.user.ID, eventIDs)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	if changed == 0 {
		return false, nil
	}

	if err := u.ResetNotificationCount(ctx, model.DataSourceMaster); err != nil {
		zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to reset notification count")
	}

	// If no unread user-talk notification remains, clear the new-talk flag.
	// This reads the master so a stale replica can't leave the flag stuck.
	if u.hasNewTalkFlag(ctx) {
		remains, err := u.unreadTalkRemains(ctx)
		if err != nil {
			zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to recheck talk notifications")
		} else if !remains {
			u.FlagCacheWithNoTalkNotification(ctx)
		}
	}

	return true, nil
}

// MarkUnRead marks the given events unread. Semantics mirror MarkRead.
func (u *NotifUser) MarkUnRead(ctx context.Context, eventIDs []int64) (bool, error) {
	eventIDs = filterEventIDs(eventIDs)
	if len(eventIDs) == 0 || u.cfg.ReadOnly() {
		return false, nil
	}

	changed, err := u.gateway.MarkUnRead(ctx, u.user.ID, eventIDs)
	if err != nil {
		return false, fmt.Errorf("mark unread: %w", err)
	}
	if changed == 0 {
		return false, nil
	}

	if err := u.ResetNotificationCount(ctx, model.DataSourceMaster); err != nil {
		zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to reset notification count")
	}

	if !u.hasNewTalkFlag(ctx) {
		remains, err := u.unreadTalkRemains(ctx)
		if err != nil {
			zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to recheck talk notifications")
		} else if remains {
			u.FlagCacheWithNewTalkNotification(ctx)
		}
	}

	return true, nil
}

// MarkAllRead marks up to MaxUpdateCount unread notifications read in the
// requested sections. Calling it again once everything is read returns false.
func (u *NotifUser) MarkAllRead(ctx context.Context, sections []model.Section) (bool, error) {
	if u.cfg.ReadOnly() {
		return false, nil
	}

	sections = expandSections(sections)
	eventTypes := u.attributes.UserEnabledEventsBySections(u.user, webDelivery, sections)

	notifs, err := u.mapper.FetchUnreadByUser(ctx, model.DataSourceReplica, u.user.ID, u.cfg.MaxUpdateCount, eventTypes)
	if err != nil {
		return false, fmt.Errorf("mark all read: %w", err)
	}

	eventIDs := make([]int64, 0, len(notifs))
	for _, n := range notifs {
		if n.EventID > 0 {
			eventIDs = append(eventIDs, n.EventID)
		}
	}

	updated, err := u.MarkRead(ctx, eventIDs)
	if err != nil {
		return false, err
	}

	if updated && len(notifs) < u.cfg.MaxUpdateCount {
		// Everything that existed was just read, so no talk notification
		// can be left either.
		u.FlagCacheWithNoTalkNotification(ctx)
	}

	return updated, nil
}

// ResetNotificationCount invalidates the cached snapshots, eagerly recomputes
// local counts, pushes them into the unread-wikis index and bumps the global
// check key. The recomputed global snapshot is intentionally not written
// back; it is recomputed lazily to avoid caching a racy merge.
func (u *NotifUser) ResetNotificationCount(ctx context.Context, source model.DataSource) error {
	u.localCounts = nil
	if err := u.cache.Delete(ctx, u.memcKey(countsKey)); err != nil {
		zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to invalidate local counts")
	}

	if !u.cfg.CrossWikiEnabled {
		return nil
	}

	u.globalCounts = nil
	if key, ok := u.globalMemcKey(countsKey); ok {
		if err := u.cache.Delete(ctx, key); err != nil {
			zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to invalidate global counts")
		}
	}

	local, err := u.computeLocalCountsAndTimestamps(ctx, source)
	if err != nil {
		return fmt.Errorf("reset notification count: %w", err)
	}

	if u.user.GlobalID != 0 {
		alert := local[model.SectionAlert]
		message := local[model.SectionMessage]
		err := u.unreadWikis.UpdateCount(
			ctx, u.user.GlobalID, u.cfg.WikiID,
			alert.Count, alert.Timestamp,
			message.Count, message.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("reset notification count: %w", err)
		}
	}

	if key, ok := u.globalMemcKey(updatedKey); ok {
		if err := u.cache.TouchCheckKey(ctx, key); err != nil {
			zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to touch global check key")
		}
	}

	return nil
}

// GlobalUpdateTime returns when the global counts were last known to change.
// For users without a global account it returns the zero time.
func (u *NotifUser) GlobalUpdateTime(ctx context.Context) (time.Time, error) {
	key, ok := u.globalMemcKey(updatedKey)
	if !ok {
		return time.Time{}, nil
	}
	return u.cache.CheckKeyTime(ctx, key)
}

// CountsAndTimestamps returns the full snapshot for this user. The global
// half is only present when requested and the user has a global account.
func (u *NotifUser) CountsAndTimestamps(ctx context.Context, includeGlobal bool) (model.CountsAndTimestamps, error) {
	local, err := u.localData(ctx, model.DataSourceReplica)
	if err != nil {
		return model.CountsAndTimestamps{}, err
	}

	result := model.CountsAndTimestamps{Local: local}

	if includeGlobal {
		global, ok, err := u.globalData(ctx)
		if err != nil {
			return model.CountsAndTimestamps{}, err
		}
		if ok {
			result.Global = global
		}
	}

	return result, nil
}

// ClearTalkNotification marks user-talk notifications read when the user
// visits their talk page. It is skipped at the badge cap, where removing one
// bundled talk notification would not visibly change the count.
func (u *NotifUser) ClearTalkNotification(ctx context.Context) error {
	if !u.hasNewTalkFlag(ctx) {
		return nil
	}

	atMax, err := u.NotifCountHasReachedMax(ctx)
	if err != nil {
		return err
	}
	if atMax {
		return nil
	}

	talkTypes := u.attributes.EventsByCategory()[talkCategory]
	notifs, err := u.mapper.FetchUnreadByUser(ctx, model.DataSourceMaster, u.user.ID, u.cfg.MaxUpdateCount, talkTypes)
	if err != nil {
		return fmt.Errorf("clear talk notification: %w", err)
	}

	eventIDs := make([]int64, 0, len(notifs))
	for _, n := range notifs {
		eventIDs = append(eventIDs, n.EventID)
	}

	if _, err := u.MarkRead(ctx, eventIDs); err != nil {
		return err
	}

	u.FlagCacheWithNoTalkNotification(ctx)
	return nil
}

// NotifCountHasReachedMax reports whether the local badge shows the cap.
func (u *NotifUser) NotifCountHasReachedMax(ctx context.Context) (bool, error) {
	count, err := u.LocalNotificationCount(ctx, true, model.DataSourceReplica, model.SectionAll)
	if err != nil {
		return false, err
	}
	return count >= MaxBadgeCount, nil
}

// FlagCacheWithNewTalkNotification records that an unread user-talk
// notification exists.
func (u *NotifUser) FlagCacheWithNewTalkNotification(ctx context.Context) {
	if err := u.cache.Set(ctx, u.memcKey(newTalkKey), "1", talkFlagTTL); err != nil {
		zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to set new-talk flag")
	}
}

// FlagCacheWithNoTalkNotification records that no unread user-talk
// notification remains.
func (u *NotifUser) FlagCacheWithNoTalkNotification(ctx context.Context) {
	if err := u.cache.Set(ctx, u.memcKey(newTalkKey), "0", talkFlagTTL); err != nil {
		zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to clear new-talk flag")
	}
}

// resolveScope converts a ForeignScope into "include global data" according
// to the global switch and the user's preference.
func (u *NotifUser) resolveScope(scope ForeignScope) bool {
	if !u.cfg.CrossWikiEnabled {
		return false
	}
	switch scope {
	case ScopeGlobal:
		return true
	case ScopeLocal:
		return false
	default:
		return u.foreign.IsEnabledByUser()
	}
}

// counts returns the local or global section data, falling back to local
// when global data cannot be cached for this user.
func (u *NotifUser) counts(ctx context.Context, useCache bool, source model.DataSource, global bool) (model.Counts, error) {
	if !useCache {
		local, err := u.computeLocalCountsAndTimestamps(ctx, source)
		if err != nil {
			return nil, err
		}
		u.localCounts = local
		if !global {
			return local, nil
		}
		return u.computeGlobalCountsAndTimestamps(ctx)
	}

	if !global {
		return u.localData(ctx, source)
	}

	globalCounts, ok, err := u.globalData(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return u.localData(ctx, source)
	}
	return globalCounts, nil
}

// localData returns the local snapshot through the per-request memo and the
// stampede-safe cache.
func (u *NotifUser) localData(ctx context.Context, source model.DataSource) (model.Counts, error) {
	if u.localCounts != nil {
		return u.localCounts, nil
	}

	var counts model.Counts
	err := u.cache.GetWithSetCallback(ctx, u.memcKey(countsKey), cacheTTL, &counts,
		func(ctx context.Context) (any, error) {
			return u.computeLocalCountsAndTimestamps(ctx, source)
		})
	if err != nil {
		return nil, err
	}

	u.localCounts = counts
	return counts, nil
}

// globalData returns the global snapshot. ok is false when the user has no
// global account, in which case nothing is computed or cached.
func (u *NotifUser) globalData(ctx context.Context) (model.Counts, bool, error) {
	if u.globalCounts != nil {
		return u.globalCounts, true, nil
	}

	key, ok := u.globalMemcKey(countsKey)
	if !ok {
		return nil, false, nil
	}

	var counts model.Counts
	err := u.cache.GetWithSetCallback(ctx, key, cacheTTL, &counts,
		func(ctx context.Context) (any, error) {
			return u.computeGlobalCountsAndTimestamps(ctx)
		})
	if err != nil {
		return nil, false, err
	}

	u.globalCounts = counts
	return counts, true, nil
}

// computeLocalCountsAndTimestamps queries the store for each section's
// capped count and latest unread timestamp, then derives the aggregate
// section.
func (u *NotifUser) computeLocalCountsAndTimestamps(ctx context.Context, source model.DataSource) (model.Counts, error) {
	result := make(model.Counts, len(model.Sections)+1)
	totals := model.SectionData{}

	for _, section := range model.Sections {
		eventTypes := u.attributes.UserEnabledEventsBySections(u.user, webDelivery, []model.Section{section})

		count, err := u.gateway.CountCapped(ctx, source, u.user.ID, eventTypes, MaxBadgeCount+1)
		if err != nil {
			return nil, fmt.Errorf("compute local counts: %w", err)
		}

		var timestamp time.Time
		notifs, err := u.mapper.FetchUnreadByUser(ctx, source, u.user.ID, 1, eventTypes)
		if err != nil {
			return nil, fmt.Errorf("compute local counts: %w", err)
		}
		if len(notifs) > 0 {
			timestamp = notifs[0].Timestamp
		}

		result[section] = model.SectionData{Count: count, Timestamp: timestamp}
		totals.Count += count
		totals.Timestamp = model.MaxTime(totals.Timestamp, timestamp)
	}

	totals.Count = CapNotificationCount(totals.Count)
	result[model.SectionAll] = totals
	return result, nil
}

// computeGlobalCountsAndTimestamps layers foreign data over the local
// snapshot: per section, count = capped(local+foreign) and timestamp =
// max(local, foreign).
func (u *NotifUser) computeGlobalCountsAndTimestamps(ctx context.Context) (model.Counts, error) {
	local, err := u.localData(ctx, model.DataSourceReplica)
	if err != nil {
		return nil, err
	}

	result := make(model.Counts, len(model.Sections)+1)
	totals := model.SectionData{}

	for _, section := range model.Sections {
		foreignCount, err := u.foreignCount(ctx, section)
		if err != nil {
			return nil, err
		}
		count := CapNotificationCount(local[section].Count + foreignCount)

		foreignTime, err := u.foreignTimestamp(ctx, section)
		if err != nil {
			return nil, err
		}
		timestamp := model.MaxTime(local[section].Timestamp, foreignTime)

		result[section] = model.SectionData{Count: count, Timestamp: timestamp}
		totals.Count += count
		totals.Timestamp = model.MaxTime(totals.Timestamp, timestamp)
	}

	totals.Count = CapNotificationCount(totals.Count)
	result[model.SectionAll] = totals
	return result, nil
}

// distrustsIndex reports whether the trust mode requires asking the foreign
// wikis' APIs instead of the per-section index data.
func (u *NotifUser) distrustsIndex(section model.Section) bool {
	// In section transition mode the per-wiki rows can't be trusted for the
	// alert/message split, but alert+message=all still holds. In bundle
	// transition mode only wiki membership in the index is trusted.
	return (u.cfg.TrustMode == model.TrustModeSection && section != model.SectionAll) ||
		u.cfg.TrustMode == model.TrustModeBundle
}

func (u *NotifUser) foreignCount(ctx context.Context, section model.Section) (int, error) {
	count := 0

	if u.distrustsIndex(section) {
		for _, site := range u.getForeignData(ctx) {
			if section == model.SectionAll {
				for _, data := range site {
					if data.HasCount {
						count += data.Count
					}
				}
			} else if data, ok := site[section]; ok && data.HasCount {
				count += data.Count
			}
		}
	} else {
		c, err := u.foreign.Count(ctx, section)
		if err != nil {
			return 0, fmt.Errorf("foreign count: %w", err)
		}
		count = c
	}

	return CapNotificationCount(count), nil
}

func (u *NotifUser) foreignTimestamp(ctx context.Context, section model.Section) (time.Time, error) {
	if u.distrustsIndex(section) {
		var latest time.Time
		for _, site := range u.getForeignData(ctx) {
			if section == model.SectionAll {
				for _, data := range site {
					latest = model.MaxTime(latest, data.Timestamp)
				}
			} else if data, ok := site[section]; ok {
				latest = model.MaxTime(latest, data.Timestamp)
			}
		}
		return latest, nil
	}

	ts, err := u.foreign.Timestamp(ctx, section)
	if err != nil {
		return time.Time{}, fmt.Errorf("foreign timestamp: %w", err)
	}
	return ts, nil
}

// getForeignData fetches authoritative per-section data from each wiki that
// may have unread notifications. Partial failure degrades to fewer wikis,
// never to an error: a site we cannot reach contributes nothing.
func (u *NotifUser) getForeignData(ctx context.Context) map[string]foreign.SiteResult {
	if u.foreignOnce {
		return u.foreignData
	}
	u.foreignOnce = true

	wikis, err := u.foreign.Wikis(ctx, model.SectionAll)
	if err != nil {
		zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to list unread wikis")
		return nil
	}
	if len(wikis) == 0 {
		return nil
	}

	u.foreignData = u.foreignAPI.QueryNotifications(ctx, u.user.GlobalID, wikis)
	return u.foreignData
}

func (u *NotifUser) hasNewTalkFlag(ctx context.Context) bool {
	var flag string
	ok, err := u.cache.Get(ctx, u.memcKey(newTalkKey), &flag)
	if err != nil {
		zlog.Logger.Warn().Err(err).Int64("user", u.user.ID).Msg("failed to read new-talk flag")
		return false
	}
	return ok && flag == "1"
}

// unreadTalkRemains checks the master for any remaining unread user-talk
// notification, bypassing caches and replicas to avoid racing the flag.
func (u *NotifUser) unreadTalkRemains(ctx context.Context) (bool, error) {
	talkTypes := u.attributes.EventsByCategory()[talkCategory]
	notifs, err := u.mapper.FetchUnreadByUser(ctx, model.DataSourceMaster, u.user.ID, 1, talkTypes)
	if err != nil {
		return false, err
	}
	return len(notifs) > 0, nil
}

func (u *NotifUser) memcKey(base string) string {
	return fmt.Sprintf("%s:%d:%s", base, u.user.ID, u.cfg.CacheVersion)
}

// globalMemcKey builds a fleet-wide cache key. ok is false when the user has
// no global account.
func (u *NotifUser) globalMemcKey(base string) (string, bool) {
	if u.user.GlobalID == 0 {
		return "", false
	}
	return fmt.Sprintf("global:%s:%d:%s", base, u.user.GlobalID, u.cfg.CacheVersion), true
}

// filterEventIDs drops non-positive ids, tolerating defensive callers that
// pass placeholder values.
func filterEventIDs(ids []int64) []int64 {
	filtered := ids[:0:0]
	for _, id := range ids {
		if id > 0 {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

// expandSections resolves the aggregate pseudo-section to the full list.
func expandSections(sections []model.Section) []model.Section {
	if len(sections) == 0 {
		return model.Sections
	}
	for _, s := range sections {
		if s == model.SectionAll {
			return model.Sections
		}
	}
	return sections
}
