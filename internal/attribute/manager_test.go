package attribute

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/house-cat/echo-notifications/internal/config"
	"github.com/house-cat/echo-notifications/internal/model"
)

func testUser() model.User {
	return model.User{
		ID:     1,
		Groups: []string{"echo_group"},
	}
}

func TestCategoryEligibility(t *testing.T) {
	notif := map[string]config.EventDefinition{
		"event_one": {Category: "category_one"},
	}

	m := NewManager(notif, map[string]config.CategoryDefinition{
		"category_one": {Priority: 10},
	})
	assert.True(t, m.CategoryEligibility(testUser(), "category_one"))

	m = NewManager(notif, map[string]config.CategoryDefinition{
		"category_one": {Priority: 10, UserGroups: []string{"sysop"}},
	})
	assert.False(t, m.CategoryEligibility(testUser(), "category_one"))
}

func TestNotificationCategory(t *testing.T) {
	notif := map[string]config.EventDefinition{
		"event_one": {Category: "category_one"},
	}
	categories := map[string]config.CategoryDefinition{
		"category_one": {Priority: 10},
	}

	m := NewManager(notif, categories)
	assert.Equal(t, "category_one", m.NotificationCategory("event_one"))

	m = NewManager(notif, map[string]config.CategoryDefinition{})
	assert.Equal(t, "other", m.NotificationCategory("event_one"))

	m = NewManager(map[string]config.EventDefinition{
		"event_one": {Category: "category_two"},
	}, categories)
	assert.Equal(t, "other", m.NotificationCategory("event_one"))
}

func TestCategoryPriority(t *testing.T) {
	m := NewManager(
		map[string]config.EventDefinition{
			"event_one": {Category: "category_two"},
		},
		map[string]config.CategoryDefinition{
			"category_one":   {Priority: 6},
			"category_two":   {Priority: 100},
			"category_three": {Priority: -10},
			"category_four":  {},
		},
	)

	assert.Equal(t, 6, m.CategoryPriority("category_one"))
	assert.Equal(t, 10, m.CategoryPriority("category_two"))
	assert.Equal(t, 10, m.CategoryPriority("category_three"))
	assert.Equal(t, 10, m.CategoryPriority("category_four"))
	assert.Equal(t, 10, m.CategoryPriority("undeclared"))
}

func TestNotificationPriority(t *testing.T) {
	m := NewManager(
		map[string]config.EventDefinition{
			"event_one":   {Category: "category_one"},
			"event_two":   {Category: "category_two"},
			"event_three": {Category: "category_three"},
			"event_four":  {Category: "category_four"},
		},
		map[string]config.CategoryDefinition{
			"category_one":   {Priority: 6},
			"category_two":   {Priority: 100},
			"category_three": {Priority: -10},
			"category_four":  {},
		},
	)

	assert.Equal(t, 6, m.NotificationPriority("event_one"))
	assert.Equal(t, 10, m.NotificationPriority("event_two"))
	assert.Equal(t, 10, m.NotificationPriority("event_three"))
	assert.Equal(t, 10, m.NotificationPriority("event_four"))
}

func TestUserEnabledEvents(t *testing.T) {
	m := NewManager(
		map[string]config.EventDefinition{
			"event_one":   {Category: "category_one"},
			"event_two":   {Category: "category_two"},
			"event_three": {Category: "category_three"},
		},
		map[string]config.CategoryDefinition{
			"category_one":   {Priority: 10, UserGroups: []string{"sysop"}},
			"category_two":   {Priority: 10, UserGroups: []string{"echo_group"}},
			"category_three": {Priority: 10},
		},
	)

	assert.Equal(t,
		[]string{"event_three", "event_two"},
		m.UserEnabledEvents(testUser(), "web"),
	)
}

func TestUserEnabledEventsDisabledByPreference(t *testing.T) {
	m := NewManager(
		map[string]config.EventDefinition{
			"event_one": {Category: "category_one"},
			"event_two": {Category: "category_two"},
		},
		map[string]config.CategoryDefinition{
			"category_one": {},
			"category_two": {},
		},
	)

	user := testUser()
	user.Options = map[string]bool{
		"echo-subscriptions-web-category_one": false,
	}

	assert.Equal(t, []string{"event_two"}, m.UserEnabledEvents(user, "web"))
	// The email preference is independent of the web one.
	assert.Equal(t,
		[]string{"event_one", "event_two"},
		m.UserEnabledEvents(user, "email"),
	)
}

func TestUserEnabledEventsBySections(t *testing.T) {
	m := NewManager(
		map[string]config.EventDefinition{
			"event_alert":   {Category: "category_one"},
			"event_message": {Category: "category_one", Section: "message"},
		},
		map[string]config.CategoryDefinition{
			"category_one": {},
		},
	)
	user := testUser()

	assert.Equal(t,
		[]string{"event_message"},
		m.UserEnabledEventsBySections(user, "web", []model.Section{model.SectionMessage}),
	)
	assert.Equal(t,
		[]string{"event_alert"},
		m.UserEnabledEventsBySections(user, "web", []model.Section{model.SectionAlert}),
	)
	assert.Equal(t,
		[]string{"event_alert", "event_message"},
		m.UserEnabledEventsBySections(user, "web", []model.Section{model.SectionAll}),
	)

	// Section filtering only ever narrows the enabled set.
	all := m.UserEnabledEvents(user, "web")
	for _, e := range m.UserEnabledEventsBySections(user, "web", []model.Section{model.SectionMessage}) {
		assert.Contains(t, all, e)
	}
}

func TestEventsByCategory(t *testing.T) {
	m := NewManager(
		map[string]config.EventDefinition{
			"edit-user-talk": {Category: "edit-user-talk", Section: "message"},
			"mention":        {Category: "mention"},
			"orphan":         {Category: "undeclared"},
		},
		map[string]config.CategoryDefinition{
			"edit-user-talk": {Priority: 1},
			"mention":        {},
		},
	)

	index := m.EventsByCategory()
	assert.Equal(t, []string{"edit-user-talk"}, index["edit-user-talk"])
	assert.Equal(t, []string{"mention"}, index["mention"])
	assert.Equal(t, []string{"orphan"}, index["other"])
}
