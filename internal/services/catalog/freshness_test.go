// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airtimetoday/airtime/internal/models"
)

func release(name string, published time.Time) models.ReleaseItem {
	key := models.ReleaseKey{Source: "subsplease", Name: name, Episode: "1"}
	return models.ReleaseItem{
		Kind:        models.KindRelease,
		Key:         key,
		ID:          models.EncodeID(key),
		Name:        name,
		Episode:     "1",
		Qualities:   map[string]models.QualitySource{"1080p": {Link: "https://example.org/" + name}},
		PublishedAt: published,
	}
}

func names(items []models.ReleaseItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Kind.IsSentinel() {
			out = append(out, "<"+it.Kind.String()+">")
			continue
		}
		out = append(out, it.Name)
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyRolling, p)

	p, err = ParsePolicy(" Calendar ")
	require.NoError(t, err)
	assert.Equal(t, PolicyCalendar, p)

	_, err = ParsePolicy("weekly")
	require.Error(t, err)
}

func TestRollingWindow(t *testing.T) {
	w := Window{Policy: PolicyRolling, Location: time.UTC}
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		published time.Time
		today     bool
		yesterday bool
	}{
		{name: "just now", published: now, today: true},
		{name: "one hour ago", published: now.Add(-time.Hour), today: true},
		{name: "exactly 24h", published: now.Add(-24 * time.Hour), today: true},
		{name: "25h ago", published: now.Add(-25 * time.Hour), yesterday: true},
		{name: "exactly 48h", published: now.Add(-48 * time.Hour), yesterday: true},
		{name: "three days ago", published: now.Add(-72 * time.Hour)},
		{name: "future", published: now.Add(time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.today, w.IsToday(now, tt.published))
			assert.Equal(t, tt.yesterday, w.IsYesterday(now, tt.published))
		})
	}
}

func TestCalendarWindow(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	w := Window{Policy: PolicyCalendar, Location: tokyo}

	// 2025-03-14 01:00 in Tokyo
	now := time.Date(2025, 3, 13, 16, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		published time.Time
		today     bool
		yesterday bool
	}{
		{name: "midnight tokyo", published: time.Date(2025, 3, 13, 15, 0, 0, 0, time.UTC), today: true},
		{name: "late yesterday tokyo", published: time.Date(2025, 3, 13, 14, 59, 0, 0, time.UTC), yesterday: true},
		{name: "start of yesterday tokyo", published: time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC), yesterday: true},
		{name: "two days ago tokyo", published: time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.today, w.IsToday(now, tt.published))
			assert.Equal(t, tt.yesterday, w.IsYesterday(now, tt.published))
		})
	}
}

func TestAssembleOrdersTodayNewestFirst(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	w := Window{Policy: PolicyRolling, Location: time.UTC, IncludeYesterday: true, MaxItems: 40}

	items := []models.ReleaseItem{
		release("B", now.Add(-3*time.Hour)),
		release("Old", now.Add(-30*time.Hour)),
		release("A", now.Add(-1*time.Hour)),
		release("Ancient", now.Add(-100*time.Hour)),
		release("Older", now.Add(-40*time.Hour)),
	}

	out := w.Assemble(now, items)
	assert.Equal(t, []string{"A", "B", "<section-header>", "Old", "Older"}, names(out))

	for _, it := range out {
		if it.Kind == models.KindRelease && it.Name != "Old" && it.Name != "Older" {
			assert.True(t, w.IsToday(now, it.PublishedAt))
		}
	}
}

func TestAssembleWithoutYesterday(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	w := Window{Policy: PolicyRolling, Location: time.UTC, IncludeYesterday: false, MaxItems: 40}

	out := w.Assemble(now, []models.ReleaseItem{
		release("A", now.Add(-time.Hour)),
		release("Old", now.Add(-30*time.Hour)),
	})

	assert.Equal(t, []string{"A"}, names(out))
}

func TestAssembleEmptyYieldsPlaceholder(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	out := DefaultWindow().Assemble(now, nil)
	require.Len(t, out, 1)
	assert.Equal(t, models.KindWaiting, out[0].Kind)

	out = DefaultWindow().Assemble(now, []models.ReleaseItem{release("Ancient", now.Add(-100*time.Hour))})
	assert.Equal(t, []string{"<waiting>"}, names(out))
}

func TestAssembleWaitingThenYesterday(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	w := Window{Policy: PolicyRolling, Location: time.UTC, IncludeYesterday: true, MaxItems: 40}

	var items []models.ReleaseItem
	for i := range 50 {
		items = append(items, release(fmt.Sprintf("Y%02d", i), now.Add(-25*time.Hour-time.Duration(i)*time.Minute)))
	}

	out := w.Assemble(now, items)
	require.Len(t, out, 40)
	assert.Equal(t, models.KindWaiting, out[0].Kind)
	assert.Equal(t, models.KindSectionHeader, out[1].Kind)
	assert.Equal(t, "Y00", out[2].Name)
	assert.Equal(t, "Y37", out[39].Name)
}

func TestAssembleCapsYesterdayButNeverToday(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	w := Window{Policy: PolicyRolling, Location: time.UTC, IncludeYesterday: true, MaxItems: 5}

	items := []models.ReleaseItem{
		release("Y1", now.Add(-26*time.Hour)),
		release("Y2", now.Add(-27*time.Hour)),
		release("Y3", now.Add(-28*time.Hour)),
		release("T1", now.Add(-1*time.Hour)),
		release("T2", now.Add(-2*time.Hour)),
	}

	assert.Equal(t, []string{"T1", "T2", "<section-header>", "Y1", "Y2"}, names(w.Assemble(now, items)))

	for i := range 6 {
		items = append(items, release(fmt.Sprintf("T%d", i+3), now.Add(-time.Duration(i+3)*time.Hour)))
	}
	out := w.Assemble(now, items)
	assert.Len(t, out, 8)
	assert.NotContains(t, names(out), "<section-header>")

	uncapped := Window{Policy: PolicyRolling, Location: time.UTC, IncludeYesterday: true}
	assert.Len(t, uncapped.Assemble(now, items), 12)
}
