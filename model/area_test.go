package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-10-18 - воскресенье
var sunday = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

func sundayService() Schedule {
	return Schedule{
		ID:                 1,
		Name:               "Воскресное служение",
		Weekdays:           []time.Weekday{time.Sunday},
		StartMinute:        10 * 60,
		DurationMinutes:    90,
		CheckInStartOffset: 30,
		CheckInEndOffset:   60,
		IsActive:           true,
	}
}

func TestScheduleActiveWindow(t *testing.T) {
	s := sundayService()
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "до открытия", at: sunday.Add(9*time.Hour + 29*time.Minute), want: false},
		{name: "открытие", at: sunday.Add(9*time.Hour + 30*time.Minute), want: true},
		{name: "середина", at: sunday.Add(10*time.Hour + 15*time.Minute), want: true},
		{name: "закрытие (граница не входит)", at: sunday.Add(11 * time.Hour), want: false},
		{name: "понедельник", at: sunday.AddDate(0, 0, 1).Add(10 * time.Hour), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := s.ActiveWindow(tt.at)
			assert.Equal(t, tt.want, ok)
		})
	}

	s.IsActive = false
	_, ok := s.ActiveWindow(sunday.Add(10 * time.Hour))
	assert.False(t, ok, "неактивное расписание")
}

func TestScheduleWindowToEndOfOccurrence(t *testing.T) {
	s := sundayService()
	s.CheckInEndOffset = 0
	w, ok := s.CheckInWindow(sunday)
	require.True(t, ok)
	assert.Equal(t, sunday.Add(11*time.Hour+30*time.Minute), w.End)
}

func TestScheduleCheckInWindows(t *testing.T) {
	s := sundayService()
	s.Weekdays = []time.Weekday{time.Saturday, time.Sunday}
	windows := s.CheckInWindows(sunday.AddDate(0, 0, -1), sunday.AddDate(0, 0, 7))
	require.Len(t, windows, 3)
	assert.Equal(t, time.Saturday, windows[0].Start.Weekday())
	assert.Equal(t, time.Sunday, windows[1].Start.Weekday())
	assert.Equal(t, time.Saturday, windows[2].Start.Weekday())
}

func TestMergeWindows(t *testing.T) {
	at := func(h int) time.Time { return sunday.Add(time.Duration(h) * time.Hour) }
	got := MergeWindows([]Window{
		{Start: at(12), End: at(13)},
		{Start: at(9), End: at(11)},
		{Start: at(10), End: at(12)},
		{Start: at(15), End: at(16)},
	})
	require.Len(t, got, 2)
	assert.Equal(t, at(9), got[0].Start)
	assert.Equal(t, at(13), got[0].End)
	assert.Equal(t, at(15), got[1].Start)
	assert.Empty(t, MergeWindows(nil))
}

func TestProximityEventStrongest(t *testing.T) {
	tests := []struct {
		name    string
		beacons []Beacon
		want    Beacon
		ok      bool
	}{
		{name: "пусто", ok: false},
		{
			name:    "сильнейший сигнал",
			beacons: []Beacon{{Major: 1, Minor: 1, SignalStrength: -80}, {Major: 1, Minor: 2, SignalStrength: -60}},
			want:    Beacon{Major: 1, Minor: 2, SignalStrength: -60},
			ok:      true,
		},
		{
			name:    "при равенстве ближайший",
			beacons: []Beacon{{Minor: 1, SignalStrength: -60, EstimatedDistance: 3}, {Minor: 2, SignalStrength: -60, EstimatedDistance: 1}},
			want:    Beacon{Minor: 2, SignalStrength: -60, EstimatedDistance: 1},
			ok:      true,
		},
		{
			name:    "при полном равенстве первый",
			beacons: []Beacon{{Minor: 1, SignalStrength: -60}, {Minor: 2, SignalStrength: -60}},
			want:    Beacon{Minor: 1, SignalStrength: -60},
			ok:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ProximityEvent{Beacons: tt.beacons}.Strongest()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProximityEventDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Beacon
		minor   int
	}{
		{
			name:    "полные имена полей",
			payload: `{"beacons":[{"major":1,"minor":1,"signalStrength":-80,"estimatedDistance":9.5},{"major":1,"minor":2,"signalStrength":-40,"estimatedDistance":0.5}]}`,
			want:    []Beacon{{Major: 1, Minor: 1, SignalStrength: -80, EstimatedDistance: 9.5}, {Major: 1, Minor: 2, SignalStrength: -40, EstimatedDistance: 0.5}},
			minor:   2,
		},
		{
			name:    "короткие имена полей",
			payload: `{"beacons":[{"major":1,"minor":1,"rssi":-40,"distance":0.5},{"major":1,"minor":2,"rssi":-80,"distance":9.5}]}`,
			want:    []Beacon{{Major: 1, Minor: 1, SignalStrength: -40, EstimatedDistance: 0.5}, {Major: 1, Minor: 2, SignalStrength: -80, EstimatedDistance: 9.5}},
			minor:   1,
		},
		{
			name:    "полное имя важнее короткого",
			payload: `{"beacons":[{"major":1,"minor":3,"signalStrength":-50,"rssi":-90,"estimatedDistance":2,"distance":7}]}`,
			want:    []Beacon{{Major: 1, Minor: 3, SignalStrength: -50, EstimatedDistance: 2}},
			minor:   3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var event ProximityEvent
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &event))
			assert.Equal(t, tt.want, event.Beacons)
			best, ok := event.Strongest()
			require.True(t, ok)
			assert.Equal(t, tt.minor, best.Minor)
		})
	}
}
