package model

import (
	"sort"
	"time"

	"github.com/kirsrus/checkin/server/pkg/tool"
)

// Campus описывает площадку (географическую группу устройств и помещений)
type Campus struct {
	ID   uint   `validate:"required"`
	Name string `conform:"trim" validate:"required"`
}

// Area область регистрации (тип групп). Корень иерархии
// область → группа → помещение → расписание
type Area struct {
	ID     uint   `validate:"required"`
	Name   string `conform:"trim" validate:"required"`
	Order  int
	Groups []Group
}

// Group группа, в которую регистрируются посетители
type Group struct {
	ID     uint
	AreaID uint
	Name   string `conform:"trim"`
	Order  int

	// Возрастные ограничения в годах (nil - без ограничения)
	MinAge *int
	MaxAge *int

	// Ограничения по классу (nil - без ограничения)
	MinGrade *int
	MaxGrade *int

	// Ограничение по полу (пусто - без ограничения)
	Gender Gender

	Locations []GroupLocation
}

// HasCriteria в группе задано хотя бы одно ограничение
func (m Group) HasCriteria() bool {
	return m.MinAge != nil || m.MaxAge != nil || m.MinGrade != nil || m.MaxGrade != nil || m.Gender != ""
}

// GroupLocation помещение группы и расписания, по которым в нём идут занятия
type GroupLocation struct {
	Location  Location
	Schedules []Schedule
}

// Location физическое помещение
type Location struct {
	ID       uint
	Name     string `conform:"trim"`
	CampusID uint

	// Мягкий порог заполненности (обходится при переопределении). 0 - без ограничения
	SoftThreshold int
	// Жёсткий порог заполненности. 0 - без ограничения
	HardThreshold int

	// Адрес принтера этикеток помещения
	PrinterAddress string `validate:"printeraddr"`

	// Маяк, установленный в помещении (major/minor iBeacon)
	BeaconMajor *int
	BeaconMinor *int

	IsActive bool
}

// HasBeacon в помещении установлен маяк с указанными major/minor
func (m Location) HasBeacon(major, minor int) bool {
	return m.BeaconMajor != nil && m.BeaconMinor != nil && *m.BeaconMajor == major && *m.BeaconMinor == minor
}

// Schedule недельное расписание занятия
type Schedule struct {
	ID       uint
	Name     string `conform:"trim"`
	Weekdays []time.Weekday

	// Начало занятия в минутах от полуночи
	StartMinute int
	// Длительность занятия в минутах
	DurationMinutes int
	// За сколько минут до начала открывается регистрация
	CheckInStartOffset int
	// Через сколько минут после начала закрывается регистрация. 0 - до конца занятия
	CheckInEndOffset int

	IsActive bool
}

// Window интервал времени [Start, End)
type Window struct {
	ScheduleID uint
	Start      time.Time
	End        time.Time
}

// Contains момент t попадает в интервал
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// OccursOn занятие проходит в день недели day
func (m Schedule) OccursOn(day time.Weekday) bool {
	for _, d := range m.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// CheckInWindow окно регистрации занятия, начинающегося в день day. Второй результат
// false, если в этот день занятия нет
func (m Schedule) CheckInWindow(day time.Time) (Window, bool) {
	if !m.OccursOn(day.Weekday()) {
		return Window{}, false
	}
	start := tool.AtMinute(day, m.StartMinute)
	end := start.Add(time.Duration(m.CheckInEndOffset) * time.Minute)
	if m.CheckInEndOffset <= 0 {
		end = start.Add(time.Duration(m.DurationMinutes) * time.Minute)
	}
	w := Window{
		ScheduleID: m.ID,
		Start:      start.Add(-time.Duration(m.CheckInStartOffset) * time.Minute),
		End:        end,
	}
	if !w.End.After(w.Start) {
		return Window{}, false
	}
	return w, true
}

// ActiveWindow окно регистрации, в которое попадает момент at. Окно может
// начинаться накануне (большое смещение открытия), поэтому проверяются соседние дни
func (m Schedule) ActiveWindow(at time.Time) (Window, bool) {
	if !m.IsActive {
		return Window{}, false
	}
	day := tool.RoundToDate(at)
	for _, offset := range []int{0, 1, -1} {
		w, ok := m.CheckInWindow(day.AddDate(0, 0, offset))
		if ok && w.Contains(at) {
			return w, true
		}
	}
	return Window{}, false
}

// CheckInWindows окна регистрации, пересекающиеся с интервалом [from, to), по возрастанию начала
func (m Schedule) CheckInWindows(from, to time.Time) []Window {
	res := make([]Window, 0)
	if !m.IsActive || !to.After(from) {
		return res
	}
	for day := tool.RoundToDate(from).AddDate(0, 0, -1); !day.After(to); day = day.AddDate(0, 0, 1) {
		w, ok := m.CheckInWindow(day)
		if !ok {
			continue
		}
		if w.End.After(from) && w.Start.Before(to) {
			res = append(res, w)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Start.Before(res[j].Start) })
	return res
}

// MergeWindows объединяет пересекающиеся и смежные окна. Результат упорядочен по началу
func MergeWindows(windows []Window) []Window {
	if len(windows) == 0 {
		return []Window{}
	}
	sorted := make([]Window, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	res := []Window{{Start: sorted[0].Start, End: sorted[0].End}}
	for _, w := range sorted[1:] {
		last := &res[len(res)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		res = append(res, Window{Start: w.Start, End: w.End})
	}
	return res
}
