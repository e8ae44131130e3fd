// Package opportunity вычисляет возможности регистрации персоны. Вычисление
// чистое: результат зависит только от переданного снимка данных
package opportunity

import (
	"sort"
	"strings"
	"time"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/tool"
)

// Input снимок данных для вычисления возможностей
type Input struct {
	Now           time.Time
	Configuration model.Configuration
	// Запрошенные области (уже загруженные)
	Areas  []model.Area
	Person model.Person
	// Киоск, с которого идёт регистрация (может отсутствовать)
	Kiosk *model.Device
	// Открытые посещения персоны
	OpenAttendance []model.Attendance
	// Текущая заполненность помещений
	LocationCounts map[uint]int
	// Включено переопределение ограничений
	Override bool
}

// Resolve возвращает упорядоченный список возможностей персоны
func Resolve(in Input) []model.Opportunity {
	res := make([]model.Opportunity, 0)

	attended := make(map[uint]bool, len(in.OpenAttendance))
	for _, a := range in.OpenAttendance {
		attended[a.ScheduleID] = true
	}

	for _, area := range sortedAreas(in.Areas) {
		if !in.Configuration.HasArea(area.ID) {
			continue
		}
		for _, group := range area.Groups {
			confidence, ok := matchGroup(group, in)
			if !ok {
				continue
			}
			for _, gl := range group.Locations {
				loc := gl.Location
				if !loc.IsActive {
					continue
				}
				count := in.LocationCounts[loc.ID]
				threshold := effectiveThreshold(loc, in.Override)
				if threshold > 0 && count >= threshold {
					continue
				}
				for _, schedule := range gl.Schedules {
					window, ok := schedule.ActiveWindow(in.Now)
					if !ok {
						continue
					}
					if in.Configuration.PreventDuplicateCheckIn && attended[schedule.ID] {
						continue
					}
					res = append(res, model.Opportunity{
						AreaID:       area.ID,
						AreaName:     area.Name,
						GroupID:      group.ID,
						GroupName:    group.Name,
						LocationID:   loc.ID,
						LocationName: loc.Name,
						CampusID:     loc.CampusID,
						ScheduleID:   schedule.ID,
						ScheduleName: schedule.Name,
						Window:       window,
						Confidence:   confidence,
						IsPreferred:  in.Kiosk != nil && in.Kiosk.CampusID != 0 && loc.CampusID == in.Kiosk.CampusID,
						Count:        count,
						Threshold:    threshold,
					})
				}
			}
		}
	}

	sort.SliceStable(res, func(i, j int) bool { return less(res[i], res[j]) })
	return res
}

// LocationIDs идентификаторы всех помещений областей (для запроса заполненности)
func LocationIDs(areas []model.Area) []uint {
	seen := make(map[uint]bool)
	res := make([]uint, 0)
	for _, a := range areas {
		for _, g := range a.Groups {
			for _, gl := range g.Locations {
				if !seen[gl.Location.ID] {
					seen[gl.Location.ID] = true
					res = append(res, gl.Location.ID)
				}
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// AtLocation возможности в помещении locationID с сохранением порядка
func AtLocation(opportunities []model.Opportunity, locationID uint) []model.Opportunity {
	res := make([]model.Opportunity, 0)
	for _, o := range opportunities {
		if o.LocationID == locationID {
			res = append(res, o)
		}
	}
	return res
}

// Действующий порог заполненности помещения. Мягкий порог обходится переопределением
func effectiveThreshold(loc model.Location, override bool) int {
	threshold := loc.HardThreshold
	if !override && loc.SoftThreshold > 0 && (threshold == 0 || loc.SoftThreshold < threshold) {
		threshold = loc.SoftThreshold
	}
	return threshold
}

// Проверка ограничений группы. Возвращает количество явно совпавших критериев
func matchGroup(g model.Group, in Input) (int, bool) {
	p := in.Person
	matched := 0
	failed := false

	if g.MinAge != nil || g.MaxAge != nil {
		if p.BirthDate == nil {
			failed = failed || in.Configuration.AgeMatchRequired
		} else {
			age := tool.AgeAt(*p.BirthDate, in.Now)
			if inRange(age, g.MinAge, g.MaxAge) {
				matched++
			} else {
				failed = true
			}
		}
	}

	if g.MinGrade != nil || g.MaxGrade != nil {
		if p.Grade == nil {
			failed = failed || in.Configuration.GradeMatchRequired
		} else if inRange(*p.Grade, g.MinGrade, g.MaxGrade) {
			matched++
		} else {
			failed = true
		}
	}

	if g.Gender != model.GenderUnknown && p.Gender != model.GenderUnknown {
		if g.Gender == p.Gender {
			matched++
		} else {
			failed = true
		}
	}

	if failed && !in.Override {
		return 0, false
	}
	return matched, true
}

func inRange(v int, min, max *int) bool {
	if min != nil && v < *min {
		return false
	}
	if max != nil && v > *max {
		return false
	}
	return true
}

func sortedAreas(areas []model.Area) []model.Area {
	res := make([]model.Area, len(areas))
	copy(res, areas)
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Order != res[j].Order {
			return res[i].Order < res[j].Order
		}
		return res[i].ID < res[j].ID
	})
	return res
}

// Порядок: площадка киоска, уверенность, имя группы, имя помещения, начало окна, идентификаторы
func less(a, b model.Opportunity) bool {
	if a.IsPreferred != b.IsPreferred {
		return a.IsPreferred
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if c := strings.Compare(strings.ToLower(a.GroupName), strings.ToLower(b.GroupName)); c != 0 {
		return c < 0
	}
	if c := strings.Compare(strings.ToLower(a.LocationName), strings.ToLower(b.LocationName)); c != 0 {
		return c < 0
	}
	if !a.Window.Start.Equal(b.Window.Start) {
		return a.Window.Start.Before(b.Window.Start)
	}
	if a.GroupID != b.GroupID {
		return a.GroupID < b.GroupID
	}
	if a.LocationID != b.LocationID {
		return a.LocationID < b.LocationID
	}
	return a.ScheduleID < b.ScheduleID
}
