package checkin

import (
	"time"

	"github.com/juju/errors"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/tool"
)

// Горизонт поиска ближайших окон регистрации
const statusHorizon = 7 * 24 * time.Hour

// KioskStatus состояние киоска для набора областей: открыт, откроется сегодня или закрыт,
// с ближайшими моментами открытия и закрытия
func (m *Director) KioskStatus(kioskID uint, areaIDs []uint) (*model.KioskStatus, error) {
	kiosk, err := m.Kiosk(kioskID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	areas, err := m.Areas(areaIDs)
	if err != nil {
		return nil, errors.Trace(err)
	}

	now := m.Now()
	from, to := now.Add(-24*time.Hour), now.Add(statusHorizon)

	res := model.KioskStatus{KioskID: kiosk.ID, At: now, State: model.KioskClosed, Areas: make([]model.AreaStatus, 0, len(areas))}
	all := make([]model.Window, 0)
	for _, area := range areas {
		windows := model.MergeWindows(areaWindows(area, kiosk, from, to))
		all = append(all, windows...)
		res.Areas = append(res.Areas, model.AreaStatus{
			AreaID:   area.ID,
			AreaName: area.Name,
			IsOpen:   containing(windows, now) >= 0,
		})
	}

	merged := model.MergeWindows(all)
	if i := containing(merged, now); i >= 0 {
		res.State = model.KioskOpen
		res.IsOpen = true
		closeAt := merged[i].End
		res.NextClose = &closeAt
		if i+1 < len(merged) {
			openAt := merged[i+1].Start
			res.NextOpen = &openAt
		}
		return &res, nil
	}

	for _, w := range merged {
		if !w.Start.After(now) {
			continue
		}
		openAt, closeAt := w.Start, w.End
		res.NextOpen, res.NextClose = &openAt, &closeAt
		if tool.RoundToDate(openAt).Equal(tool.RoundToDate(now)) {
			res.State = model.KioskFuture
		}
		break
	}
	return &res, nil
}

// Окна регистрации всех расписаний области, доступных киоску
func areaWindows(area model.Area, kiosk *model.Device, from, to time.Time) []model.Window {
	res := make([]model.Window, 0)
	for _, g := range area.Groups {
		for _, gl := range g.Locations {
			if !gl.Location.IsActive {
				continue
			}
			if kiosk.CampusID != 0 && gl.Location.CampusID != 0 && gl.Location.CampusID != kiosk.CampusID {
				continue
			}
			for _, s := range gl.Schedules {
				res = append(res, s.CheckInWindows(from, to)...)
			}
		}
	}
	return res
}

// Индекс окна, содержащего момент at, или -1
func containing(windows []model.Window, at time.Time) int {
	for i, w := range windows {
		if w.Contains(at) {
			return i
		}
	}
	return -1
}
