// Package memory хранилище в памяти. Реализует store.DbStore и store.RefStore,
// используется в тестах и при демонстрационном запуске без БД
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/store"
)

var (
	_ store.DbStore  = (*Memory)(nil)
	_ store.RefStore = (*Memory)(nil)
)

// Memory хранилище в памяти. Инициализируется через New
type Memory struct {
	mu sync.RWMutex

	configurations map[string]model.Configuration
	devices        map[uint]model.Device
	areas          map[uint]model.Area
	families       map[uint]model.Family
	people         map[uint]model.Person
	personal       map[string]uint
	attendance     map[uint]model.Attendance
	nextID         uint

	now func() time.Time
}

// New конструктор Memory
func New() *Memory {
	return &Memory{
		configurations: make(map[string]model.Configuration),
		devices:        make(map[uint]model.Device),
		areas:          make(map[uint]model.Area),
		families:       make(map[uint]model.Family),
		people:         make(map[uint]model.Person),
		personal:       make(map[string]uint),
		attendance:     make(map[uint]model.Attendance),
		now:            time.Now,
	}
}

// SetNow подменяет источник времени для создаваемых записей
func (m *Memory) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// region Наполнение

// AddConfiguration добавляет шаблон регистрации
func (m *Memory) AddConfiguration(c model.Configuration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ApplyDefaults()
	m.configurations[c.ID] = c
}

// AddDevice добавляет устройство
func (m *Memory) AddDevice(d model.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
}

// AddArea добавляет область
func (m *Memory) AddArea(a model.Area) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas[a.ID] = a
}

// AddFamily добавляет семью вместе с членами
func (m *Memory) AddFamily(f model.Family) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range f.Members {
		f.Members[i].FamilyID = f.ID
		m.people[f.Members[i].ID] = f.Members[i]
	}
	m.families[f.ID] = f
}

// AddPersonalDevice привязывает персональное устройство к персоне
func (m *Memory) AddPersonalDevice(d model.PersonalDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personal[d.DeviceKey] = d.PersonID
}

// AddAttendance добавляет запись посещения как есть
func (m *Memory) AddAttendance(a model.Attendance) model.Attendance {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now()
	}
	m.attendance[a.ID] = a
	return a
}

// AllAttendance все записи посещений по возрастанию ID
func (m *Memory) AllAttendance() []model.Attendance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]model.Attendance, 0, len(m.attendance))
	for _, a := range m.attendance {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// endregion
// region RefStore

// Configuration шаблон регистрации
func (m *Memory) Configuration(id string) (*model.Configuration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configurations[id]
	if !ok {
		return nil, false
	}
	return &c, true
}

// Configurations все шаблоны по возрастанию ID
func (m *Memory) Configurations() []model.Configuration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]model.Configuration, 0, len(m.configurations))
	for _, c := range m.configurations {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Device устройство
func (m *Memory) Device(id uint) (*model.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, false
	}
	return &d, true
}

// DeviceByAddress принтер или киоск по адресу принтера
func (m *Memory) DeviceByAddress(address string) (*model.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.devices {
		if d.Kind == model.DevicePrinter && d.PrinterAddress == address {
			return &d, true
		}
	}
	return nil, false
}

// Area область
func (m *Memory) Area(id uint) (*model.Area, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.areas[id]
	if !ok {
		return nil, false
	}
	return &a, true
}

// LocationByBeacon помещение по маяку
func (m *Memory) LocationByBeacon(major, minor int) (*model.Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint, 0, len(m.areas))
	for id := range m.areas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		for _, g := range m.areas[id].Groups {
			for _, gl := range g.Locations {
				if gl.Location.HasBeacon(major, minor) {
					l := gl.Location
					return &l, true
				}
			}
		}
	}
	return nil, false
}

// endregion
// region DbStore

// SearchFamilies кандидаты для поиска
func (m *Memory) SearchFamilies(_ context.Context, query store.FamilyQuery) ([]model.Family, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	term := strings.ToLower(strings.TrimSpace(query.Term))
	res := make([]model.Family, 0)
	for _, f := range m.families {
		if familyMatches(f, query.Type, term) {
			res = append(res, f)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	if query.Limit > 0 && len(res) > query.Limit {
		res = res[:query.Limit]
	}
	return res, nil
}

func familyMatches(f model.Family, tpe model.SearchType, term string) bool {
	if tpe == model.SearchByFamilyID {
		return strconv.Itoa(int(f.ID)) == term
	}
	byName := tpe == model.SearchByName || tpe == model.SearchByNameAndPhone
	byPhone := tpe == model.SearchByPhone || tpe == model.SearchByNameAndPhone
	if byName && strings.Contains(strings.ToLower(f.Name), term) {
		return true
	}
	for _, p := range f.Members {
		if byName && (strings.Contains(strings.ToLower(p.FullName()), term) || strings.Contains(strings.ToLower(p.NickName), term)) {
			return true
		}
		if byPhone && term != "" && p.PhoneNumber != "" && strings.Contains(p.PhoneNumber, term) {
			return true
		}
	}
	return false
}

// Family семья
func (m *Memory) Family(_ context.Context, id uint) (*model.Family, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.families[id]
	if !ok {
		return nil, errors.NotFoundf("семья %d", id)
	}
	f.Members = append([]model.Person(nil), f.Members...)
	return &f, nil
}

// Person персона
func (m *Memory) Person(_ context.Context, id uint) (*model.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.people[id]
	if !ok {
		return nil, errors.NotFoundf("персона %d", id)
	}
	return &p, nil
}

// PersonByDevice персона по ключу устройства
func (m *Memory) PersonByDevice(ctx context.Context, deviceKey string) (*model.Person, error) {
	m.mu.RLock()
	id, ok := m.personal[deviceKey]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NotFoundf("персональное устройство %q", deviceKey)
	}
	return m.Person(ctx, id)
}

// OpenAttendance открытые посещения персон
func (m *Memory) OpenAttendance(_ context.Context, personIDs []uint, since time.Time) ([]model.Attendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[uint]bool, len(personIDs))
	for _, id := range personIDs {
		want[id] = true
	}
	res := make([]model.Attendance, 0)
	for _, a := range m.attendance {
		if want[a.PersonID] && a.IsOpen() && !a.StartAt.Before(since) {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// LocationCounts количество открытых посещений по помещениям
func (m *Memory) LocationCounts(_ context.Context, locationIDs []uint, since time.Time) (map[uint]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[uint]int, len(locationIDs))
	for _, id := range locationIDs {
		res[id] = 0
	}
	for _, a := range m.attendance {
		if _, ok := res[a.LocationID]; ok && a.IsOpen() && !a.StartAt.Before(since) {
			res[a.LocationID]++
		}
	}
	return res, nil
}

// Attendances посещения по идентификаторам (ненайденные пропускаются)
func (m *Memory) Attendances(_ context.Context, ids []uint) ([]model.Attendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]model.Attendance, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.attendance[id]; ok {
			res = append(res, a)
		}
	}
	return res, nil
}

// SessionCounts количество записей сессии
func (m *Memory) SessionCounts(_ context.Context, sessionID string) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pending, committed := 0, 0
	for _, a := range m.attendance {
		if a.SessionID != sessionID {
			continue
		}
		if a.IsPending {
			pending++
		} else {
			committed++
		}
	}
	return pending, committed, nil
}

// SaveAttendance сохраняет записи сессии, заменяя её pending-записи
func (m *Memory) SaveAttendance(_ context.Context, sessionID string, records []model.Attendance) ([]model.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletePendingLocked(sessionID)
	res := make([]model.Attendance, 0, len(records))
	for _, a := range records {
		m.nextID++
		a.ID = m.nextID
		a.SessionID = sessionID
		a.CreatedAt = m.now()
		m.attendance[a.ID] = a
		res = append(res, a)
	}
	return res, nil
}

// ConfirmPending переводит pending-записи сессии в подтверждённые
func (m *Memory) ConfirmPending(_ context.Context, sessionID string) ([]model.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Attendance, 0)
	for id, a := range m.attendance {
		if a.SessionID == sessionID && a.IsPending {
			a.IsPending = false
			m.attendance[id] = a
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// DeletePending удаляет pending-записи сессии
func (m *Memory) DeletePending(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletePendingLocked(sessionID), nil
}

func (m *Memory) deletePendingLocked(sessionID string) int {
	n := 0
	for id, a := range m.attendance {
		if a.SessionID == sessionID && a.IsPending {
			delete(m.attendance, id)
			n++
		}
	}
	return n
}

// DeleteExpiredPending удаляет устаревшие pending-записи
func (m *Memory) DeleteExpiredPending(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.attendance {
		if a.IsPending && a.CreatedAt.Before(before) {
			delete(m.attendance, id)
			n++
		}
	}
	return n, nil
}

// Checkout завершает открытые посещения
func (m *Memory) Checkout(_ context.Context, ids []uint, at time.Time) ([]model.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Attendance, 0, len(ids))
	for _, id := range ids {
		a, ok := m.attendance[id]
		if !ok || !a.IsOpen() {
			continue
		}
		end := at
		a.EndAt = &end
		m.attendance[id] = a
		res = append(res, a)
	}
	return res, nil
}

// endregion
