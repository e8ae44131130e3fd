package db

import (
	"context"
	"io/ioutil"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/validator"
	"github.com/kirsrus/checkin/server/store"
)

var _ store.DbStore = (*Db)(nil)

// Db обращение к базе данных. Инициируется через NewDb
type Db struct {
	log       *logrus.Entry
	db        *gorm.DB
	validator *validator.Validator
}

// ConfigDb конфигурацияи класса NewDb
type ConfigDb struct {
	Log    *logrus.Logger
	DbFile string
	// Источник времени для CreatedAt (nil - time.Now)
	Now func() time.Time
}

// NewDb конструктор класса Db
func NewDb(config *ConfigDb) (*Db, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.DbFile == "" {
		return nil, errors.New("в конфигурации не указана строка подключения")
	}

	gormConfig := &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	}
	if config.Now != nil {
		gormConfig.NowFunc = config.Now
	}

	// Подключаемся к БД и запускаем миграции
	conn, err := gorm.Open(sqlite.Open(config.DbFile), gormConfig)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка подключения к файлу БД")
	}
	err = conn.AutoMigrate(
		Campus{}, Family{}, Person{}, PersonalDevice{},
		Area{}, Group{}, Location{}, Schedule{}, GroupSchedule{},
		Device{}, Attendance{},
	)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка миграции БД")
	}

	return &Db{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "db",
			"scope":  "store",
		}),
		validator: validator.Get(),
		db:        conn,
	}, nil
}

// Close закрывает соединение с БД
func (m *Db) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(sqlDB.Close())
}

// isNotFound проверяет, что ошибка err обозначает, что записи не найдены
func isNotFound(err error) bool {
	return err != nil && err.Error() == gorm.ErrRecordNotFound.Error()
}

// region Семьи и персоны

// SearchFamilies кандидаты для поиска семей
func (m *Db) SearchFamilies(ctx context.Context, query store.FamilyQuery) ([]model.Family, error) {
	term := strings.TrimSpace(query.Term)
	tx := m.db.WithContext(ctx)

	ids := make([]uint, 0)
	addIDs := func(found []uint) {
		ids = append(ids, found...)
	}

	switch query.Type {
	case model.SearchByFamilyID:
		id, err := strconv.ParseUint(term, 10, 64)
		if err != nil {
			return []model.Family{}, nil
		}
		addIDs([]uint{uint(id)})
	default:
		byName := query.Type == model.SearchByName || query.Type == model.SearchByNameAndPhone
		byPhone := query.Type == model.SearchByPhone || query.Type == model.SearchByNameAndPhone
		if byName && term != "" {
			// SQLite сравнивает регистронезависимо только ASCII, поэтому ищем по вариантам написания
			patterns := likePatterns(term)
			found := make([]uint, 0)
			if err := tx.Model(&Family{}).Where("name LIKE ? OR name LIKE ? OR name LIKE ?", patterns...).
				Pluck("id", &found).Error; err != nil {
				return nil, errors.Trace(err)
			}
			addIDs(found)
			found = make([]uint, 0)
			if err := tx.Model(&Person{}).
				Where("first_name || ' ' || last_name LIKE ? OR first_name || ' ' || last_name LIKE ? OR first_name || ' ' || last_name LIKE ?", patterns...).
				Or("nick_name LIKE ? OR nick_name LIKE ? OR nick_name LIKE ?", patterns...).
				Pluck("family_id", &found).Error; err != nil {
				return nil, errors.Trace(err)
			}
			addIDs(found)
		}
		if digits := onlyDigits(term); byPhone && digits != "" {
			found := make([]uint, 0)
			if err := tx.Model(&Person{}).Where("phone_number LIKE ?", "%"+digits+"%").
				Pluck("family_id", &found).Error; err != nil {
				return nil, errors.Trace(err)
			}
			addIDs(found)
		}
	}

	ids = uniqueSorted(ids)
	if query.Limit > 0 && len(ids) > query.Limit {
		ids = ids[:query.Limit]
	}
	return m.families(ctx, ids)
}

// Семьи с членами по идентификаторам, по возрастанию ID
func (m *Db) families(ctx context.Context, ids []uint) ([]model.Family, error) {
	res := make([]model.Family, 0, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	tx := m.db.WithContext(ctx)

	rows := make([]Family, 0)
	if err := tx.Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	people := make([]Person, 0)
	if err := tx.Where("family_id IN ?", ids).Order("id").Find(&people).Error; err != nil {
		return nil, errors.Trace(err)
	}
	members := make(map[uint][]model.Person)
	for _, p := range people {
		members[p.FamilyID] = append(members[p.FamilyID], p.ToPerson())
	}
	for _, row := range rows {
		f := row.ToFamily()
		f.Members = members[row.ID]
		if f.Members == nil {
			f.Members = []model.Person{}
		}
		res = append(res, f)
	}
	return res, nil
}

// Family семья со всеми членами
func (m *Db) Family(ctx context.Context, id uint) (*model.Family, error) {
	res, err := m.families(ctx, []uint{id})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(res) == 0 {
		return nil, errors.NotFoundf("семья %d", id)
	}
	return &res[0], nil
}

// Person персона
func (m *Db) Person(ctx context.Context, id uint) (*model.Person, error) {
	var person Person
	if err := m.db.WithContext(ctx).Take(&person, id).Error; err != nil {
		if isNotFound(err) {
			return nil, errors.NotFoundf("персона %d", id)
		}
		return nil, errors.Trace(err)
	}
	res := person.ToPerson()
	return &res, nil
}

// PersonByDevice персона по ключу персонального устройства
func (m *Db) PersonByDevice(ctx context.Context, deviceKey string) (*model.Person, error) {
	var device PersonalDevice
	if err := m.db.WithContext(ctx).Where("device_key = ?", deviceKey).Take(&device).Error; err != nil {
		if isNotFound(err) {
			return nil, errors.NotFoundf("персональное устройство %q", deviceKey)
		}
		return nil, errors.Trace(err)
	}
	return m.Person(ctx, device.PersonID)
}

// SaveFamily добавляет или обновляет семью вместе с членами
func (m *Db) SaveFamily(ctx context.Context, family model.Family) (*model.Family, error) {
	if err := m.validator.Validate(&family); err != nil {
		return nil, errors.Annotate(err, "ошибка валидации")
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := Family{GormModelUnscoped: GormModelUnscoped{ID: family.ID}, Name: family.Name, CampusID: family.CampusID}
		if err := upsert(tx, row.ID, &row); err != nil {
			return errors.Trace(err)
		}
		family.ID = row.ID
		for i := range family.Members {
			family.Members[i].FamilyID = row.ID
			var p Person
			p.FromPerson(family.Members[i])
			if err := upsert(tx, p.ID, &p); err != nil {
				return errors.Trace(err)
			}
			family.Members[i].ID = p.ID
		}
		return nil
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка сохранения семьи")
	}
	return &family, nil
}

// SavePersonalDevice привязывает персональное устройство к персоне
func (m *Db) SavePersonalDevice(ctx context.Context, device model.PersonalDevice) error {
	if err := m.validator.Validate(&device); err != nil {
		return errors.Annotate(err, "ошибка валидации")
	}
	row := PersonalDevice{GormModelUnscoped: GormModelUnscoped{ID: device.ID}, PersonID: device.PersonID, DeviceKey: device.DeviceKey}
	return errors.Trace(upsert(m.db.WithContext(ctx), row.ID, &row))
}

// endregion
// region Посещения

// OpenAttendance подтверждённые незавершённые посещения персон
func (m *Db) OpenAttendance(ctx context.Context, personIDs []uint, since time.Time) ([]model.Attendance, error) {
	if len(personIDs) == 0 {
		return []model.Attendance{}, nil
	}
	rows := make([]Attendance, 0)
	err := m.db.WithContext(ctx).
		Where("person_id IN ? AND is_pending = ? AND end_at IS NULL AND start_at >= ?", personIDs, false, since).
		Order("id").Find(&rows).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	return toAttendance(rows), nil
}

// LocationCounts количество открытых посещений по помещениям
func (m *Db) LocationCounts(ctx context.Context, locationIDs []uint, since time.Time) (map[uint]int, error) {
	res := make(map[uint]int, len(locationIDs))
	if len(locationIDs) == 0 {
		return res, nil
	}
	for _, id := range locationIDs {
		res[id] = 0
	}
	var counts []struct {
		LocationID uint
		N          int
	}
	err := m.db.WithContext(ctx).Model(&Attendance{}).
		Select("location_id, count(*) AS n").
		Where("location_id IN ? AND is_pending = ? AND end_at IS NULL AND start_at >= ?", locationIDs, false, since).
		Group("location_id").Scan(&counts).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, c := range counts {
		res[c.LocationID] = c.N
	}
	return res, nil
}

// Attendances посещения по идентификаторам (ненайденные пропускаются)
func (m *Db) Attendances(ctx context.Context, ids []uint) ([]model.Attendance, error) {
	if len(ids) == 0 {
		return []model.Attendance{}, nil
	}
	rows := make([]Attendance, 0)
	if err := m.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return toAttendance(rows), nil
}

// SessionCounts количество pending и подтверждённых записей сессии
func (m *Db) SessionCounts(ctx context.Context, sessionID string) (int, int, error) {
	var pending, committed int64
	tx := m.db.WithContext(ctx).Model(&Attendance{})
	if err := tx.Where("session_id = ? AND is_pending = ?", sessionID, true).Count(&pending).Error; err != nil {
		return 0, 0, errors.Trace(err)
	}
	tx = m.db.WithContext(ctx).Model(&Attendance{})
	if err := tx.Where("session_id = ? AND is_pending = ?", sessionID, false).Count(&committed).Error; err != nil {
		return 0, 0, errors.Trace(err)
	}
	return int(pending), int(committed), nil
}

// SaveAttendance сохраняет записи сессии, заменяя её pending-записи
func (m *Db) SaveAttendance(ctx context.Context, sessionID string, records []model.Attendance) ([]model.Attendance, error) {
	rows := make([]Attendance, 0, len(records))
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ? AND is_pending = ?", sessionID, true).Delete(&Attendance{}).Error; err != nil {
			return errors.Trace(err)
		}
		for _, r := range records {
			var row Attendance
			row.FromAttendance(r)
			row.SessionID = sessionID
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			return nil
		}
		return errors.Trace(tx.Create(&rows).Error)
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка сохранения посещений")
	}
	m.log.Debugf("сессия %s: сохранено %d записей", sessionID, len(rows))
	return toAttendance(rows), nil
}

// ConfirmPending переводит pending-записи сессии в подтверждённые
func (m *Db) ConfirmPending(ctx context.Context, sessionID string) ([]model.Attendance, error) {
	rows := make([]Attendance, 0)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ? AND is_pending = ?", sessionID, true).Order("id").Find(&rows).Error; err != nil {
			return errors.Trace(err)
		}
		if len(rows) == 0 {
			return nil
		}
		err := tx.Model(&Attendance{}).Where("session_id = ? AND is_pending = ?", sessionID, true).
			Update("is_pending", false).Error
		return errors.Trace(err)
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка подтверждения посещений")
	}
	for i := range rows {
		rows[i].IsPending = false
	}
	return toAttendance(rows), nil
}

// DeletePending удаляет pending-записи сессии
func (m *Db) DeletePending(ctx context.Context, sessionID string) (int, error) {
	res := m.db.WithContext(ctx).Where("session_id = ? AND is_pending = ?", sessionID, true).Delete(&Attendance{})
	if res.Error != nil {
		return 0, errors.Trace(res.Error)
	}
	return int(res.RowsAffected), nil
}

// DeleteExpiredPending удаляет pending-записи, созданные ранее before
func (m *Db) DeleteExpiredPending(ctx context.Context, before time.Time) (int, error) {
	res := m.db.WithContext(ctx).Where("is_pending = ? AND created_at < ?", true, before).Delete(&Attendance{})
	if res.Error != nil {
		return 0, errors.Trace(res.Error)
	}
	return int(res.RowsAffected), nil
}

// Checkout завершает открытые посещения ids моментом at
func (m *Db) Checkout(ctx context.Context, ids []uint, at time.Time) ([]model.Attendance, error) {
	rows := make([]Attendance, 0)
	if len(ids) == 0 {
		return []model.Attendance{}, nil
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id IN ? AND is_pending = ? AND end_at IS NULL", ids, false).Order("id").Find(&rows).Error; err != nil {
			return errors.Trace(err)
		}
		if len(rows) == 0 {
			return nil
		}
		changed := make([]uint, 0, len(rows))
		for _, r := range rows {
			changed = append(changed, r.ID)
		}
		return errors.Trace(tx.Model(&Attendance{}).Where("id IN ?", changed).Update("end_at", at).Error)
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка завершения посещений")
	}
	for i := range rows {
		end := at
		rows[i].EndAt = &end
	}
	return toAttendance(rows), nil
}

func toAttendance(rows []Attendance) []model.Attendance {
	res := make([]model.Attendance, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.ToAttendance())
	}
	return res
}

// endregion
// region Справочники

// Areas все области с полной иерархией группа → помещение → расписание
func (m *Db) Areas(ctx context.Context) ([]model.Area, error) {
	tx := m.db.WithContext(ctx)

	areas := make([]Area, 0)
	if err := tx.Order("sort_order, id").Find(&areas).Error; err != nil {
		return nil, errors.Trace(err)
	}
	groups := make([]Group, 0)
	if err := tx.Order("sort_order, id").Find(&groups).Error; err != nil {
		return nil, errors.Trace(err)
	}
	links := make([]GroupSchedule, 0)
	if err := tx.Order("group_id, location_id, schedule_id").Find(&links).Error; err != nil {
		return nil, errors.Trace(err)
	}
	locations := make([]Location, 0)
	if err := tx.Find(&locations).Error; err != nil {
		return nil, errors.Trace(err)
	}
	schedules := make([]Schedule, 0)
	if err := tx.Find(&schedules).Error; err != nil {
		return nil, errors.Trace(err)
	}

	locationByID := make(map[uint]model.Location, len(locations))
	for _, l := range locations {
		locationByID[l.ID] = l.ToLocation()
	}
	scheduleByID := make(map[uint]model.Schedule, len(schedules))
	for _, s := range schedules {
		scheduleByID[s.ID] = s.ToSchedule()
	}

	// Помещения группы в порядке ссылок
	groupLocations := make(map[uint][]model.GroupLocation)
	for _, link := range links {
		loc, ok := locationByID[link.LocationID]
		if !ok {
			m.log.Warnf("группа %d ссылается на отсутствующее помещение %d", link.GroupID, link.LocationID)
			continue
		}
		schedule, ok := scheduleByID[link.ScheduleID]
		if !ok {
			m.log.Warnf("группа %d ссылается на отсутствующее расписание %d", link.GroupID, link.ScheduleID)
			continue
		}
		gls := groupLocations[link.GroupID]
		if n := len(gls); n > 0 && gls[n-1].Location.ID == loc.ID {
			gls[n-1].Schedules = append(gls[n-1].Schedules, schedule)
		} else {
			gls = append(gls, model.GroupLocation{Location: loc, Schedules: []model.Schedule{schedule}})
		}
		groupLocations[link.GroupID] = gls
	}

	areaGroups := make(map[uint][]model.Group)
	for _, g := range groups {
		group := g.ToGroup()
		group.Locations = groupLocations[g.ID]
		areaGroups[g.AreaID] = append(areaGroups[g.AreaID], group)
	}

	res := make([]model.Area, 0, len(areas))
	for _, a := range areas {
		res = append(res, model.Area{ID: a.ID, Name: a.Name, Order: a.Order, Groups: areaGroups[a.ID]})
	}
	return res, nil
}

// SaveArea сохраняет область со всей иерархией. Связи групп области пересоздаются
func (m *Db) SaveArea(ctx context.Context, area model.Area) error {
	if err := m.validator.Validate(&area); err != nil {
		return errors.Annotate(err, "ошибка валидации")
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := Area{GormModelUnscoped: GormModelUnscoped{ID: area.ID}, Name: area.Name, Order: area.Order}
		if err := upsert(tx, row.ID, &row); err != nil {
			return errors.Trace(err)
		}
		for _, g := range area.Groups {
			group := Group{
				GormModelUnscoped: GormModelUnscoped{ID: g.ID},
				AreaID:            row.ID,
				Name:              g.Name,
				Order:             g.Order,
				MinAge:            g.MinAge,
				MaxAge:            g.MaxAge,
				MinGrade:          g.MinGrade,
				MaxGrade:          g.MaxGrade,
				Gender:            string(g.Gender),
			}
			if err := upsert(tx, group.ID, &group); err != nil {
				return errors.Trace(err)
			}
			if err := tx.Where("group_id = ?", group.ID).Delete(&GroupSchedule{}).Error; err != nil {
				return errors.Trace(err)
			}
			for _, gl := range g.Locations {
				l := gl.Location
				loc := Location{
					GormModelUnscoped: GormModelUnscoped{ID: l.ID},
					Name:              l.Name,
					CampusID:          l.CampusID,
					SoftThreshold:     l.SoftThreshold,
					HardThreshold:     l.HardThreshold,
					PrinterAddress:    l.PrinterAddress,
					BeaconMajor:       l.BeaconMajor,
					BeaconMinor:       l.BeaconMinor,
					IsActive:          l.IsActive,
				}
				if err := upsert(tx, loc.ID, &loc); err != nil {
					return errors.Trace(err)
				}
				for _, s := range gl.Schedules {
					var schedule Schedule
					schedule.FromSchedule(s)
					if err := upsert(tx, schedule.ID, &schedule); err != nil {
						return errors.Trace(err)
					}
					link := GroupSchedule{GroupID: group.ID, LocationID: loc.ID, ScheduleID: schedule.ID}
					if err := tx.Create(&link).Error; err != nil {
						return errors.Trace(err)
					}
				}
			}
		}
		return nil
	})
	return errors.Annotate(err, "ошибка сохранения области")
}

// Devices все устройства по возрастанию ID
func (m *Db) Devices(ctx context.Context) ([]model.Device, error) {
	rows := make([]Device, 0)
	if err := m.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	res := make([]model.Device, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.ToDevice())
	}
	return res, nil
}

// SaveDevice добавляет или обновляет устройство
func (m *Db) SaveDevice(ctx context.Context, device model.Device) error {
	if err := m.validator.Validate(&device); err != nil {
		return errors.Annotate(err, "ошибка валидации")
	}
	var row Device
	row.FromDevice(device)
	return errors.Trace(upsert(m.db.WithContext(ctx), row.ID, &row))
}

// Campuses все площадки
func (m *Db) Campuses(ctx context.Context) ([]model.Campus, error) {
	rows := make([]Campus, 0)
	if err := m.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	res := make([]model.Campus, 0, len(rows))
	for _, r := range rows {
		res = append(res, model.Campus{ID: r.ID, Name: r.Name})
	}
	return res, nil
}

// SaveCampus добавляет или обновляет площадку
func (m *Db) SaveCampus(ctx context.Context, campus model.Campus) error {
	if err := m.validator.Validate(&campus); err != nil {
		return errors.Annotate(err, "ошибка валидации")
	}
	row := Campus{GormModelUnscoped: GormModelUnscoped{ID: campus.ID}, Name: campus.Name}
	return errors.Trace(upsert(m.db.WithContext(ctx), row.ID, &row))
}

// endregion

// Добавляет запись или обновляет существующую с тем же ID. Справочники приходят
// с заранее заданными идентификаторами
func upsert(tx *gorm.DB, id uint, row interface{}) error {
	if id == 0 {
		return tx.Create(row).Error
	}
	var n int64
	if err := tx.Model(row).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return tx.Create(row).Error
	}
	return tx.Save(row).Error
}

func likePatterns(term string) []interface{} {
	lower := strings.ToLower(term)
	title := []rune(lower)
	if len(title) > 0 {
		title[0] = unicode.ToUpper(title[0])
	}
	return []interface{}{"%" + term + "%", "%" + lower + "%", "%" + string(title) + "%"}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func uniqueSorted(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	res := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !seen[id] {
			seen[id] = true
			res = append(res, id)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
