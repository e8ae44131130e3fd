// Package checkin процесс регистрации: фасад Director и сессия Session.
// Флаг переопределения сессии устанавливается только через Director.TryAuthenticatePin
package checkin

import (
	"context"
	"io/ioutil"
	"sort"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/checkin/server/controller/label"
	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/pin"
	"github.com/kirsrus/checkin/server/pkg/validator"
	"github.com/kirsrus/checkin/server/service"
	"github.com/kirsrus/checkin/server/store"
)

const (
	// Посещения, начатые раньше, не считаются открытыми
	openAttendanceWindow = 24 * time.Hour

	// Сообщение при неудачной проверке PIN (не раскрывает причину)
	invalidPinMessage = "неверный PIN-код переопределения"
)

// Director фасад процесса регистрации. Инициируется через NewDirector
type Director struct {
	log       *logrus.Entry
	validator *validator.Validator

	dbStore  store.DbStore
	refStore store.RefStore

	labels        *label.Provider
	transport     service.PrintTransport
	feed          service.AttendanceFeed
	labelDeadline time.Duration

	overridePinHashes []string
	location          *time.Location
	now               func() time.Time
}

// ConfigDirector конфигурация Director
type ConfigDirector struct {
	Log *logrus.Logger

	DbStore  store.DbStore
	RefStore store.RefStore

	// Формирование этикеток (nil - создаётся по умолчанию)
	Labels *label.Provider
	// Доставка этикеток на принтеры (nil - печать на клиенте)
	Transport service.PrintTransport
	// Рассылка событий регистрации (может отсутствовать)
	Feed service.AttendanceFeed
	// Предельное время печати этикеток
	LabelDeadline time.Duration

	// Глобальные хэши PIN-кодов переопределения
	OverridePinHashes []string
	// Часовой пояс расписаний (nil - локальный)
	Location *time.Location
	// Источник времени (nil - time.Now)
	Now func() time.Time
}

// NewDirector конструктор Director
func NewDirector(config ConfigDirector) (*Director, error) {
	if config.DbStore == nil {
		return nil, errors.New("не передан сервис базы данных")
	}
	if config.RefStore == nil {
		return nil, errors.New("не передан справочник")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.Labels == nil {
		config.Labels = label.NewProvider(label.ConfigProvider{Log: config.Log, Deadline: config.LabelDeadline})
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Director{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "checkin",
			"scope":  "controller",
		}),
		validator:         validator.Get(),
		dbStore:           config.DbStore,
		refStore:          config.RefStore,
		labels:            config.Labels,
		transport:         config.Transport,
		feed:              config.Feed,
		labelDeadline:     config.LabelDeadline,
		overridePinHashes: config.OverridePinHashes,
		location:          config.Location,
		now:               config.Now,
	}, nil
}

// Labels формирование этикеток, общее для всех сессий
func (m *Director) Labels() *label.Provider {
	return m.labels
}

// Now текущее время в часовом поясе расписаний
func (m *Director) Now() time.Time {
	return m.now().In(m.location)
}

// Configuration шаблон регистрации по идентификатору
func (m *Director) Configuration(id string) (*model.Configuration, error) {
	c, ok := m.refStore.Configuration(id)
	if !ok {
		return nil, errors.NotFoundf("шаблон регистрации %q", id)
	}
	return c, nil
}

// Configurations шаблоны регистрации со сводкой областей. Если киоск известен и
// привязан к площадке, показываются только области с помещениями этой площадки
func (m *Director) Configurations(kioskID uint) []model.ConfigurationSummary {
	var kiosk *model.Device
	if kioskID != 0 {
		if d, ok := m.refStore.Device(kioskID); ok {
			kiosk = d
		} else {
			m.log.Debugf("киоск %d не найден, шаблоны выдаются без фильтра", kioskID)
		}
	}

	res := make([]model.ConfigurationSummary, 0)
	for _, c := range m.refStore.Configurations() {
		summary := model.ConfigurationSummary{ID: c.ID, Name: c.Name, Kind: c.Kind, Areas: make([]model.AreaSummary, 0)}
		for _, id := range c.AreaIDs {
			area, ok := m.refStore.Area(id)
			if !ok {
				m.log.Warnf("шаблон %s ссылается на отсутствующую область %d", c.ID, id)
				continue
			}
			if kiosk != nil && kiosk.CampusID != 0 && !areaOnCampus(*area, kiosk.CampusID) {
				continue
			}
			summary.Areas = append(summary.Areas, model.AreaSummary{ID: area.ID, Name: area.Name, Groups: len(area.Groups)})
		}
		res = append(res, summary)
	}
	return res
}

func areaOnCampus(area model.Area, campusID uint) bool {
	for _, g := range area.Groups {
		for _, gl := range g.Locations {
			if gl.Location.CampusID == campusID {
				return true
			}
		}
	}
	return false
}

// NewSession создаёт сессию, привязанную к шаблону configurationID
func (m *Director) NewSession(configurationID string) (*Session, error) {
	c, err := m.Configuration(configurationID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Session{
		director:      m,
		configuration: *c,
		state:         StateCreated,
		log:           m.log.WithField("configuration", c.ID),
	}, nil
}

// TryAuthenticatePin проверяет PIN переопределения по хэшам шаблона сессии и глобальным.
// При успехе включает переопределение в сессии. При неудаче возвращает причину
func (m *Director) TryAuthenticatePin(session *Session, code string) (bool, string) {
	if session == nil {
		return false, invalidPinMessage
	}
	hashes := make([]string, 0, len(session.configuration.OverridePinHashes)+len(m.overridePinHashes))
	hashes = append(hashes, session.configuration.OverridePinHashes...)
	hashes = append(hashes, m.overridePinHashes...)
	if code == "" || !pin.VerifyAny(hashes, code) {
		session.log.Info("неудачная попытка переопределения")
		return false, invalidPinMessage
	}
	session.override = true
	session.log.Info("переопределение включено")
	return true, ""
}

// ConfirmAttendance подтверждает неподтверждённые записи сессии sessionID. Шаблон
// берётся из самих записей
func (m *Director) ConfirmAttendance(ctx context.Context, sessionID string, kioskID uint) (*model.AttendanceResult, error) {
	s := &Session{director: m, state: StateCreated, log: m.log}
	return s.ConfirmAttendance(ctx, sessionID, kioskID)
}

// DeletePendingAttendance удаляет неподтверждённые записи сессии. Повторный вызов
// или неизвестный идентификатор - не ошибка
func (m *Director) DeletePendingAttendance(ctx context.Context, sessionID string) error {
	n, err := m.dbStore.DeletePending(ctx, sessionID)
	if err != nil {
		return errors.Annotatef(err, "удаление сессии %s", sessionID)
	}
	if n > 0 {
		m.log.Debugf("сессия %s: удалено %d неподтверждённых записей", sessionID, n)
	}
	return nil
}

// Kiosk устройство-киоск. Отсутствие - NotFound
func (m *Director) Kiosk(id uint) (*model.Device, error) {
	d, ok := m.refStore.Device(id)
	if !ok {
		return nil, errors.NotFoundf("киоск %d", id)
	}
	return d, nil
}

// Необязательный киоск: 0 - нет киоска
func (m *Director) optionalKiosk(id uint) (*model.Device, error) {
	if id == 0 {
		return nil, nil
	}
	return m.Kiosk(id)
}

// Areas области по идентификаторам в порядке запроса. Отсутствие любой - NotFound
func (m *Director) Areas(ids []uint) ([]model.Area, error) {
	res := make([]model.Area, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		a, ok := m.refStore.Area(id)
		if !ok {
			return nil, errors.NotFoundf("область %d", id)
		}
		res = append(res, *a)
	}
	return res, nil
}

// Публикация событий регистрации
func (m *Director) publish(action string, records []model.Attendance) {
	if m.feed == nil {
		return
	}
	at := m.Now()
	for _, r := range records {
		m.feed.Publish(model.AttendanceEvent{Action: action, At: at, Attendance: r})
	}
}

// describe восстанавливает названия области, группы, помещения и расписания посещения
// по областям шаблона. Второй результат - адрес принтера помещения
func (m *Director) describe(c model.Configuration, a model.Attendance) (model.Opportunity, string) {
	res := model.Opportunity{
		GroupID:    a.GroupID,
		LocationID: a.LocationID,
		ScheduleID: a.ScheduleID,
		CampusID:   a.CampusID,
	}
	ids := append([]uint(nil), c.AreaIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		area, ok := m.refStore.Area(id)
		if !ok {
			continue
		}
		for _, g := range area.Groups {
			if g.ID != a.GroupID {
				continue
			}
			for _, gl := range g.Locations {
				if gl.Location.ID != a.LocationID {
					continue
				}
				res.AreaID, res.AreaName = area.ID, area.Name
				res.GroupName = g.Name
				res.LocationName = gl.Location.Name
				for _, s := range gl.Schedules {
					if s.ID == a.ScheduleID {
						res.ScheduleName = s.Name
					}
				}
				return res, gl.Location.PrinterAddress
			}
		}
	}
	return res, ""
}
