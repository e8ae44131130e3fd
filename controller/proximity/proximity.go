// Package proximity автоматическая регистрация и выход по показаниям маяков
// персональных устройств
package proximity

import (
	"context"
	"io/ioutil"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/checkin/server/controller"
	"github.com/kirsrus/checkin/server/controller/opportunity"
	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/validator"
	"github.com/kirsrus/checkin/server/service"
	"github.com/kirsrus/checkin/server/store"
)

// Посещения, начатые раньше, не считаются открытыми
const openAttendanceWindow = 24 * time.Hour

var _ controller.ProximityCtl = (*Director)(nil)

// Director обработчик событий маяков. Инициируется через NewDirector
type Director struct {
	log       *logrus.Entry
	validator *validator.Validator

	dbStore  store.DbStore
	refStore store.RefStore
	feed     service.AttendanceFeed

	configurationID string
	location        *time.Location
	now             func() time.Time

	// Блокировки по персонам (uint -> *sync.Mutex)
	locks sync.Map
}

// ConfigDirector конфигурация Director
type ConfigDirector struct {
	Log *logrus.Logger

	DbStore  store.DbStore
	RefStore store.RefStore
	// Рассылка событий регистрации (может отсутствовать)
	Feed service.AttendanceFeed

	// Шаблон регистрации, области которого учитываются при поиске возможностей
	ConfigurationID string
	// Часовой пояс расписаний (nil - локальный)
	Location *time.Location
	// Источник времени (nil - time.Now)
	Now func() time.Time
}

// NewDirector конструктор Director
func NewDirector(config ConfigDirector) (*Director, error) {
	if config.DbStore == nil || config.RefStore == nil {
		return nil, errors.New("не переданы хранилища")
	}
	if config.ConfigurationID == "" {
		return nil, errors.New("не задан шаблон регистрации")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Director{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "proximity",
			"scope":  "controller",
		}),
		validator:       validator.Get(),
		dbStore:         config.DbStore,
		refStore:        config.RefStore,
		feed:            config.Feed,
		configurationID: config.ConfigurationID,
		location:        config.Location,
		now:             config.Now,
	}, nil
}

// HandleEvent обрабатывает событие персонального устройства: появление в зоне маяка
// регистрирует, уход завершает посещение. Возвращает, было ли выполнено действие.
// Неизвестное устройство - Unauthorized
func (m *Director) HandleEvent(ctx context.Context, event model.ProximityEvent) (bool, error) {
	if err := m.validator.Validate(&event); err != nil {
		return false, errors.NewNotValid(err, "некорректное событие маяков")
	}
	person, err := m.dbStore.PersonByDevice(ctx, event.PersonalDeviceID)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, errors.NewUnauthorized(err, "персональное устройство не зарегистрировано")
		}
		return false, errors.Annotate(err, "ошибка поиска персоны")
	}
	beacon, ok := event.Strongest()
	if !ok {
		return false, errors.NotValidf("нет маяков")
	}
	if event.IsPresent {
		return m.CheckIn(ctx, *person, beacon)
	}
	return m.Checkout(ctx, *person, beacon)
}

// CheckIn регистрирует персону в помещении маяка по первой доступной ей возможности.
// false - помещения с таким маяком нет либо нет доступной возможности
func (m *Director) CheckIn(ctx context.Context, person model.Person, beacon model.Beacon) (bool, error) {
	unlock := m.lock(person.ID)
	defer unlock()

	loc, ok := m.refStore.LocationByBeacon(beacon.Major, beacon.Minor)
	if !ok {
		m.log.Debugf("маяк %d/%d не привязан к помещению", beacon.Major, beacon.Minor)
		return false, nil
	}
	c, ok := m.refStore.Configuration(m.configurationID)
	if !ok {
		return false, errors.NotFoundf("шаблон регистрации %q", m.configurationID)
	}
	areas := make([]model.Area, 0, len(c.AreaIDs))
	for _, id := range c.AreaIDs {
		if a, ok := m.refStore.Area(id); ok {
			areas = append(areas, *a)
		}
	}

	now := m.now().In(m.location)
	since := now.Add(-openAttendanceWindow)
	open, err := m.dbStore.OpenAttendance(ctx, []uint{person.ID}, since)
	if err != nil {
		return false, errors.Annotate(err, "ошибка загрузки текущих посещений")
	}
	counts, err := m.dbStore.LocationCounts(ctx, []uint{loc.ID}, since)
	if err != nil {
		return false, errors.Annotate(err, "ошибка загрузки заполненности помещения")
	}

	// Повторное событие присутствия в том же помещении ничего не меняет
	for _, a := range open {
		if a.LocationID == loc.ID {
			return false, nil
		}
	}

	opps := opportunity.AtLocation(opportunity.Resolve(opportunity.Input{
		Now:            now,
		Configuration:  *c,
		Areas:          areas,
		Person:         person,
		OpenAttendance: open,
		LocationCounts: counts,
	}), loc.ID)
	if len(opps) == 0 {
		m.log.Debugf("персоне %d нет возможностей в помещении %d", person.ID, loc.ID)
		return false, nil
	}
	o := opps[0]

	sessionID := uuid.New().String()
	saved, err := m.dbStore.SaveAttendance(ctx, sessionID, []model.Attendance{{
		SessionID:       sessionID,
		ConfigurationID: m.configurationID,
		PersonID:        person.ID,
		GroupID:         o.GroupID,
		LocationID:      o.LocationID,
		ScheduleID:      o.ScheduleID,
		CampusID:        o.CampusID,
		StartAt:         now,
	}})
	if err != nil {
		return false, errors.Annotate(err, "ошибка сохранения посещения")
	}
	m.publish("checkin", now, saved)
	m.log.Infof("персона %d зарегистрирована в помещении %q по маяку", person.ID, loc.Name)
	return true, nil
}

// Checkout завершает открытые посещения персоны в помещении маяка.
// false - помещения нет либо открытых посещений в нём нет
func (m *Director) Checkout(ctx context.Context, person model.Person, beacon model.Beacon) (bool, error) {
	unlock := m.lock(person.ID)
	defer unlock()

	loc, ok := m.refStore.LocationByBeacon(beacon.Major, beacon.Minor)
	if !ok {
		m.log.Debugf("маяк %d/%d не привязан к помещению", beacon.Major, beacon.Minor)
		return false, nil
	}

	now := m.now().In(m.location)
	open, err := m.dbStore.OpenAttendance(ctx, []uint{person.ID}, now.Add(-openAttendanceWindow))
	if err != nil {
		return false, errors.Annotate(err, "ошибка загрузки текущих посещений")
	}
	ids := make([]uint, 0)
	for _, a := range open {
		if a.LocationID == loc.ID {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		return false, nil
	}
	changed, err := m.dbStore.Checkout(ctx, ids, now)
	if err != nil {
		return false, errors.Annotate(err, "ошибка завершения посещения")
	}
	m.publish("checkout", now, changed)
	m.log.Infof("персона %d покинула помещение %q", person.ID, loc.Name)
	return len(changed) > 0, nil
}

func (m *Director) lock(personID uint) func() {
	v, _ := m.locks.LoadOrStore(personID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *Director) publish(action string, at time.Time, records []model.Attendance) {
	if m.feed == nil {
		return
	}
	for _, r := range records {
		m.feed.Publish(model.AttendanceEvent{Action: action, At: at, Attendance: r})
	}
}
