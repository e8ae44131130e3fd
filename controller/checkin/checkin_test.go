package checkin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/pin"
	"github.com/kirsrus/checkin/server/store/memory"
)

// 2026-10-18 - воскресенье, 10:00
var now = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

var cheapPin = pin.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func intp(v int) *int { return &v }

func datep(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

type recordingFeed struct {
	mu     sync.Mutex
	events []model.AttendanceEvent
}

func (m *recordingFeed) Publish(e model.AttendanceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

type fixture struct {
	mem      *memory.Memory
	feed     *recordingFeed
	director *Director
	clock    *time.Time
}

func morning() model.Schedule {
	return model.Schedule{
		ID:                 1,
		Name:               "Утро",
		Weekdays:           []time.Weekday{time.Sunday},
		StartMinute:        10 * 60,
		DurationMinutes:    90,
		CheckInStartOffset: 30,
		IsActive:           true,
	}
}

// Область "Дети": дошкольники (4-7 лет) в комнате 101 и общая группа в зале 103.
// Семья Smith: John (взрослый), Jane (6 лет), Tim (5 лет), Old (неактивен)
func newFixture(t *testing.T, change func(c *model.Configuration)) *fixture {
	t.Helper()
	mem := memory.New()
	clock := now
	mem.SetNow(func() time.Time { return clock })

	mem.AddArea(model.Area{
		ID:   1,
		Name: "Дети",
		Groups: []model.Group{
			{
				ID: 10, AreaID: 1, Name: "Дошкольники", MinAge: intp(4), MaxAge: intp(7),
				Locations: []model.GroupLocation{{
					Location:  model.Location{ID: 101, Name: "Комната 101", CampusID: 1, IsActive: true, HardThreshold: 1},
					Schedules: []model.Schedule{morning()},
				}},
			},
			{
				ID: 12, AreaID: 1, Name: "Все",
				Locations: []model.GroupLocation{{
					Location:  model.Location{ID: 103, Name: "Зал", CampusID: 1, IsActive: true, SoftThreshold: 1, HardThreshold: 10},
					Schedules: []model.Schedule{morning()},
				}},
			},
		},
	})
	mem.AddDevice(model.Device{ID: 5, Name: "Киоск 1", Kind: model.DeviceKiosk, CampusID: 1})

	hash, err := pin.Hash("1234", cheapPin)
	require.NoError(t, err)
	c := model.Configuration{
		ID:                      "sunday",
		Name:                    "Воскресенье",
		AreaIDs:                 []uint{1},
		SearchType:              model.SearchByName,
		PreventDuplicateCheckIn: true,
		PreventInactivePeople:   true,
		AllowCheckout:           true,
		OverridePinHashes:       []string{hash},
		Labels: []model.LabelTemplate{
			{Key: "name", Kind: model.LabelPerson, Content: "{{.Name}} {{.SecurityCode}}"},
			{Key: "bye", Kind: model.LabelCheckout, Content: "{{.Name}}"},
		},
	}
	if change != nil {
		change(&c)
	}
	mem.AddConfiguration(c)

	mem.AddFamily(model.Family{ID: 1, Name: "Smith", CampusID: 1, Members: []model.Person{
		{ID: 1, FirstName: "John", LastName: "Smith", BirthDate: datep(1990, 1, 1), PhoneNumber: "5551234567", IsActive: true},
		{ID: 2, FirstName: "Jane", LastName: "Smith", BirthDate: datep(2020, 5, 1), IsActive: true},
		{ID: 3, FirstName: "Tim", LastName: "Smith", BirthDate: datep(2021, 3, 1), IsActive: true},
		{ID: 4, FirstName: "Old", LastName: "Smith", IsActive: false},
	}})
	mem.AddFamily(model.Family{ID: 2, Name: "Smithson", CampusID: 2, Members: []model.Person{
		{ID: 20, FirstName: "Ann", LastName: "Smithson", BirthDate: datep(2019, 1, 1), PhoneNumber: "5559994567", IsActive: true},
	}})

	feed := &recordingFeed{}
	f := &fixture{mem: mem, feed: feed, clock: &clock}
	f.director, err = NewDirector(ConfigDirector{
		DbStore:  mem,
		RefStore: mem,
		Feed:     feed,
		Location: time.UTC,
		Now:      func() time.Time { return *f.clock },
	})
	require.NoError(t, err)
	return f
}

func (m *fixture) session(t *testing.T) *Session {
	t.Helper()
	s, err := m.director.NewSession("sunday")
	require.NoError(t, err)
	return s
}

func request(pending bool) model.SessionRequest {
	return model.SessionRequest{SessionID: uuid.New().String(), IsPending: pending}
}

func TestNewDirector(t *testing.T) {
	mem := memory.New()
	_, err := NewDirector(ConfigDirector{RefStore: mem})
	assert.Error(t, err)
	_, err = NewDirector(ConfigDirector{DbStore: mem})
	assert.Error(t, err)

	d, err := NewDirector(ConfigDirector{DbStore: mem, RefStore: mem})
	require.NoError(t, err)
	assert.NotNil(t, d.Labels())

	_, err = d.NewSession("unknown")
	assert.True(t, errors.IsNotFound(err))
}

func TestConfigurations(t *testing.T) {
	f := newFixture(t, nil)
	f.mem.AddDevice(model.Device{ID: 6, Name: "Киоск 2", Kind: model.DeviceKiosk, CampusID: 2})

	all := f.director.Configurations(0)
	require.Len(t, all, 1)
	require.Len(t, all[0].Areas, 1)
	assert.Equal(t, 2, all[0].Areas[0].Groups)

	assert.Len(t, f.director.Configurations(5)[0].Areas, 1)
	// Киоск другой площадки не видит области
	assert.Len(t, f.director.Configurations(6)[0].Areas, 0)
	// Неизвестный киоск - без фильтра
	assert.Len(t, f.director.Configurations(99)[0].Areas, 1)
}

func TestSearch(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		term   string
		tpe    model.SearchType
		campus uint
		want   []uint
		err    bool
	}{
		{name: "фамилия точнее префикса", term: "smith", want: []uint{1, 2}},
		{name: "площадка важнее релевантности", term: "smith", campus: 2, want: []uint{2, 1}},
		{name: "полное имя", term: "Ann Smithson", want: []uint{2}},
		{name: "хвост телефона", term: "4567", tpe: model.SearchByPhone, want: []uint{1, 2}},
		{name: "телефон с разделителями", term: "555-123-4567", tpe: model.SearchByPhone, want: []uint{1}},
		{name: "по идентификатору семьи", term: "2", tpe: model.SearchByFamilyID, want: []uint{2}},
		{name: "короткий запрос", term: "sm", err: true},
		{name: "пустой запрос", term: "  ", err: true},
		{name: "неизвестный тип", term: "smith", tpe: "email", err: true},
		{name: "ничего не найдено", term: "petrov", want: []uint{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f.session(t)
			res, err := s.Search(context.Background(), tt.term, tt.tpe, tt.campus)
			if tt.err {
				assert.True(t, errors.IsNotValid(err), "%v", err)
				assert.Equal(t, StateCreated, s.State())
				return
			}
			require.NoError(t, err)
			ids := make([]uint, 0, len(res))
			for _, r := range res {
				ids = append(ids, r.Family.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, StateSearched, s.State())
		})
	}
}

func TestSearchHidesInactive(t *testing.T) {
	f := newFixture(t, nil)
	s := f.session(t)
	res, err := s.Search(context.Background(), "smith", "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	for _, p := range res[0].Family.Members {
		assert.NotEqual(t, uint(4), p.ID)
	}

	ok, _ := f.director.TryAuthenticatePin(s, "1234")
	require.True(t, ok)
	res, err = s.Search(context.Background(), "smith", "", 0)
	require.NoError(t, err)
	assert.Len(t, res[0].Family.Members, 4)
}

func TestMaxSearchResults(t *testing.T) {
	f := newFixture(t, func(c *model.Configuration) { c.MaxSearchResults = 1 })
	res, err := f.session(t).Search(context.Background(), "smith", "", 0)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestLoadFamily(t *testing.T) {
	f := newFixture(t, nil)
	s := f.session(t)

	attendees, err := s.LoadFamily(context.Background(), 1, nil, 5)
	require.NoError(t, err)
	require.Len(t, attendees, 3)
	assert.Equal(t, StateLoaded, s.State())

	// Взрослому доступна только общая группа
	require.Len(t, attendees[0].Opportunities, 1)
	assert.Equal(t, uint(103), attendees[0].Opportunities[0].LocationID)
	// Ребёнку сначала группа по возрасту
	require.Len(t, attendees[1].Opportunities, 2)
	assert.Equal(t, uint(101), attendees[1].Opportunities[0].LocationID)
	assert.True(t, attendees[1].Opportunities[0].IsPreferred)

	_, err = s.LoadFamily(context.Background(), 99, nil, 5)
	assert.True(t, errors.IsNotValid(err))
	_, err = s.LoadFamily(context.Background(), 1, []uint{42}, 5)
	assert.True(t, errors.IsNotFound(err))
	_, err = s.LoadFamily(context.Background(), 1, nil, 42)
	assert.True(t, errors.IsNotFound(err))
}

func TestLoadPerson(t *testing.T) {
	f := newFixture(t, nil)
	s := f.session(t)

	a, err := s.LoadPerson(context.Background(), 2, 1, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Jane", a.Person.FirstName)
	assert.Len(t, s.Attendees(), 1)

	_, err = s.LoadPerson(context.Background(), 2, 2, nil, 0)
	assert.True(t, errors.IsNotValid(err))
	_, err = s.LoadPerson(context.Background(), 4, 0, nil, 0)
	assert.True(t, errors.IsNotValid(err))
	_, err = s.LoadPerson(context.Background(), 99, 0, nil, 0)
	assert.True(t, errors.IsNotValid(err))
}

func TestSaveAttendance(t *testing.T) {
	f := newFixture(t, nil)
	s := f.session(t)
	_, err := s.LoadFamily(context.Background(), 1, nil, 5)
	require.NoError(t, err)

	res, err := s.SaveAttendance(context.Background(), request(false), []model.Selection{
		{PersonID: 2, GroupID: 10, LocationID: 101, ScheduleID: 1},
		{PersonID: 1, GroupID: 12, LocationID: 103, ScheduleID: 1},
	}, 5, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, StateSaved, s.State())

	require.Len(t, res.Attendances, 2)
	code := res.Attendances[0].SecurityCode
	assert.Len(t, code, 3)
	for _, a := range res.Attendances {
		assert.Equal(t, code, a.SecurityCode)
		assert.False(t, a.IsPending)
		assert.Equal(t, uint(5), a.KioskID)
		assert.Equal(t, "10.0.0.5", a.OriginAddress)
		assert.True(t, now.Equal(a.StartAt))
	}

	require.Len(t, res.Labels, 2)
	assert.Equal(t, "Jane Smith "+code, string(res.Labels[0].Data))
	assert.Len(t, f.feed.events, 2)
	assert.Equal(t, ActionCheckIn, f.feed.events[0].Action)

	// Повторная регистрация на то же расписание запрещена
	_, err = f.session(t).SaveAttendance(context.Background(), request(false), []model.Selection{
		{PersonID: 2, GroupID: 12, LocationID: 103, ScheduleID: 1},
	}, 5, "")
	assert.True(t, errors.IsNotValid(err))
}

func TestSaveAttendanceThreshold(t *testing.T) {
	f := newFixture(t, nil)
	s := f.session(t)

	// Порог комнаты 101 - один человек: второй выбор в том же запросе отклоняется
	res, err := s.SaveAttendance(context.Background(), request(false), []model.Selection{
		{PersonID: 2, GroupID: 10, LocationID: 101, ScheduleID: 1},
		{PersonID: 3, GroupID: 10, LocationID: 101, ScheduleID: 1},
	}, 5, "")
	require.NoError(t, err)
	require.Len(t, res.Attendances, 1)
	assert.Equal(t, uint(2), res.Attendances[0].PersonID)
	require.NotEmpty(t, res.Messages)
	assert.Equal(t, model.MessageWarning, res.Messages[0].Type)

	// Мягкий порог зала (1) достигнут, переопределение его снимает
	f.mem.AddAttendance(model.Attendance{PersonID: 20, GroupID: 12, LocationID: 103, ScheduleID: 1, StartAt: now})
	sel := []model.Selection{{PersonID: 3, GroupID: 12, LocationID: 103, ScheduleID: 1}}

	s = f.session(t)
	_, err = s.SaveAttendance(context.Background(), request(false), sel, 5, "")
	assert.True(t, errors.IsNotValid(err))

	ok, msg := f.director.TryAuthenticatePin(s, "0000")
	assert.False(t, ok)
	assert.Equal(t, invalidPinMessage, msg)
	assert.False(t, s.IsOverrideEnabled())

	ok, _ = f.director.TryAuthenticatePin(s, "1234")
	require.True(t, ok)
	assert.True(t, s.IsOverrideEnabled())
	res, err = s.SaveAttendance(context.Background(), request(false), sel, 5, "")
	require.NoError(t, err)
	assert.Len(t, res.Attendances, 1)
}

func TestPendingAttendance(t *testing.T) {
	f := newFixture(t, nil)
	s := f.session(t)
	req := request(true)
	sel := []model.Selection{{PersonID: 2, GroupID: 10, LocationID: 101, ScheduleID: 1}}

	res, err := s.SaveAttendance(context.Background(), req, sel, 5, "")
	require.NoError(t, err)
	assert.Nil(t, res.Labels)
	assert.Equal(t, StateConfirmPending, s.State())
	require.Len(t, res.Attendances, 1)
	assert.True(t, res.Attendances[0].IsPending)
	assert.Empty(t, f.feed.events)

	// Повторная подготовка заменяет прежние записи сессии
	_, err = s.SaveAttendance(context.Background(), req, sel, 5, "")
	require.NoError(t, err)
	assert.Len(t, f.mem.AllAttendance(), 1)

	confirmed, err := s.ConfirmAttendance(context.Background(), req.SessionID, 5)
	require.NoError(t, err)
	assert.NotNil(t, confirmed.Labels)
	assert.Len(t, confirmed.Labels, 1)
	assert.Equal(t, StateConfirmed, s.State())
	require.Len(t, confirmed.Attendances, 1)
	assert.False(t, confirmed.Attendances[0].IsPending)
	assert.Len(t, f.feed.events, 1)

	_, err = s.ConfirmAttendance(context.Background(), req.SessionID, 5)
	assert.True(t, errors.IsNotValid(err))
	_, err = s.SaveAttendance(context.Background(), req, sel, 5, "")
	assert.True(t, errors.IsNotValid(err))
	_, err = s.ConfirmAttendance(context.Background(), "not-a-uuid", 5)
	assert.True(t, errors.IsNotValid(err))
}

func TestConfirmAttendanceConfiguration(t *testing.T) {
	f := newFixture(t, nil)
	f.mem.AddConfiguration(model.Configuration{ID: "quiet", Name: "Без этикеток", AreaIDs: []uint{1}})

	req := request(true)
	res, err := f.session(t).SaveAttendance(context.Background(), req,
		[]model.Selection{{PersonID: 2, GroupID: 10, LocationID: 101, ScheduleID: 1}}, 5, "")
	require.NoError(t, err)
	require.Len(t, res.Attendances, 1)
	assert.Equal(t, "sunday", res.Attendances[0].ConfigurationID)

	// Этикетки печатаются по шаблону подготовки, а не по шаблону подтверждающей сессии
	other, err := f.director.NewSession("quiet")
	require.NoError(t, err)
	confirmed, err := other.ConfirmAttendance(context.Background(), req.SessionID, 5)
	require.NoError(t, err)
	assert.Len(t, confirmed.Labels, 1)
	assert.Equal(t, "sunday", other.Configuration().ID)

	// Подтверждение без сессии шаблона
	req = request(true)
	_, err = f.session(t).SaveAttendance(context.Background(), req,
		[]model.Selection{{PersonID: 3, GroupID: 12, LocationID: 103, ScheduleID: 1}}, 5, "")
	require.NoError(t, err)
	confirmed, err = f.director.ConfirmAttendance(context.Background(), req.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, confirmed.Attendances, 1)
	assert.False(t, confirmed.Attendances[0].IsPending)
	assert.Len(t, confirmed.Labels, 1)
	assert.Len(t, f.feed.events, 2)

	_, err = f.director.ConfirmAttendance(context.Background(), req.SessionID, 0)
	assert.True(t, errors.IsNotValid(err))
}

func TestDeletePendingAttendance(t *testing.T) {
	f := newFixture(t, nil)
	req := request(true)
	_, err := f.session(t).SaveAttendance(context.Background(), req, []model.Selection{
		{PersonID: 2, GroupID: 10, LocationID: 101, ScheduleID: 1},
	}, 0, "")
	require.NoError(t, err)

	require.NoError(t, f.director.DeletePendingAttendance(context.Background(), req.SessionID))
	assert.Empty(t, f.mem.AllAttendance())
	require.NoError(t, f.director.DeletePendingAttendance(context.Background(), req.SessionID))
	require.NoError(t, f.director.DeletePendingAttendance(context.Background(), uuid.New().String()))
}

func TestSaveAttendanceInvalid(t *testing.T) {
	f := newFixture(t, nil)
	sel := []model.Selection{{PersonID: 2, GroupID: 10, LocationID: 101, ScheduleID: 1}}

	tests := []struct {
		name       string
		req        model.SessionRequest
		selections []model.Selection
		kiosk      uint
		notFound   bool
	}{
		{name: "пустой идентификатор сессии", req: model.SessionRequest{}, selections: sel},
		{name: "нет выборов", req: request(false)},
		{name: "неподходящая группа", req: request(false), selections: []model.Selection{{PersonID: 1, GroupID: 10, LocationID: 101, ScheduleID: 1}}},
		{name: "неполный выбор", req: request(false), selections: []model.Selection{{PersonID: 2}}},
		{name: "неизвестный киоск", req: request(false), selections: sel, kiosk: 42, notFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.session(t).SaveAttendance(context.Background(), tt.req, tt.selections, tt.kiosk, "")
			if tt.notFound {
				assert.True(t, errors.IsNotFound(err), "%v", err)
			} else {
				assert.True(t, errors.IsNotValid(err), "%v", err)
			}
		})
	}
	assert.Empty(t, f.mem.AllAttendance())
}

func TestSaveAttendancePartialLabels(t *testing.T) {
	f := newFixture(t, func(c *model.Configuration) {
		c.Labels = []model.LabelTemplate{
			{Key: "name", Kind: model.LabelPerson, Content: "{{if eq .Person.FirstName \"Tim\"}}{{.Missing}}{{end}}{{.Name}}"},
		}
	})
	res, err := f.session(t).SaveAttendance(context.Background(), request(false), []model.Selection{
		{PersonID: 2, GroupID: 10, LocationID: 101, ScheduleID: 1},
		{PersonID: 3, GroupID: 12, LocationID: 103, ScheduleID: 1},
	}, 5, "")
	require.NoError(t, err)
	assert.Len(t, res.Attendances, 2)
	require.Len(t, res.Labels, 1)
	assert.Equal(t, uint(2), res.Labels[0].PersonID)

	warnings := 0
	for _, msg := range res.Messages {
		if msg.Type == model.MessageWarning {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t, nil)
	saved, err := f.session(t).SaveAttendance(context.Background(), request(false), []model.Selection{
		{PersonID: 2, GroupID: 10, LocationID: 101, ScheduleID: 1},
	}, 5, "")
	require.NoError(t, err)
	id := saved.Attendances[0].ID
	*f.clock = now.Add(time.Hour)

	s := f.session(t)
	res, err := s.Checkout(context.Background(), request(false), []uint{id}, 5)
	require.NoError(t, err)
	require.Len(t, res.Attendances, 1)
	require.NotNil(t, res.Attendances[0].EndAt)
	assert.True(t, now.Add(time.Hour).Equal(*res.Attendances[0].EndAt))
	require.Len(t, res.Labels, 1)
	assert.Equal(t, "bye", res.Labels[0].Key)
	assert.Equal(t, StateCheckedOut, s.State())
	assert.Equal(t, ActionCheckout, f.feed.events[len(f.feed.events)-1].Action)

	// Повторный выход - только сообщение
	res, err = f.session(t).Checkout(context.Background(), request(false), []uint{id}, 5)
	require.NoError(t, err)
	assert.Empty(t, res.Attendances)
	assert.Equal(t, model.MessageInfo, res.Messages[0].Type)

	_, err = f.session(t).Checkout(context.Background(), request(false), []uint{999}, 5)
	assert.True(t, errors.IsNotValid(err))
	_, err = f.session(t).Checkout(context.Background(), request(false), nil, 5)
	assert.True(t, errors.IsNotValid(err))

	pending := f.mem.AddAttendance(model.Attendance{SessionID: uuid.New().String(), PersonID: 3, LocationID: 103, IsPending: true, StartAt: now})
	_, err = f.session(t).Checkout(context.Background(), request(false), []uint{pending.ID}, 5)
	assert.True(t, errors.IsNotValid(err))
}

func TestCheckoutNotAllowed(t *testing.T) {
	f := newFixture(t, func(c *model.Configuration) { c.AllowCheckout = false })
	a := f.mem.AddAttendance(model.Attendance{PersonID: 2, LocationID: 101, StartAt: now})
	_, err := f.session(t).Checkout(context.Background(), request(false), []uint{a.ID}, 5)
	assert.True(t, errors.IsNotValid(err))
	assert.Nil(t, f.mem.AllAttendance()[0].EndAt)
}

func TestKioskStatus(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name      string
		at        time.Time
		state     model.KioskState
		nextOpen  time.Time
		nextClose time.Time
	}{
		{
			name:      "идёт регистрация",
			at:        now,
			state:     model.KioskOpen,
			nextOpen:  time.Date(2026, 10, 25, 9, 30, 0, 0, time.UTC),
			nextClose: time.Date(2026, 10, 18, 11, 30, 0, 0, time.UTC),
		},
		{
			name:      "откроется сегодня",
			at:        time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC),
			state:     model.KioskFuture,
			nextOpen:  time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
			nextClose: time.Date(2026, 10, 18, 11, 30, 0, 0, time.UTC),
		},
		{
			name:      "закрыт до следующей недели",
			at:        time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
			state:     model.KioskClosed,
			nextOpen:  time.Date(2026, 10, 25, 9, 30, 0, 0, time.UTC),
			nextClose: time.Date(2026, 10, 25, 11, 30, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*f.clock = tt.at
			st, err := f.director.KioskStatus(5, []uint{1})
			require.NoError(t, err)
			assert.Equal(t, tt.state, st.State)
			assert.Equal(t, tt.state == model.KioskOpen, st.IsOpen)
			require.NotNil(t, st.NextOpen)
			require.NotNil(t, st.NextClose)
			assert.True(t, tt.nextOpen.Equal(*st.NextOpen), "%v", st.NextOpen)
			assert.True(t, tt.nextClose.Equal(*st.NextClose), "%v", st.NextClose)
			require.Len(t, st.Areas, 1)
			assert.Equal(t, st.IsOpen, st.Areas[0].IsOpen)
		})
	}

	_, err := f.director.KioskStatus(42, []uint{1})
	assert.True(t, errors.IsNotFound(err))
	_, err = f.director.KioskStatus(5, []uint{42})
	assert.True(t, errors.IsNotFound(err))
}
