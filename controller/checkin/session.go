package checkin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/checkin/server/controller/label"
	"github.com/kirsrus/checkin/server/controller/opportunity"
	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/store"
)

// State состояние сессии
type State string

const (
	StateCreated        State = "created"
	StateSearched       State = "searched"
	StateLoaded         State = "loaded"
	StateSaved          State = "saved"
	StateConfirmPending State = "confirm_pending"
	StateConfirmed      State = "confirmed"
	StateCheckedOut     State = "checked_out"
)

// События ленты регистраций
const (
	ActionCheckIn  = "checkin"
	ActionCheckout = "checkout"
)

// Session сессия одного шага регистрации. Создаётся через Director.NewSession,
// не используется одновременно из нескольких горутин
type Session struct {
	director      *Director
	configuration model.Configuration
	log           *logrus.Entry

	state    State
	override bool

	areas     []model.Area
	kiosk     *model.Device
	attendees []model.Attendee
}

// Configuration шаблон сессии
func (m *Session) Configuration() model.Configuration {
	return m.configuration
}

// State текущее состояние сессии
func (m *Session) State() State {
	return m.state
}

// IsOverrideEnabled включено ли переопределение ограничений
func (m *Session) IsOverrideEnabled() bool {
	return m.override
}

// Attendees загруженные участники с возможностями
func (m *Session) Attendees() []model.Attendee {
	return m.attendees
}

// region Поиск

// Search поиск семей. Результат упорядочен: совпадение площадки sortCampusID (если задана),
// релевантность, название, идентификатор
func (m *Session) Search(ctx context.Context, term string, searchType model.SearchType, sortCampusID uint) ([]model.FamilyMatch, error) {
	if searchType == "" {
		searchType = m.configuration.SearchType
	}
	if !searchType.IsValid() {
		return nil, errors.NotValidf("тип поиска %q", searchType)
	}
	normalized := normalizeTerm(term, searchType)
	if normalized == "" {
		return nil, errors.NotValidf("пустой поисковый запрос")
	}
	if searchType != model.SearchByFamilyID && utf8.RuneCountInString(normalized) < m.configuration.MinSearchLength {
		return nil, errors.NotValidf("поисковый запрос короче %d символов", m.configuration.MinSearchLength)
	}

	candidates, err := m.director.dbStore.SearchFamilies(ctx, store.FamilyQuery{Type: searchType, Term: normalized})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка поиска семей")
	}

	res := make([]model.FamilyMatch, 0, len(candidates))
	for _, f := range candidates {
		f.Members = m.visibleMembers(f.Members)
		if len(f.Members) == 0 {
			continue
		}
		score := relevance(f, normalized, searchType)
		if score == 0 {
			continue
		}
		res = append(res, model.FamilyMatch{
			Family:      f,
			Relevance:   score,
			CampusMatch: sortCampusID != 0 && f.CampusID == sortCampusID,
		})
	}
	sort.SliceStable(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if a.CampusMatch != b.CampusMatch {
			return a.CampusMatch
		}
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if c := strings.Compare(strings.ToLower(a.Family.Name), strings.ToLower(b.Family.Name)); c != 0 {
			return c < 0
		}
		return a.Family.ID < b.Family.ID
	})
	if limit := m.configuration.MaxSearchResults; limit > 0 && len(res) > limit {
		res = res[:limit]
	}

	m.state = StateSearched
	m.log.Debugf("поиск %q (%s): найдено %d", term, searchType, len(res))
	return res, nil
}

// Участники, видимые в сессии. Неактивные скрываются, если так требует шаблон
// и не включено переопределение
func (m *Session) visibleMembers(members []model.Person) []model.Person {
	if !m.configuration.PreventInactivePeople || m.override {
		return members
	}
	res := make([]model.Person, 0, len(members))
	for _, p := range members {
		if p.IsActive {
			res = append(res, p)
		}
	}
	return res
}

// endregion
// region Загрузка участников

// LoadFamily загружает членов семьи и их возможности регистрации. Пустой areaIDs - все
// области шаблона
func (m *Session) LoadFamily(ctx context.Context, familyID uint, areaIDs []uint, kioskID uint) ([]model.Attendee, error) {
	areas, kiosk, err := m.prepare(areaIDs, kioskID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	family, err := m.director.dbStore.Family(ctx, familyID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotValid(err, "семья не найдена")
		}
		return nil, errors.Annotate(err, "ошибка загрузки семьи")
	}
	members := m.visibleMembers(family.Members)
	if len(members) == 0 {
		return nil, errors.NotValidf("в семье %q нет участников для регистрации", family.Name)
	}

	attendees, err := m.resolve(ctx, members, areas, kiosk)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m.areas, m.kiosk, m.attendees = areas, kiosk, attendees
	m.state = StateLoaded
	return attendees, nil
}

// LoadPerson загружает одного участника. familyID (если задан) должен совпадать с семьёй персоны
func (m *Session) LoadPerson(ctx context.Context, personID, familyID uint, areaIDs []uint, kioskID uint) (*model.Attendee, error) {
	areas, kiosk, err := m.prepare(areaIDs, kioskID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	person, err := m.director.dbStore.Person(ctx, personID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotValid(err, "персона не найдена")
		}
		return nil, errors.Annotate(err, "ошибка загрузки персоны")
	}
	if familyID != 0 && person.FamilyID != familyID {
		return nil, errors.NotValidf("персона %d не входит в семью %d", personID, familyID)
	}
	if len(m.visibleMembers([]model.Person{*person})) == 0 {
		return nil, errors.NotValidf("персона %q неактивна", person.DisplayName())
	}

	attendees, err := m.resolve(ctx, []model.Person{*person}, areas, kiosk)
	if err != nil {
		return nil, errors.Trace(err)
	}
	attendee := attendees[0]

	replaced := false
	for i := range m.attendees {
		if m.attendees[i].Person.ID == person.ID {
			m.attendees[i] = attendee
			replaced = true
		}
	}
	if !replaced {
		m.attendees = append(m.attendees, attendee)
	}
	m.areas, m.kiosk = areas, kiosk
	m.state = StateLoaded
	return &attendee, nil
}

// Области и киоск запроса
func (m *Session) prepare(areaIDs []uint, kioskID uint) ([]model.Area, *model.Device, error) {
	if len(areaIDs) == 0 {
		areaIDs = m.configuration.AreaIDs
	}
	areas, err := m.director.Areas(areaIDs)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	kiosk, err := m.director.optionalKiosk(kioskID)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return areas, kiosk, nil
}

// Вычисление возможностей для персон по текущему снимку данных
func (m *Session) resolve(ctx context.Context, people []model.Person, areas []model.Area, kiosk *model.Device) ([]model.Attendee, error) {
	snap, err := m.snapshot(ctx, people, areas)
	if err != nil {
		return nil, errors.Trace(err)
	}
	res := make([]model.Attendee, 0, len(people))
	for _, p := range people {
		res = append(res, model.Attendee{
			Person:            p,
			Opportunities:     opportunity.Resolve(snap.input(m, p, areas, kiosk)),
			CurrentAttendance: snap.open[p.ID],
		})
	}
	return res, nil
}

// Снимок изменяемых данных для вычисления возможностей
type snapshot struct {
	now    time.Time
	open   map[uint][]model.Attendance
	counts map[uint]int
}

func (m *Session) snapshot(ctx context.Context, people []model.Person, areas []model.Area) (*snapshot, error) {
	now := m.director.Now()
	since := now.Add(-openAttendanceWindow)

	ids := make([]uint, 0, len(people))
	for _, p := range people {
		ids = append(ids, p.ID)
	}
	open, err := m.director.dbStore.OpenAttendance(ctx, ids, since)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка загрузки текущих посещений")
	}
	counts, err := m.director.dbStore.LocationCounts(ctx, opportunity.LocationIDs(areas), since)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка загрузки заполненности помещений")
	}

	res := &snapshot{now: now, open: make(map[uint][]model.Attendance), counts: counts}
	for _, a := range open {
		res.open[a.PersonID] = append(res.open[a.PersonID], a)
	}
	return res, nil
}

func (m *snapshot) input(s *Session, p model.Person, areas []model.Area, kiosk *model.Device) opportunity.Input {
	return opportunity.Input{
		Now:            m.now,
		Configuration:  s.configuration,
		Areas:          areas,
		Person:         p,
		Kiosk:          kiosk,
		OpenAttendance: m.open[p.ID],
		LocationCounts: m.counts,
		Override:       s.override,
	}
}

// endregion
// region Сохранение и подтверждение

// SaveAttendance сохраняет выбранные возможности участников. Каждый выбор проверяется
// по свежему вычислению возможностей, недопустимые попадают в предупреждения.
// Pending-сохранение не печатает этикеток (Labels == nil)
func (m *Session) SaveAttendance(ctx context.Context, req model.SessionRequest, selections []model.Selection, kioskID uint, originAddress string) (*model.AttendanceResult, error) {
	if err := m.director.validator.Validate(&req); err != nil {
		return nil, errors.NewNotValid(err, "некорректный идентификатор сессии")
	}
	kiosk, err := m.director.optionalKiosk(kioskID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(selections) == 0 {
		return nil, errors.NotValidf("не выбрано ни одной группы")
	}

	_, committed, err := m.director.dbStore.SessionCounts(ctx, req.SessionID)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка проверки сессии")
	}
	if req.IsPending && committed > 0 {
		return nil, errors.NotValidf("сессия %s уже подтверждена", req.SessionID)
	}

	areas := m.areas
	if len(areas) == 0 {
		if areas, err = m.director.Areas(m.configuration.AreaIDs); err != nil {
			return nil, errors.Trace(err)
		}
	}

	result := &model.AttendanceResult{Messages: make([]model.Message, 0), Attendances: make([]model.Attendance, 0)}
	people, err := m.selectionPeople(ctx, selections, result)
	if err != nil {
		return nil, errors.Trace(err)
	}
	snap, err := m.snapshot(ctx, people, areas)
	if err != nil {
		return nil, errors.Trace(err)
	}

	code, err := securityCode(m.configuration.SecurityCodeLength)
	if err != nil {
		return nil, errors.Trace(err)
	}
	now := snap.now
	byPerson := make(map[uint]model.Person, len(people))
	for _, p := range people {
		byPerson[p.ID] = p
	}

	records := make([]model.Attendance, 0, len(selections))
	items := make([]label.Item, 0, len(selections))
	for _, sel := range selections {
		sel := sel
		if err := m.director.validator.Validate(&sel); err != nil {
			result.AddWarning(fmt.Sprintf("некорректный выбор: %s", err))
			continue
		}
		person, ok := byPerson[sel.PersonID]
		if !ok {
			continue
		}
		var chosen *model.Opportunity
		for _, o := range opportunity.Resolve(snap.input(m, person, areas, kiosk)) {
			if o.Matches(sel) {
				o := o
				chosen = &o
				break
			}
		}
		if chosen == nil {
			result.AddWarning(fmt.Sprintf("%s: выбранная группа недоступна", person.DisplayName()))
			continue
		}

		record := model.Attendance{
			SessionID:       req.SessionID,
			ConfigurationID: m.configuration.ID,
			PersonID:        person.ID,
			GroupID:         chosen.GroupID,
			LocationID:      chosen.LocationID,
			ScheduleID:      chosen.ScheduleID,
			CampusID:        chosen.CampusID,
			OriginAddress:   originAddress,
			SecurityCode:    code,
			StartAt:         now,
			IsPending:       req.IsPending,
		}
		if kiosk != nil {
			record.KioskID = kiosk.ID
		}
		records = append(records, record)
		items = append(items, label.Item{Person: person, Opportunity: *chosen})

		// Следующие выборы учитывают уже принятые
		snap.counts[chosen.LocationID]++
		snap.open[person.ID] = append(snap.open[person.ID], record)
	}
	if len(records) == 0 {
		return nil, errors.NotValidf("нет допустимых выборов: %s", joinMessages(result.Messages))
	}

	saved, err := m.director.dbStore.SaveAttendance(ctx, req.SessionID, records)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка сохранения посещений")
	}
	result.Attendances = saved
	for i := range items {
		items[i].Attendance = saved[i]
		_, items[i].LocationPrinter = m.director.describe(m.configuration, saved[i])
	}

	if req.IsPending {
		result.AddInfo(fmt.Sprintf("подготовлено регистраций: %d", len(saved)))
		m.state = StateConfirmPending
		m.log.Debugf("сессия %s: подготовлено %d", req.SessionID, len(saved))
		return result, nil
	}

	result.AddInfo(fmt.Sprintf("зарегистрировано: %d", len(saved)))
	m.printCheckIn(ctx, result, items, kiosk)
	m.director.publish(ActionCheckIn, saved)
	m.state = StateSaved
	m.log.Infof("сессия %s: зарегистрировано %d", req.SessionID, len(saved))
	return result, nil
}

// Персоны выборов. Неизвестные персоны попадают в предупреждения
func (m *Session) selectionPeople(ctx context.Context, selections []model.Selection, result *model.AttendanceResult) ([]model.Person, error) {
	loaded := make(map[uint]model.Person, len(m.attendees))
	for _, a := range m.attendees {
		loaded[a.Person.ID] = a.Person
	}
	res := make([]model.Person, 0, len(selections))
	seen := make(map[uint]bool)
	for _, sel := range selections {
		if sel.PersonID == 0 || seen[sel.PersonID] {
			continue
		}
		seen[sel.PersonID] = true
		if p, ok := loaded[sel.PersonID]; ok {
			res = append(res, p)
			continue
		}
		p, err := m.director.dbStore.Person(ctx, sel.PersonID)
		if err != nil {
			if errors.IsNotFound(err) {
				result.AddWarning(fmt.Sprintf("персона %d не найдена", sel.PersonID))
				continue
			}
			return nil, errors.Annotate(err, "ошибка загрузки персоны")
		}
		if len(m.visibleMembers([]model.Person{*p})) == 0 {
			result.AddWarning(fmt.Sprintf("%s: персона неактивна", p.DisplayName()))
			continue
		}
		res = append(res, *p)
	}
	return res, nil
}

// ConfirmAttendance переводит неподтверждённые записи сессии в подтверждённые и печатает этикетки
func (m *Session) ConfirmAttendance(ctx context.Context, sessionID string, kioskID uint) (*model.AttendanceResult, error) {
	if err := m.director.validator.ValidateVar(sessionID, "required,uuid"); err != nil {
		return nil, errors.NewNotValid(err, "некорректный идентификатор сессии")
	}
	kiosk, err := m.director.optionalKiosk(kioskID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	confirmed, err := m.director.dbStore.ConfirmPending(ctx, sessionID)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка подтверждения сессии")
	}
	if len(confirmed) == 0 {
		return nil, errors.NotValidf("нет ожидающей подтверждения сессии %s", sessionID)
	}
	// Этикетки печатаются по шаблону, которым записи подготовлены
	if id := confirmed[0].ConfigurationID; id != "" && id != m.configuration.ID {
		if c, err := m.director.Configuration(id); err != nil {
			m.log.Warnf("сессия %s: шаблон %s недоступен: %v", sessionID, id, err)
		} else {
			m.configuration = *c
			m.log = m.director.log.WithField("configuration", c.ID)
		}
	}

	result := &model.AttendanceResult{Messages: make([]model.Message, 0), Attendances: confirmed}
	result.AddInfo(fmt.Sprintf("подтверждено регистраций: %d", len(confirmed)))

	items, err := m.labelItems(ctx, confirmed, result)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m.printCheckIn(ctx, result, items, kiosk)
	m.director.publish(ActionCheckIn, confirmed)
	m.state = StateConfirmed
	m.log.Infof("сессия %s: подтверждено %d", sessionID, len(confirmed))
	return result, nil
}

// endregion
// region Выход

// Checkout завершает посещения attendanceIDs. Уже завершённые попадают в сообщения,
// неподтверждённые и неизвестные - ошибка
func (m *Session) Checkout(ctx context.Context, req model.SessionRequest, attendanceIDs []uint, kioskID uint) (*model.AttendanceResult, error) {
	if err := m.director.validator.Validate(&req); err != nil {
		return nil, errors.NewNotValid(err, "некорректный идентификатор сессии")
	}
	if !m.configuration.AllowCheckout {
		return nil, errors.NotValidf("шаблон %s не допускает выход", m.configuration.ID)
	}
	kiosk, err := m.director.optionalKiosk(kioskID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(attendanceIDs) == 0 {
		return nil, errors.NotValidf("не выбрано ни одного посещения")
	}

	records, err := m.director.dbStore.Attendances(ctx, attendanceIDs)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка загрузки посещений")
	}
	found := make(map[uint]model.Attendance, len(records))
	for _, r := range records {
		found[r.ID] = r
	}

	result := &model.AttendanceResult{Messages: make([]model.Message, 0), Attendances: make([]model.Attendance, 0)}
	open := make([]uint, 0, len(attendanceIDs))
	for _, id := range attendanceIDs {
		r, ok := found[id]
		switch {
		case !ok:
			return nil, errors.NotValidf("посещение %d не найдено", id)
		case r.IsPending:
			return nil, errors.NotValidf("посещение %d не подтверждено", id)
		case r.EndAt != nil:
			result.AddInfo(fmt.Sprintf("посещение %d уже завершено", id))
		default:
			open = append(open, id)
		}
	}

	if len(open) > 0 {
		changed, err := m.director.dbStore.Checkout(ctx, open, m.director.Now())
		if err != nil {
			return nil, errors.Annotate(err, "ошибка завершения посещений")
		}
		result.Attendances = changed
		result.AddInfo(fmt.Sprintf("завершено посещений: %d", len(changed)))
	}

	items, err := m.labelItems(ctx, result.Attendances, result)
	if err != nil {
		return nil, errors.Trace(err)
	}
	labels := m.director.labels.CheckoutLabels(ctx, m.labelRequest(items, kiosk))
	m.applyLabels(result, labels)
	m.director.publish(ActionCheckout, result.Attendances)
	m.state = StateCheckedOut
	return result, nil
}

// endregion
// region Этикетки

func (m *Session) labelRequest(items []label.Item, kiosk *model.Device) label.Request {
	return label.Request{
		Configuration: m.configuration,
		Items:         items,
		Kiosk:         kiosk,
		Transport:     m.director.transport,
		Deadline:      m.director.labelDeadline,
		Now:           m.director.Now(),
	}
}

func (m *Session) printCheckIn(ctx context.Context, result *model.AttendanceResult, items []label.Item, kiosk *model.Device) {
	labels := m.director.labels.CheckInLabels(ctx, m.labelRequest(items, kiosk))
	m.applyLabels(result, labels)
}

// Клиенту уходят только сформированные этикетки, ошибки становятся предупреждениями
func (m *Session) applyLabels(result *model.AttendanceResult, labels []model.ClientLabel) {
	result.Labels = label.Successful(labels)
	for _, msg := range label.Failed(labels) {
		result.AddWarning("этикетка " + msg)
	}
}

// Данные для этикеток по сохранённым посещениям
func (m *Session) labelItems(ctx context.Context, records []model.Attendance, result *model.AttendanceResult) ([]label.Item, error) {
	people := make(map[uint]model.Person)
	for _, a := range m.attendees {
		people[a.Person.ID] = a.Person
	}
	items := make([]label.Item, 0, len(records))
	for _, r := range records {
		person, ok := people[r.PersonID]
		if !ok {
			p, err := m.director.dbStore.Person(ctx, r.PersonID)
			if err != nil {
				if errors.IsNotFound(err) {
					result.AddWarning(fmt.Sprintf("этикетка: персона %d не найдена", r.PersonID))
					continue
				}
				return nil, errors.Annotate(err, "ошибка загрузки персоны")
			}
			person = *p
			people[person.ID] = person
		}
		o, printer := m.director.describe(m.configuration, r)
		items = append(items, label.Item{Attendance: r, Person: person, Opportunity: o, LocationPrinter: printer})
	}
	return items, nil
}

// endregion

func joinMessages(messages []model.Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, msg.Text)
	}
	return strings.Join(parts, "; ")
}
