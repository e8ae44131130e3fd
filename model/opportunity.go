package model

// Opportunity возможность регистрации: группа, помещение и расписание
type Opportunity struct {
	AreaID       uint
	AreaName     string
	GroupID      uint
	GroupName    string
	LocationID   uint
	LocationName string
	CampusID     uint
	ScheduleID   uint
	ScheduleName string
	Window       Window

	// Количество критериев группы, которым персона соответствует явно
	Confidence int
	// Помещение находится на площадке киоска
	IsPreferred bool

	// Текущее количество присутствующих и действующий порог (0 - без ограничения)
	Count     int
	Threshold int
}

// Matches возможность соответствует выбору
func (m Opportunity) Matches(s Selection) bool {
	return m.GroupID == s.GroupID && m.LocationID == s.LocationID && m.ScheduleID == s.ScheduleID
}

// Attendee посетитель в рамках сессии и доступные ему возможности
type Attendee struct {
	Person        Person
	Opportunities []Opportunity
	// Открытые посещения персоны на сегодня
	CurrentAttendance []Attendance
}

// FamilyMatch результат поиска семьи
type FamilyMatch struct {
	Family      Family
	Relevance   int
	CampusMatch bool
}
