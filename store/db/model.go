package db

import (
	"strconv"
	"strings"
	"time"

	"github.com/kirsrus/checkin/server/model"
)

type (
	// GormModelUnscoped модель эквивалент gorm.Model без сохранения удалений
	GormModelUnscoped struct {
		ID        uint `gorm:"primaryKey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Campus площадка
	Campus struct {
		GormModelUnscoped
		Name string
	}
)

// TableName имя таблицы
func (Campus) TableName() string {
	return "campuses"
}

type (
	// Family семья
	Family struct {
		GormModelUnscoped
		Name     string `gorm:"index"`
		CampusID uint
	}

	// Person описывает персону
	Person struct {
		GormModelUnscoped
		FamilyID    uint `gorm:"index"`
		CampusID    uint
		FirstName   string
		NickName    string
		LastName    string `gorm:"index"`
		BirthDate   *time.Time
		Grade       *int
		Gender      string
		PhoneNumber string `gorm:"index"`
		Allergy     string
		IsActive    bool
	}

	// PersonalDevice персональное устройство (телефон) персоны
	PersonalDevice struct {
		GormModelUnscoped
		PersonID  uint   `gorm:"index"`
		DeviceKey string `gorm:"uniqueIndex"`
	}
)

// TableName имя таблицы
func (Family) TableName() string {
	return "families"
}

// TableName имя таблицы
func (Person) TableName() string {
	return "persons"
}

// TableName имя таблицы
func (PersonalDevice) TableName() string {
	return "personal_devices"
}

// ToFamily маппинг в model.Family (без членов семьи)
func (m Family) ToFamily() model.Family {
	return model.Family{ID: m.ID, Name: m.Name, CampusID: m.CampusID}
}

// ToPerson маппинг данных в структуру Person
func (m Person) ToPerson() model.Person {
	return model.Person{
		ID:          m.ID,
		FamilyID:    m.FamilyID,
		CampusID:    m.CampusID,
		FirstName:   m.FirstName,
		NickName:    m.NickName,
		LastName:    m.LastName,
		BirthDate:   m.BirthDate,
		Grade:       m.Grade,
		Gender:      model.Gender(m.Gender),
		PhoneNumber: m.PhoneNumber,
		Allergy:     m.Allergy,
		IsActive:    m.IsActive,
	}
}

// FromPerson заполняет текущую структуру из структуры model.Person
func (m *Person) FromPerson(person model.Person) {
	*m = Person{
		GormModelUnscoped: GormModelUnscoped{ID: person.ID},
		FamilyID:          person.FamilyID,
		CampusID:          person.CampusID,
		FirstName:         person.FirstName,
		NickName:          person.NickName,
		LastName:          person.LastName,
		BirthDate:         person.BirthDate,
		Grade:             person.Grade,
		Gender:            string(person.Gender),
		PhoneNumber:       person.PhoneNumber,
		Allergy:           person.Allergy,
		IsActive:          person.IsActive,
	}
}

type (
	// Area область регистрации
	Area struct {
		GormModelUnscoped
		Name  string
		Order int `gorm:"column:sort_order"`
	}

	// Group группа области
	Group struct {
		GormModelUnscoped
		AreaID   uint `gorm:"index"`
		Name     string
		Order    int `gorm:"column:sort_order"`
		MinAge   *int
		MaxAge   *int
		MinGrade *int
		MaxGrade *int
		Gender   string
	}

	// Location помещение
	Location struct {
		GormModelUnscoped
		Name           string
		CampusID       uint
		SoftThreshold  int
		HardThreshold  int
		PrinterAddress string
		BeaconMajor    *int
		BeaconMinor    *int
		IsActive       bool
	}

	// Schedule расписание. Дни недели хранятся строкой "0,6"
	Schedule struct {
		GormModelUnscoped
		Name               string
		Weekdays           string
		StartMinute        int
		DurationMinutes    int
		CheckInStartOffset int
		CheckInEndOffset   int
		IsActive           bool
	}

	// GroupSchedule связь группа - помещение - расписание
	GroupSchedule struct {
		GroupID    uint `gorm:"primaryKey"`
		LocationID uint `gorm:"primaryKey"`
		ScheduleID uint `gorm:"primaryKey"`
	}
)

// TableName имя таблицы
func (Area) TableName() string {
	return "areas"
}

// TableName имя таблицы
func (Group) TableName() string {
	return "groups"
}

// TableName имя таблицы
func (Location) TableName() string {
	return "locations"
}

// TableName имя таблицы
func (Schedule) TableName() string {
	return "schedules"
}

// TableName имя таблицы
func (GroupSchedule) TableName() string {
	return "group_schedules"
}

// ToGroup маппинг в model.Group (без помещений)
func (m Group) ToGroup() model.Group {
	return model.Group{
		ID:       m.ID,
		AreaID:   m.AreaID,
		Name:     m.Name,
		Order:    m.Order,
		MinAge:   m.MinAge,
		MaxAge:   m.MaxAge,
		MinGrade: m.MinGrade,
		MaxGrade: m.MaxGrade,
		Gender:   model.Gender(m.Gender),
	}
}

// ToLocation маппинг в model.Location
func (m Location) ToLocation() model.Location {
	return model.Location{
		ID:             m.ID,
		Name:           m.Name,
		CampusID:       m.CampusID,
		SoftThreshold:  m.SoftThreshold,
		HardThreshold:  m.HardThreshold,
		PrinterAddress: m.PrinterAddress,
		BeaconMajor:    m.BeaconMajor,
		BeaconMinor:    m.BeaconMinor,
		IsActive:       m.IsActive,
	}
}

// ToSchedule маппинг в model.Schedule
func (m Schedule) ToSchedule() model.Schedule {
	days := splitUints(m.Weekdays)
	weekdays := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if d <= uint(time.Saturday) {
			weekdays = append(weekdays, time.Weekday(d))
		}
	}
	return model.Schedule{
		ID:                 m.ID,
		Name:               m.Name,
		Weekdays:           weekdays,
		StartMinute:        m.StartMinute,
		DurationMinutes:    m.DurationMinutes,
		CheckInStartOffset: m.CheckInStartOffset,
		CheckInEndOffset:   m.CheckInEndOffset,
		IsActive:           m.IsActive,
	}
}

// FromSchedule заполняет текущую структуру из model.Schedule
func (m *Schedule) FromSchedule(s model.Schedule) {
	days := make([]uint, 0, len(s.Weekdays))
	for _, d := range s.Weekdays {
		days = append(days, uint(d))
	}
	*m = Schedule{
		GormModelUnscoped:  GormModelUnscoped{ID: s.ID},
		Name:               s.Name,
		Weekdays:           joinUints(days),
		StartMinute:        s.StartMinute,
		DurationMinutes:    s.DurationMinutes,
		CheckInStartOffset: s.CheckInStartOffset,
		CheckInEndOffset:   s.CheckInEndOffset,
		IsActive:           s.IsActive,
	}
}

type (
	// Device устройство (киоск, принтер, прокси). Помещения хранятся строкой "1,2,3"
	Device struct {
		GormModelUnscoped
		Name           string
		Kind           string
		CampusID       uint
		IPAddress      string
		PrinterAddress string `gorm:"index"`
		ProxyDeviceID  uint
		LocationIDs    string
	}
)

// TableName имя таблицы
func (Device) TableName() string {
	return "devices"
}

// ToDevice маппинг в model.Device
func (m Device) ToDevice() model.Device {
	return model.Device{
		ID:             m.ID,
		Name:           m.Name,
		Kind:           model.DeviceKind(m.Kind),
		CampusID:       m.CampusID,
		IPAddress:      m.IPAddress,
		PrinterAddress: m.PrinterAddress,
		ProxyDeviceID:  m.ProxyDeviceID,
		LocationIDs:    splitUints(m.LocationIDs),
	}
}

// FromDevice заполняет текущую структуру из model.Device
func (m *Device) FromDevice(d model.Device) {
	*m = Device{
		GormModelUnscoped: GormModelUnscoped{ID: d.ID},
		Name:              d.Name,
		Kind:              string(d.Kind),
		CampusID:          d.CampusID,
		IPAddress:         d.IPAddress,
		PrinterAddress:    d.PrinterAddress,
		ProxyDeviceID:     d.ProxyDeviceID,
		LocationIDs:       joinUints(d.LocationIDs),
	}
}

type (
	// Attendance запись посещения. Pending-записи сессии хранятся в той же таблице
	Attendance struct {
		GormModelUnscoped
		SessionID       string `gorm:"index"`
		ConfigurationID string
		PersonID        uint `gorm:"index"`
		GroupID         uint
		LocationID      uint `gorm:"index"`
		ScheduleID      uint
		CampusID        uint
		KioskID         uint
		OriginAddress   string
		SecurityCode    string
		StartAt         time.Time
		EndAt           *time.Time
		IsPending       bool `gorm:"index"`
	}
)

// TableName имя таблицы
func (Attendance) TableName() string {
	return "attendance"
}

// ToAttendance маппинг в model.Attendance
func (m Attendance) ToAttendance() model.Attendance {
	return model.Attendance{
		ID:              m.ID,
		SessionID:       m.SessionID,
		ConfigurationID: m.ConfigurationID,
		PersonID:        m.PersonID,
		GroupID:         m.GroupID,
		LocationID:      m.LocationID,
		ScheduleID:      m.ScheduleID,
		CampusID:        m.CampusID,
		KioskID:         m.KioskID,
		OriginAddress:   m.OriginAddress,
		SecurityCode:    m.SecurityCode,
		StartAt:         m.StartAt,
		EndAt:           m.EndAt,
		IsPending:       m.IsPending,
		CreatedAt:       m.CreatedAt,
	}
}

// FromAttendance заполняет текущую структуру из model.Attendance (ID не переносится)
func (m *Attendance) FromAttendance(a model.Attendance) {
	*m = Attendance{
		SessionID:       a.SessionID,
		ConfigurationID: a.ConfigurationID,
		PersonID:        a.PersonID,
		GroupID:         a.GroupID,
		LocationID:      a.LocationID,
		ScheduleID:      a.ScheduleID,
		CampusID:        a.CampusID,
		KioskID:         a.KioskID,
		OriginAddress:   a.OriginAddress,
		SecurityCode:    a.SecurityCode,
		StartAt:         a.StartAt,
		EndAt:           a.EndAt,
		IsPending:       a.IsPending,
	}
}

func joinUints(values []uint) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.FormatUint(uint64(v), 10))
	}
	return strings.Join(parts, ",")
}

func splitUints(s string) []uint {
	res := make([]uint, 0)
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		res = append(res, uint(v))
	}
	return res
}
