package model

import "time"

// Attendance запись о посещении. Пока IsPending=true запись только подготовлена
// (не является реальным посещением) и привязана к сессии SessionID.
// ConfigurationID - шаблон, по которому запись создана
type Attendance struct {
	ID              uint
	SessionID       string
	ConfigurationID string
	PersonID        uint
	GroupID         uint
	LocationID      uint
	ScheduleID      uint
	CampusID        uint
	KioskID         uint
	OriginAddress   string
	SecurityCode    string
	StartAt         time.Time
	EndAt           *time.Time
	IsPending       bool
	CreatedAt       time.Time
}

// IsOpen посещение подтверждено и ещё не завершено выходом
func (m Attendance) IsOpen() bool {
	return !m.IsPending && m.EndAt == nil
}

// SessionRequest корреляционный токен сессии регистрации
type SessionRequest struct {
	SessionID string `json:"sessionId" conform:"trim" validate:"required,uuid"`
	IsPending bool   `json:"isPending"`
}

// Selection выбор посетителя: персона и возможность (группа, помещение, расписание)
type Selection struct {
	PersonID   uint `validate:"required"`
	GroupID    uint `validate:"required"`
	LocationID uint `validate:"required"`
	ScheduleID uint `validate:"required"`
}

// MessageType тип сообщения результата
type MessageType string

const (
	MessageInfo    MessageType = "info"
	MessageWarning MessageType = "warning"
)

// Message сообщение для показа пользователю
type Message struct {
	Type MessageType
	Text string
}

// AttendanceResult результат сохранения, подтверждения или выхода. Labels равен nil,
// если этикетки не формировались (pending)
type AttendanceResult struct {
	Messages    []Message
	Attendances []Attendance
	Labels      []ClientLabel
}

// AddInfo добавляет информационное сообщение
func (m *AttendanceResult) AddInfo(text string) {
	m.Messages = append(m.Messages, Message{Type: MessageInfo, Text: text})
}

// AddWarning добавляет предупреждение
func (m *AttendanceResult) AddWarning(text string) {
	m.Messages = append(m.Messages, Message{Type: MessageWarning, Text: text})
}

// AttendanceEvent событие изменения посещаемости для ленты помещений
type AttendanceEvent struct {
	Action     string // checkin | checkout
	At         time.Time
	Attendance Attendance
}
