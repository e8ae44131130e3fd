package model

import "time"

// KioskState состояние киоска
type KioskState string

const (
	KioskOpen KioskState = "open"
	// Сегодня регистрация ещё будет
	KioskFuture KioskState = "future"
	KioskClosed KioskState = "closed"
)

// AreaStatus состояние области на киоске
type AreaStatus struct {
	AreaID   uint
	AreaName string
	IsOpen   bool
}

// KioskStatus состояние киоска с ближайшими переходами для обратного отсчёта
type KioskStatus struct {
	KioskID   uint
	State     KioskState
	IsOpen    bool
	At        time.Time
	NextOpen  *time.Time
	NextClose *time.Time
	Areas     []AreaStatus
}
