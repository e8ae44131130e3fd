package model

import (
	"strings"
	"time"
)

// Gender пол
type Gender string

const (
	GenderUnknown Gender = ""
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
)

// Person описывает персону
type Person struct {
	ID          uint
	FamilyID    uint
	CampusID    uint
	FirstName   string `conform:"trim" validate:"required"`
	NickName    string `conform:"trim"`
	LastName    string `conform:"trim" validate:"required"`
	BirthDate   *time.Time
	Grade       *int
	Gender      Gender
	PhoneNumber string `conform:"num"`
	// Аллергии и прочие заметки для этикетки
	Allergy  string `conform:"trim"`
	IsActive bool
}

// DisplayName отображаемое имя (с учётом уменьшительного)
func (m Person) DisplayName() string {
	first := m.FirstName
	if m.NickName != "" {
		first = m.NickName
	}
	return strings.TrimSpace(first + " " + m.LastName)
}

// FullName полное имя
func (m Person) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// Family описывает семью
type Family struct {
	ID       uint
	Name     string `conform:"trim" validate:"required"`
	CampusID uint
	Members  []Person
}

// PersonalDevice персональное устройство (телефон), присылающее события маяков
type PersonalDevice struct {
	ID        uint
	PersonID  uint
	DeviceKey string `conform:"trim" validate:"required"`
}
