package web

import (
	"time"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/idkey"
)

// Запросы. Числовые идентификаторы передаются ключами idkey

type searchRequest struct {
	Configuration string           `json:"configuration" conform:"trim" validate:"required"`
	Term          string           `json:"term" conform:"trim" validate:"required"`
	Type          model.SearchType `json:"type" validate:"searchtype"`
	Campus        string           `json:"campus"`
	Pin           string           `json:"pin"`
}

type familyRequest struct {
	Configuration string   `json:"configuration" conform:"trim" validate:"required"`
	Family        string   `json:"family" validate:"required"`
	Areas         []string `json:"areas"`
	Kiosk         string   `json:"kiosk"`
	Pin           string   `json:"pin"`
}

type personRequest struct {
	Configuration string   `json:"configuration" conform:"trim" validate:"required"`
	Person        string   `json:"person" validate:"required"`
	Family        string   `json:"family"`
	Areas         []string `json:"areas"`
	Kiosk         string   `json:"kiosk"`
	Pin           string   `json:"pin"`
}

type selectionRequest struct {
	Person   string `json:"person" validate:"required"`
	Group    string `json:"group" validate:"required"`
	Location string `json:"location" validate:"required"`
	Schedule string `json:"schedule" validate:"required"`
}

type attendanceRequest struct {
	Configuration string               `json:"configuration" conform:"trim" validate:"required"`
	Session       model.SessionRequest `json:"session"`
	Selections    []selectionRequest   `json:"selections" validate:"required,min=1,dive"`
	Kiosk         string               `json:"kiosk"`
	Pin           string               `json:"pin"`
}

type confirmRequest struct {
	Kiosk string `json:"kiosk"`
}

type checkoutRequest struct {
	Configuration string               `json:"configuration" conform:"trim" validate:"required"`
	Session       model.SessionRequest `json:"session"`
	Attendances   []string             `json:"attendances" validate:"required,min=1"`
	Kiosk         string               `json:"kiosk"`
}

// Ответы

type areaDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Groups int    `json:"groups"`
}

type configurationDTO struct {
	ID    string                  `json:"id"`
	Name  string                  `json:"name"`
	Kind  model.ConfigurationKind `json:"kind"`
	Areas []areaDTO               `json:"areas"`
}

type personDTO struct {
	ID          string     `json:"id"`
	Family      string     `json:"family"`
	FirstName   string     `json:"firstName"`
	NickName    string     `json:"nickName,omitempty"`
	LastName    string     `json:"lastName"`
	BirthDate   *time.Time `json:"birthDate,omitempty"`
	Grade       *int       `json:"grade,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Allergy     string     `json:"allergy,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	IsActive    bool       `json:"isActive"`
}

type familyDTO struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Relevance int         `json:"relevance"`
	Members   []personDTO `json:"members"`
}

type opportunityDTO struct {
	Area         string    `json:"area"`
	AreaName     string    `json:"areaName"`
	Group        string    `json:"group"`
	GroupName    string    `json:"groupName"`
	Location     string    `json:"location"`
	LocationName string    `json:"locationName"`
	Schedule     string    `json:"schedule"`
	ScheduleName string    `json:"scheduleName"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	IsPreferred  bool      `json:"isPreferred"`
	Confidence   int       `json:"confidence"`
	Count        int       `json:"count"`
	Threshold    int       `json:"threshold,omitempty"`
}

type attendanceDTO struct {
	ID           string     `json:"id"`
	Session      string     `json:"session"`
	Person       string     `json:"person"`
	Group        string     `json:"group"`
	Location     string     `json:"location"`
	Schedule     string     `json:"schedule"`
	SecurityCode string     `json:"securityCode"`
	StartAt      time.Time  `json:"startAt"`
	EndAt        *time.Time `json:"endAt,omitempty"`
	IsPending    bool       `json:"isPending"`
}

type attendeeDTO struct {
	Person            personDTO        `json:"person"`
	Opportunities     []opportunityDTO `json:"opportunities"`
	CurrentAttendance []attendanceDTO  `json:"currentAttendance"`
}

type labelDTO struct {
	model.ClientLabel
	Attendance string `json:"attendance,omitempty"`
	Person     string `json:"person,omitempty"`
}

type messageDTO struct {
	Type model.MessageType `json:"type"`
	Text string            `json:"text"`
}

// Labels равен null, если этикетки не формировались
type resultDTO struct {
	Messages    []messageDTO    `json:"messages"`
	Attendances []attendanceDTO `json:"attendances"`
	Labels      []labelDTO      `json:"labels"`
}

type kioskStatusDTO struct {
	Kiosk     string           `json:"kiosk"`
	State     model.KioskState `json:"state"`
	IsOpen    bool             `json:"isOpen"`
	At        time.Time        `json:"at"`
	NextOpen  *time.Time       `json:"nextOpen,omitempty"`
	NextClose *time.Time       `json:"nextClose,omitempty"`
	Areas     []areaStatusDTO  `json:"areas"`
}

type areaStatusDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsOpen bool   `json:"isOpen"`
}

type feedDTO struct {
	Action     string        `json:"action"`
	At         time.Time     `json:"at"`
	Attendance attendanceDTO `json:"attendance"`
}

// Преобразование моделей в ответы

type encoder string

func (m encoder) key(kind idkey.Kind, id uint) string {
	if id == 0 {
		return ""
	}
	return idkey.Encode(string(m), kind, id)
}

func (m encoder) person(p model.Person) personDTO {
	return personDTO{
		ID:          m.key(idkey.KindPerson, p.ID),
		Family:      m.key(idkey.KindFamily, p.FamilyID),
		FirstName:   p.FirstName,
		NickName:    p.NickName,
		LastName:    p.LastName,
		BirthDate:   p.BirthDate,
		Grade:       p.Grade,
		Gender:      string(p.Gender),
		Allergy:     p.Allergy,
		PhoneNumber: p.PhoneNumber,
		IsActive:    p.IsActive,
	}
}

func (m encoder) family(f model.FamilyMatch) familyDTO {
	res := familyDTO{
		ID:        m.key(idkey.KindFamily, f.Family.ID),
		Name:      f.Family.Name,
		Relevance: f.Relevance,
		Members:   make([]personDTO, 0, len(f.Family.Members)),
	}
	for _, p := range f.Family.Members {
		res.Members = append(res.Members, m.person(p))
	}
	return res
}

func (m encoder) opportunity(o model.Opportunity) opportunityDTO {
	return opportunityDTO{
		Area:         m.key(idkey.KindArea, o.AreaID),
		AreaName:     o.AreaName,
		Group:        m.key(idkey.KindGroup, o.GroupID),
		GroupName:    o.GroupName,
		Location:     m.key(idkey.KindLocation, o.LocationID),
		LocationName: o.LocationName,
		Schedule:     m.key(idkey.KindSchedule, o.ScheduleID),
		ScheduleName: o.ScheduleName,
		Start:        o.Window.Start,
		End:          o.Window.End,
		IsPreferred:  o.IsPreferred,
		Confidence:   o.Confidence,
		Count:        o.Count,
		Threshold:    o.Threshold,
	}
}

func (m encoder) attendance(a model.Attendance) attendanceDTO {
	return attendanceDTO{
		ID:           m.key(idkey.KindAttend, a.ID),
		Session:      a.SessionID,
		Person:       m.key(idkey.KindPerson, a.PersonID),
		Group:        m.key(idkey.KindGroup, a.GroupID),
		Location:     m.key(idkey.KindLocation, a.LocationID),
		Schedule:     m.key(idkey.KindSchedule, a.ScheduleID),
		SecurityCode: a.SecurityCode,
		StartAt:      a.StartAt,
		EndAt:        a.EndAt,
		IsPending:    a.IsPending,
	}
}

func (m encoder) attendee(a model.Attendee) attendeeDTO {
	res := attendeeDTO{
		Person:            m.person(a.Person),
		Opportunities:     make([]opportunityDTO, 0, len(a.Opportunities)),
		CurrentAttendance: make([]attendanceDTO, 0, len(a.CurrentAttendance)),
	}
	for _, o := range a.Opportunities {
		res.Opportunities = append(res.Opportunities, m.opportunity(o))
	}
	for _, r := range a.CurrentAttendance {
		res.CurrentAttendance = append(res.CurrentAttendance, m.attendance(r))
	}
	return res
}

func (m encoder) result(r *model.AttendanceResult) resultDTO {
	res := resultDTO{
		Messages:    make([]messageDTO, 0, len(r.Messages)),
		Attendances: make([]attendanceDTO, 0, len(r.Attendances)),
	}
	for _, msg := range r.Messages {
		res.Messages = append(res.Messages, messageDTO{Type: msg.Type, Text: msg.Text})
	}
	for _, a := range r.Attendances {
		res.Attendances = append(res.Attendances, m.attendance(a))
	}
	if r.Labels != nil {
		res.Labels = make([]labelDTO, 0, len(r.Labels))
		for _, l := range r.Labels {
			res.Labels = append(res.Labels, labelDTO{
				ClientLabel: l,
				Attendance:  m.key(idkey.KindAttend, l.AttendanceID),
				Person:      m.key(idkey.KindPerson, l.PersonID),
			})
		}
	}
	return res
}

func (m encoder) status(s *model.KioskStatus) kioskStatusDTO {
	res := kioskStatusDTO{
		Kiosk:     m.key(idkey.KindDevice, s.KioskID),
		State:     s.State,
		IsOpen:    s.IsOpen,
		At:        s.At,
		NextOpen:  s.NextOpen,
		NextClose: s.NextClose,
		Areas:     make([]areaStatusDTO, 0, len(s.Areas)),
	}
	for _, a := range s.Areas {
		res.Areas = append(res.Areas, areaStatusDTO{ID: m.key(idkey.KindArea, a.AreaID), Name: a.AreaName, IsOpen: a.IsOpen})
	}
	return res
}
