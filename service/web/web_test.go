package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirsrus/checkin/server/controller/checkin"
	"github.com/kirsrus/checkin/server/controller/proximity"
	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/idkey"
	"github.com/kirsrus/checkin/server/pkg/pin"
	"github.com/kirsrus/checkin/server/store/memory"
)

const (
	secret    = "test-secret"
	jwtSecret = "jwt-secret"
)

// 2026-10-18 - воскресенье, 10:00
var now = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

func intp(v int) *int { return &v }

type testServer struct {
	t   *testing.T
	web *Web
	srv *httptest.Server
	mem *memory.Memory
}

func key(kind idkey.Kind, id uint) string { return idkey.Encode(secret, kind, id) }

// Область "Дети" с одной группой в комнате 101 (маяк 1/101), семья Smith с ребёнком Jane
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := memory.New()
	mem.SetNow(func() time.Time { return now })
	mem.AddArea(model.Area{
		ID:   1,
		Name: "Дети",
		Groups: []model.Group{{
			ID: 10, AreaID: 1, Name: "Все",
			Locations: []model.GroupLocation{{
				Location: model.Location{ID: 101, Name: "Комната 101", CampusID: 1, IsActive: true, BeaconMajor: intp(1), BeaconMinor: intp(101)},
				Schedules: []model.Schedule{{
					ID: 1, Name: "Утро", Weekdays: []time.Weekday{time.Sunday}, StartMinute: 10 * 60,
					DurationMinutes: 90, CheckInStartOffset: 30, IsActive: true,
				}},
			}},
		}},
	})
	mem.AddDevice(model.Device{ID: 5, Name: "Киоск", Kind: model.DeviceKiosk, CampusID: 1})
	mem.AddDevice(model.Device{ID: 7, Name: "Прокси", Kind: model.DeviceProxy})

	hash, err := pin.Hash("1234", pin.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16})
	require.NoError(t, err)
	mem.AddConfiguration(model.Configuration{
		ID:                      "sunday",
		Name:                    "Воскресенье",
		AreaIDs:                 []uint{1},
		SearchType:              model.SearchByName,
		PreventDuplicateCheckIn: true,
		AllowCheckout:           true,
		OverridePinHashes:       []string{hash},
		Labels:                  []model.LabelTemplate{{Key: "name", Kind: model.LabelPerson, Content: "{{.Name}}"}},
	})
	mem.AddFamily(model.Family{ID: 1, Name: "Smith", CampusID: 1, Members: []model.Person{
		{ID: 2, FirstName: "Jane", LastName: "Smith", IsActive: true},
	}})
	mem.AddPersonalDevice(model.PersonalDevice{PersonID: 2, DeviceKey: "phone-1"})

	ts := &testServer{t: t, mem: mem}
	director, err := checkin.NewDirector(checkin.ConfigDirector{
		DbStore:  mem,
		RefStore: mem,
		Feed:     feedFunc(func(e model.AttendanceEvent) { ts.web.Publish(e) }),
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	prox, err := proximity.NewDirector(proximity.ConfigDirector{
		DbStore:         mem,
		RefStore:        mem,
		Feed:            feedFunc(func(e model.AttendanceEvent) { ts.web.Publish(e) }),
		ConfigurationID: "sunday",
		Location:        time.UTC,
		Now:             func() time.Time { return now },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ts.web, err = NewWeb(ctx, &ConfigWeb{
		Director:    director,
		Proximity:   prox,
		RefStore:    mem,
		IdKeySecret: secret,
		JwtSecret:   jwtSecret,
	})
	require.NoError(t, err)
	ts.srv = httptest.NewServer(ts.web.Handler())
	t.Cleanup(ts.srv.Close)
	return ts
}

type feedFunc func(e model.AttendanceEvent)

func (f feedFunc) Publish(e model.AttendanceEvent) { f(e) }

func (m *testServer) do(method, path string, body interface{}, header http.Header, out interface{}) int {
	m.t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(m.t, err)
	}
	req, err := http.NewRequest(method, m.srv.URL+path, bytes.NewReader(data))
	require.NoError(m.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(m.t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(m.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestNewWeb(t *testing.T) {
	_, err := NewWeb(context.Background(), nil)
	assert.Error(t, err)
	_, err = NewWeb(context.Background(), &ConfigWeb{IdKeySecret: secret})
	assert.Error(t, err)
}

func TestGetConfiguration(t *testing.T) {
	ts := newTestServer(t)
	var res []configurationDTO
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/configuration?kiosk="+key(idkey.KindDevice, 5), nil, nil, &res))
	require.Len(t, res, 1)
	assert.Equal(t, "sunday", res[0].ID)
	require.Len(t, res[0].Areas, 1)
	assert.Equal(t, key(idkey.KindArea, 1), res[0].Areas[0].ID)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/configuration?kiosk=garbage", nil, nil, nil))
}

func TestSearchFamilies(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name   string
		req    searchRequest
		status int
		found  int
	}{
		{name: "по фамилии", req: searchRequest{Configuration: "sunday", Term: "smith"}, status: http.StatusOK, found: 1},
		{name: "не найдено", req: searchRequest{Configuration: "sunday", Term: "zzz"}, status: http.StatusOK},
		{name: "неизвестный шаблон", req: searchRequest{Configuration: "nope", Term: "smith"}, status: http.StatusNotFound},
		{name: "неизвестный тип", req: searchRequest{Configuration: "sunday", Term: "smith", Type: "email"}, status: http.StatusBadRequest},
		{name: "пустой запрос", req: searchRequest{Configuration: "sunday", Term: "  "}, status: http.StatusBadRequest},
		{name: "неверный PIN", req: searchRequest{Configuration: "sunday", Term: "smith", Pin: "0000"}, status: http.StatusUnauthorized},
		{name: "верный PIN", req: searchRequest{Configuration: "sunday", Term: "smith", Pin: "1234"}, status: http.StatusOK, found: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res []familyDTO
			require.Equal(t, tt.status, ts.do(http.MethodPost, "/api/search", tt.req, nil, &res))
			if tt.status == http.StatusOK {
				assert.Len(t, res, tt.found)
			}
		})
	}
}

func TestCheckInFlow(t *testing.T) {
	ts := newTestServer(t)

	var attendees []attendeeDTO
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/family", familyRequest{
		Configuration: "sunday",
		Family:        key(idkey.KindFamily, 1),
		Kiosk:         key(idkey.KindDevice, 5),
	}, nil, &attendees))
	require.Len(t, attendees, 1)
	require.Len(t, attendees[0].Opportunities, 1)
	o := attendees[0].Opportunities[0]

	session := uuid.New().String()
	var saved resultDTO
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/attendance", attendanceRequest{
		Configuration: "sunday",
		Session:       model.SessionRequest{SessionID: session},
		Selections: []selectionRequest{{
			Person: attendees[0].Person.ID, Group: o.Group, Location: o.Location, Schedule: o.Schedule,
		}},
		Kiosk: key(idkey.KindDevice, 5),
	}, nil, &saved))
	require.Len(t, saved.Attendances, 1)
	assert.NotEmpty(t, saved.Attendances[0].SecurityCode)
	require.Len(t, saved.Labels, 1)
	assert.Equal(t, "Jane Smith", string(saved.Labels[0].Data))

	// Повторная регистрация в то же помещение запрещена
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/attendance", attendanceRequest{
		Configuration: "sunday",
		Session:       model.SessionRequest{SessionID: uuid.New().String()},
		Selections: []selectionRequest{{
			Person: attendees[0].Person.ID, Group: o.Group, Location: o.Location, Schedule: o.Schedule,
		}},
	}, nil, nil))

	var out resultDTO
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/checkout", checkoutRequest{
		Configuration: "sunday",
		Session:       model.SessionRequest{SessionID: uuid.New().String()},
		Attendances:   []string{saved.Attendances[0].ID},
	}, nil, &out))
	require.Len(t, out.Attendances, 1)
	assert.NotNil(t, out.Attendances[0].EndAt)
}

func TestPendingAttendance(t *testing.T) {
	ts := newTestServer(t)
	session := uuid.New().String()
	req := attendanceRequest{
		Configuration: "sunday",
		Session:       model.SessionRequest{SessionID: session, IsPending: true},
		Selections: []selectionRequest{{
			Person:   key(idkey.KindPerson, 2),
			Group:    key(idkey.KindGroup, 10),
			Location: key(idkey.KindLocation, 101),
			Schedule: key(idkey.KindSchedule, 1),
		}},
	}
	var res resultDTO
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/attendance", req, nil, &res))
	require.Len(t, res.Attendances, 1)
	assert.True(t, res.Attendances[0].IsPending)
	assert.Nil(t, res.Labels)

	require.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/attendance/"+session, nil, nil, nil))
	assert.Empty(t, ts.mem.AllAttendance())
	// Повторное удаление - не ошибка
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/attendance/"+session, nil, nil, nil))
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodDelete, "/api/attendance/not-a-uuid", nil, nil, nil))

	session = uuid.New().String()
	req.Session.SessionID = session
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/attendance", req, nil, nil))
	var confirmed resultDTO
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/attendance/"+session+"/confirm", confirmRequest{}, nil, &confirmed))
	require.Len(t, confirmed.Attendances, 1)
	assert.False(t, confirmed.Attendances[0].IsPending)
	assert.Len(t, confirmed.Labels, 1)
}

func TestKioskStatus(t *testing.T) {
	ts := newTestServer(t)
	var res kioskStatusDTO
	path := "/api/kiosk/" + key(idkey.KindDevice, 5) + "/status?areas=" + key(idkey.KindArea, 1)
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, path, nil, nil, &res))
	assert.True(t, res.IsOpen)
	require.Len(t, res.Areas, 1)
	assert.Equal(t, key(idkey.KindArea, 1), res.Areas[0].ID)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/kiosk/"+key(idkey.KindDevice, 5)+"/status", nil, nil, nil))
	// Ключ площадки вместо ключа устройства
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/kiosk/"+key(idkey.KindCampus, 5)+"/status?areas="+key(idkey.KindArea, 1), nil, nil, nil))
}

func bearer(t *testing.T, subject, signWith string) http.Header {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{Subject: subject}).SignedString([]byte(signWith))
	require.NoError(t, err)
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestProximityEvent(t *testing.T) {
	ts := newTestServer(t)
	event := func(present bool, minor int) model.ProximityEvent {
		return model.ProximityEvent{
			PersonalDeviceID: "phone-1",
			IsPresent:        present,
			Beacons:          []model.Beacon{{Major: 1, Minor: minor, SignalStrength: -60, EstimatedDistance: 1}},
		}
	}
	tests := []struct {
		name   string
		event  model.ProximityEvent
		header http.Header
		status int
	}{
		{name: "без токена", event: event(true, 101), status: http.StatusUnauthorized},
		{name: "чужая подпись", event: event(true, 101), header: bearer(t, "phone-1", "other"), status: http.StatusUnauthorized},
		{name: "чужое устройство", event: event(true, 101), header: bearer(t, "phone-2", jwtSecret), status: http.StatusUnauthorized},
		{name: "неизвестный маяк", event: event(true, 999), header: bearer(t, "phone-1", jwtSecret), status: http.StatusNotFound},
		{name: "вход", event: event(true, 101), header: bearer(t, "phone-1", jwtSecret), status: http.StatusNoContent},
		{name: "повторный вход", event: event(true, 101), header: bearer(t, "phone-1", jwtSecret), status: http.StatusNotFound},
		{name: "выход", event: event(false, 101), header: bearer(t, "phone-1", jwtSecret), status: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, ts.do(http.MethodPost, "/api/proximity", tt.event, tt.header, nil))
		})
	}
	all := ts.mem.AllAttendance()
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].EndAt)
}

func TestAttendanceFeed(t *testing.T) {
	ts := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.srv.URL, "http")+"/api/feed", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return ts.web.feed.size() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusNoContent, ts.do(http.MethodPost, "/api/proximity", model.ProximityEvent{
		PersonalDeviceID: "phone-1",
		IsPresent:        true,
		Beacons:          []model.Beacon{{Major: 1, Minor: 101}},
	}, bearer(t, "phone-1", jwtSecret), nil))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event feedDTO
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, checkin.ActionCheckIn, event.Action)
	assert.Equal(t, key(idkey.KindPerson, 2), event.Attendance.Person)
	assert.Equal(t, key(idkey.KindLocation, 101), event.Attendance.Location)
}

func TestConnectPrinterProxy(t *testing.T) {
	ts := newTestServer(t)
	// Сервис прокси не подключён
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/proxy/"+key(idkey.KindDevice, 7), nil, nil, nil))
}
