package web

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/checkin/server/controller/checkin"
	"github.com/kirsrus/checkin/server/controller/proximity"
	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/pkg/devtoken"
	"github.com/kirsrus/checkin/server/pkg/idkey"
	"github.com/kirsrus/checkin/server/pkg/validator"
	"github.com/kirsrus/checkin/server/service"
	"github.com/kirsrus/checkin/server/store"
)

const (
	webPort         = 8080
	shutdownTimeout = 5 * time.Second
	feedQueue       = 32
)

var _ service.WebSvc = (*Web)(nil)

// ConfigWeb конфигурация структуры Web
type ConfigWeb struct {
	Log *logrus.Logger

	Director  *checkin.Director
	Proximity *proximity.Director
	Proxy     service.PrinterProxySvc
	RefStore  store.RefStore

	// Секрет кодирования внешних идентификаторов
	IdKeySecret string
	// Секрет подписи токенов персональных устройств (пусто - события маяков не принимаются)
	JwtSecret string

	WebPort uint
}

// Web служба WEB-сервисов. Инициализируется через NewWeb
type Web struct {
	ctx       context.Context
	log       *logrus.Entry
	validator *validator.Validator
	e         *echo.Echo
	upgrader  websocket.Upgrader

	director  *checkin.Director
	proximity *proximity.Director
	proxy     service.PrinterProxySvc
	refStore  store.RefStore

	idKeySecret string
	encode      encoder
	jwtSecret   []byte
	webPort     uint

	feed *feed
}

// NewWeb конструктор структуры Web. ctx ограничивает время жизни соединений прокси печати
func NewWeb(ctx context.Context, config *ConfigWeb) (*Web, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}
	if config.Director == nil {
		return nil, errors.New("не передан контроллер регистрации")
	}
	if config.RefStore == nil {
		return nil, errors.New("не передан справочник")
	}
	if config.IdKeySecret == "" {
		return nil, errors.New("не задан секрет идентификаторов")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	log := config.Log.WithFields(map[string]interface{}{
		"module": "web",
		"scope":  "service",
	})
	web := Web{
		ctx:       ctx,
		log:       log,
		validator: validator.Get(),
		e:         echo.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},

		director:  config.Director,
		proximity: config.Proximity,
		proxy:     config.Proxy,
		refStore:  config.RefStore,

		idKeySecret: config.IdKeySecret,
		encode:      encoder(config.IdKeySecret),
		jwtSecret:   []byte(config.JwtSecret),
		webPort:     webPort,

		feed: newFeed(log),
	}
	if config.WebPort != 0 {
		web.webPort = config.WebPort
	}

	web.e.HideBanner = true
	web.e.HidePort = true
	web.e.Use(middleware.Recover())
	web.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	web.routes()

	return &web, nil
}

func (m *Web) routes() {
	api := m.e.Group("/api")
	api.GET("/configuration", m.getConfiguration)
	api.GET("/kiosk/:kiosk/status", m.getKioskStatus)
	api.POST("/search", m.searchFamilies)
	api.POST("/family", m.loadFamily)
	api.POST("/opportunities", m.loadPerson)
	api.POST("/attendance", m.saveAttendance)
	api.POST("/attendance/:session/confirm", m.confirmAttendance)
	api.DELETE("/attendance/:session", m.deletePendingAttendance)
	api.POST("/checkout", m.checkout)
	api.GET("/proxy/:device", m.connectPrinterProxy)
	api.POST("/proximity", m.proximityEvent)
	api.GET("/feed", m.attendanceFeed)
}

// Handler обработчик HTTP-запросов
func (m *Web) Handler() http.Handler {
	return m.e
}

// Serve запуск WEB-сервера до отмены ctx
func (m *Web) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		m.log.Infof("старт HTTP-сервера на порту :%d", m.webPort)
		done <- m.e.Start(fmt.Sprintf(":%d", m.webPort))
	}()

	select {
	case err := <-done:
		if err == http.ErrServerClosed {
			return nil
		}
		m.log.Errorf("сервер неожиданно завершил работу: %v", err)
		return errors.Trace(err)
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		m.feed.close()
		if err := m.e.Shutdown(shutdown); err != nil {
			m.log.Warnf("ошибка остановки HTTP-сервера: %v", err)
		}
		return nil
	}
}

// Publish рассылка события регистрации подписчикам ленты
func (m *Web) Publish(event model.AttendanceEvent) {
	m.feed.publish(feedDTO{Action: event.Action, At: event.At, Attendance: m.encode.attendance(event.Attendance)})
}

// region Обработка ошибок

type errorDTO struct {
	Message string `json:"message"`
}

// Преобразование ошибки в ответ клиенту
func (m *Web) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsNotValid(err):
		status = http.StatusBadRequest
	case errors.IsUnauthorized(err):
		status = http.StatusUnauthorized
	}
	log := m.log.WithFields(map[string]interface{}{"path": c.Path(), "status": status})
	if status == http.StatusInternalServerError {
		log.Error(errors.ErrorStack(err))
		return c.JSON(status, errorDTO{Message: "внутренняя ошибка сервера"})
	}
	log.Info(err)
	return c.JSON(status, errorDTO{Message: err.Error()})
}

func (m *Web) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.NewNotValid(err, "некорректный запрос")
	}
	if err := m.validator.Validate(req); err != nil {
		return errors.NewNotValid(err, "некорректный запрос")
	}
	return nil
}

// Необязательный ключ: пустая строка - 0
func (m *Web) optional(kind idkey.Kind, key string) (uint, error) {
	if key == "" {
		return 0, nil
	}
	return idkey.Decode(m.idKeySecret, kind, key)
}

// endregion
// region Регистрация

// Сессия шаблона configuration. Если передан PIN, включается переопределение
func (m *Web) session(configuration, pin string) (*checkin.Session, error) {
	s, err := m.director.NewSession(configuration)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if pin != "" {
		if ok, reason := m.director.TryAuthenticatePin(s, pin); !ok {
			return nil, errors.NewUnauthorized(nil, reason)
		}
	}
	return s, nil
}

func (m *Web) getConfiguration(c echo.Context) error {
	kiosk, err := m.optional(idkey.KindDevice, c.QueryParam("kiosk"))
	if err != nil {
		return m.fail(c, err)
	}
	res := make([]configurationDTO, 0)
	for _, conf := range m.director.Configurations(kiosk) {
		dto := configurationDTO{ID: conf.ID, Name: conf.Name, Kind: conf.Kind, Areas: make([]areaDTO, 0, len(conf.Areas))}
		for _, a := range conf.Areas {
			dto.Areas = append(dto.Areas, areaDTO{ID: m.encode.key(idkey.KindArea, a.ID), Name: a.Name, Groups: a.Groups})
		}
		res = append(res, dto)
	}
	return c.JSON(http.StatusOK, res)
}

func (m *Web) getKioskStatus(c echo.Context) error {
	kiosk, err := idkey.Decode(m.idKeySecret, idkey.KindDevice, c.Param("kiosk"))
	if err != nil {
		return m.fail(c, err)
	}
	keys := make([]string, 0)
	for _, k := range strings.Split(c.QueryParam("areas"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return m.fail(c, errors.NotValidf("не переданы области"))
	}
	areas, err := idkey.DecodeAll(m.idKeySecret, idkey.KindArea, keys)
	if err != nil {
		return m.fail(c, err)
	}
	status, err := m.director.KioskStatus(kiosk, areas)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, m.encode.status(status))
}

func (m *Web) searchFamilies(c echo.Context) error {
	var req searchRequest
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	campus, err := m.optional(idkey.KindCampus, req.Campus)
	if err != nil {
		return m.fail(c, err)
	}
	s, err := m.session(req.Configuration, req.Pin)
	if err != nil {
		return m.fail(c, err)
	}
	found, err := s.Search(c.Request().Context(), req.Term, req.Type, campus)
	if err != nil {
		return m.fail(c, err)
	}
	res := make([]familyDTO, 0, len(found))
	for _, f := range found {
		res = append(res, m.encode.family(f))
	}
	return c.JSON(http.StatusOK, res)
}

func (m *Web) loadFamily(c echo.Context) error {
	var req familyRequest
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	family, err := idkey.Decode(m.idKeySecret, idkey.KindFamily, req.Family)
	if err != nil {
		return m.fail(c, err)
	}
	areas, err := idkey.DecodeAll(m.idKeySecret, idkey.KindArea, req.Areas)
	if err != nil {
		return m.fail(c, err)
	}
	kiosk, err := m.optional(idkey.KindDevice, req.Kiosk)
	if err != nil {
		return m.fail(c, err)
	}
	s, err := m.session(req.Configuration, req.Pin)
	if err != nil {
		return m.fail(c, err)
	}
	attendees, err := s.LoadFamily(c.Request().Context(), family, areas, kiosk)
	if err != nil {
		return m.fail(c, err)
	}
	res := make([]attendeeDTO, 0, len(attendees))
	for _, a := range attendees {
		res = append(res, m.encode.attendee(a))
	}
	return c.JSON(http.StatusOK, res)
}

func (m *Web) loadPerson(c echo.Context) error {
	var req personRequest
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	person, err := idkey.Decode(m.idKeySecret, idkey.KindPerson, req.Person)
	if err != nil {
		return m.fail(c, err)
	}
	family, err := m.optional(idkey.KindFamily, req.Family)
	if err != nil {
		return m.fail(c, err)
	}
	areas, err := idkey.DecodeAll(m.idKeySecret, idkey.KindArea, req.Areas)
	if err != nil {
		return m.fail(c, err)
	}
	kiosk, err := m.optional(idkey.KindDevice, req.Kiosk)
	if err != nil {
		return m.fail(c, err)
	}
	s, err := m.session(req.Configuration, req.Pin)
	if err != nil {
		return m.fail(c, err)
	}
	attendee, err := s.LoadPerson(c.Request().Context(), person, family, areas, kiosk)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, m.encode.attendee(*attendee))
}

func (m *Web) saveAttendance(c echo.Context) error {
	var req attendanceRequest
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	kiosk, err := m.optional(idkey.KindDevice, req.Kiosk)
	if err != nil {
		return m.fail(c, err)
	}
	selections := make([]model.Selection, 0, len(req.Selections))
	for _, sel := range req.Selections {
		var s model.Selection
		if s.PersonID, err = idkey.Decode(m.idKeySecret, idkey.KindPerson, sel.Person); err != nil {
			return m.fail(c, err)
		}
		if s.GroupID, err = idkey.Decode(m.idKeySecret, idkey.KindGroup, sel.Group); err != nil {
			return m.fail(c, err)
		}
		if s.LocationID, err = idkey.Decode(m.idKeySecret, idkey.KindLocation, sel.Location); err != nil {
			return m.fail(c, err)
		}
		if s.ScheduleID, err = idkey.Decode(m.idKeySecret, idkey.KindSchedule, sel.Schedule); err != nil {
			return m.fail(c, err)
		}
		selections = append(selections, s)
	}
	s, err := m.session(req.Configuration, req.Pin)
	if err != nil {
		return m.fail(c, err)
	}
	result, err := s.SaveAttendance(c.Request().Context(), req.Session, selections, kiosk, c.RealIP())
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, m.encode.result(result))
}

func (m *Web) confirmAttendance(c echo.Context) error {
	var req confirmRequest
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	kiosk, err := m.optional(idkey.KindDevice, req.Kiosk)
	if err != nil {
		return m.fail(c, err)
	}
	result, err := m.director.ConfirmAttendance(c.Request().Context(), c.Param("session"), kiosk)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, m.encode.result(result))
}

func (m *Web) deletePendingAttendance(c echo.Context) error {
	session := c.Param("session")
	if err := m.validator.ValidateVar(session, "required,uuid"); err != nil {
		return m.fail(c, errors.NewNotValid(err, "некорректный идентификатор сессии"))
	}
	if err := m.director.DeletePendingAttendance(c.Request().Context(), session); err != nil {
		return m.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (m *Web) checkout(c echo.Context) error {
	var req checkoutRequest
	if err := m.bind(c, &req); err != nil {
		return m.fail(c, err)
	}
	kiosk, err := m.optional(idkey.KindDevice, req.Kiosk)
	if err != nil {
		return m.fail(c, err)
	}
	ids, err := idkey.DecodeAll(m.idKeySecret, idkey.KindAttend, req.Attendances)
	if err != nil {
		return m.fail(c, err)
	}
	s, err := m.session(req.Configuration, "")
	if err != nil {
		return m.fail(c, err)
	}
	result, err := s.Checkout(c.Request().Context(), req.Session, ids, kiosk)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, m.encode.result(result))
}

// endregion
// region Прокси печати и маяки

func (m *Web) connectPrinterProxy(c echo.Context) error {
	if m.proxy == nil {
		return m.fail(c, errors.NotFoundf("сервис прокси печати"))
	}
	id, err := idkey.Decode(m.idKeySecret, idkey.KindDevice, c.Param("device"))
	if err != nil {
		return m.fail(c, err)
	}
	device, ok := m.refStore.Device(id)
	if !ok {
		return m.fail(c, errors.NotFoundf("устройство %d", id))
	}
	if !device.IsProxy() {
		return m.fail(c, errors.NotValidf("устройство %d не является прокси печати", id))
	}
	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		m.log.Warnf("ошибка установки websocket с прокси %d: %v", id, err)
		return nil
	}
	// Соединение живёт дольше запроса: до закрытия устройством или остановки сервера
	_ = m.proxy.Serve(m.ctx, conn, *device)
	return nil
}

// Ключ персонального устройства из токена заголовка Authorization
func (m *Web) authenticateDevice(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == header {
		raw = ""
	}
	return devtoken.Verify(m.jwtSecret, raw)
}

func (m *Web) proximityEvent(c echo.Context) error {
	if m.proximity == nil {
		return m.fail(c, errors.NotFoundf("сервис маяков"))
	}
	deviceKey, err := m.authenticateDevice(c)
	if err != nil {
		return m.fail(c, err)
	}
	var event model.ProximityEvent
	if err := c.Bind(&event); err != nil {
		return m.fail(c, errors.NewNotValid(err, "некорректное событие"))
	}
	if event.PersonalDeviceID == "" {
		event.PersonalDeviceID = deviceKey
	}
	if event.PersonalDeviceID != deviceKey {
		return m.fail(c, errors.Unauthorizedf("токен выдан другому устройству"))
	}
	ok, err := m.proximity.HandleEvent(c.Request().Context(), event)
	if err != nil {
		return m.fail(c, err)
	}
	if !ok {
		return m.fail(c, errors.NewNotFound(nil, "нет подходящего помещения"))
	}
	return c.NoContent(http.StatusNoContent)
}

// endregion
// region Лента регистраций

func (m *Web) attendanceFeed(c echo.Context) error {
	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		m.log.Warnf("ошибка установки websocket ленты: %v", err)
		return nil
	}
	m.feed.serve(c.Request().Context(), conn)
	return nil
}

// endregion
