// Package printproxy облачные прокси печати: долгоживущее websocket-соединение на устройство,
// через которое передаются задания печати и их подтверждения.
//
// Кадры - бинарные сообщения CBOR. Сервер отправляет print и ping, устройство отвечает
// ack (с тем же ID) и присылает hello/status. Переподключение - забота устройства
package printproxy

import (
	"context"
	"io/ioutil"
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/service"
)

const (
	ackTimeout   = 4 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
	outQueue     = 16
)

var _ service.PrinterProxySvc = (*Proxy)(nil)

// FrameType тип кадра
type FrameType string

const (
	FrameHello  FrameType = "hello"
	FramePrint  FrameType = "print"
	FrameAck    FrameType = "ack"
	FrameStatus FrameType = "status"
	FramePing   FrameType = "ping"
)

// Frame кадр обмена с прокси
type Frame struct {
	Type    FrameType `cbor:"type"`
	ID      string    `cbor:"id,omitempty"`
	Address string    `cbor:"address,omitempty"`
	Data    []byte    `cbor:"data,omitempty"`
	Error   string    `cbor:"error,omitempty"`
}

// Encode кадр в CBOR
func (m Frame) Encode() ([]byte, error) {
	return cbor.Marshal(m)
}

// DecodeFrame кадр из CBOR
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return f, errors.NewNotValid(err, "некорректный кадр")
	}
	return f, nil
}

// Соединение одного устройства
type connection struct {
	device model.Device
	out    chan Frame
	done   chan struct{}
}

// Proxy реестр соединений прокси печати. Инициируется через NewProxy
type Proxy struct {
	log          *logrus.Entry
	ackTimeout   time.Duration
	pingInterval time.Duration

	mu    sync.Mutex
	conns map[uint]*connection

	// Ожидающие подтверждения задания: ID -> chan string (текст ошибки)
	pending *cache.Cache
}

// ConfigProxy конфигурация Proxy
type ConfigProxy struct {
	Log *logrus.Logger
	// Время ожидания подтверждения печати
	AckTimeout time.Duration
	// Период отправки ping
	PingInterval time.Duration
}

// NewProxy конструктор Proxy
func NewProxy(config ConfigProxy) *Proxy {
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	res := Proxy{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "printproxy",
			"scope":  "service",
		}),
		ackTimeout:   ackTimeout,
		pingInterval: pingInterval,
		conns:        make(map[uint]*connection),
	}
	if config.AckTimeout != 0 {
		res.ackTimeout = config.AckTimeout
	}
	if config.PingInterval != 0 {
		res.pingInterval = config.PingInterval
	}
	res.pending = cache.New(res.ackTimeout, 2*res.ackTimeout)
	return &res
}

// Serve обслуживает соединение conn устройства device, пока его не закроет устройство
// или не будет отменён ctx. Последнее подключение устройства становится основным,
// предыдущее продолжает работу до своего закрытия
func (m *Proxy) Serve(ctx context.Context, conn *websocket.Conn, device model.Device) error {
	if !device.IsProxy() {
		_ = conn.Close()
		return errors.NotValidf("устройство %d не является прокси печати", device.ID)
	}
	log := m.log.WithFields(map[string]interface{}{"device": device.ID, "remote": conn.RemoteAddr().String()})

	c := &connection{device: device, out: make(chan Frame, outQueue), done: make(chan struct{})}
	m.register(c)
	log.Info("прокси подключён")
	defer func() {
		m.unregister(c)
		close(c.done)
		log.Info("прокси отключён")
	}()

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	// Чтение кадров устройства. Завершение чтения останавливает и запись
	g.Go(func() error {
		defer cancel()
		for {
			tpe, message, err := conn.ReadMessage()
			if err != nil {
				if gctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return errors.Annotate(err, "чтение из соединения прокси")
			}
			if tpe != websocket.BinaryMessage {
				log.Warnf("пропущено сообщение типа %d, размера %d", tpe, len(message))
				continue
			}
			f, err := DecodeFrame(message)
			if err != nil {
				log.Warn(err)
				continue
			}
			m.handle(log, f)
		}
	})

	// Запись кадров на устройство
	g.Go(func() error {
		ticker := time.NewTicker(m.pingInterval)
		defer ticker.Stop()
		defer func() { _ = conn.Close() }()
		for {
			var f Frame
			select {
			case <-gctx.Done():
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "сервер завершает работу")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return nil
			case f = <-c.out:
			case <-ticker.C:
				f = Frame{Type: FramePing}
			}
			data, err := f.Encode()
			if err != nil {
				log.Errorf("ошибка кодирования кадра: %v", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err = conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return errors.Annotate(err, "запись в соединение прокси")
			}
		}
	})

	err := g.Wait()
	if err != nil {
		log.Warn(err)
	}
	return errors.Trace(err)
}

func (m *Proxy) handle(log *logrus.Entry, f Frame) {
	switch f.Type {
	case FrameAck:
		v, ok := m.pending.Get(f.ID)
		if !ok {
			log.Debugf("подтверждение неизвестного задания %s", f.ID)
			return
		}
		m.pending.Delete(f.ID)
		select {
		case v.(chan string) <- f.Error:
		default:
		}
	case FrameHello:
		log.Infof("прокси представился: %s", f.Address)
	case FrameStatus:
		log.Debugf("статус принтера %s: %s", f.Address, f.Error)
	case FramePing:
	default:
		log.Warnf("неизвестный тип кадра %q", f.Type)
	}
}

func (m *Proxy) register(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.device.ID] = c
}

func (m *Proxy) unregister(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[c.device.ID] == c {
		delete(m.conns, c.device.ID)
	}
}

// Print отправляет задание печати через прокси deviceID и ожидает его подтверждения
func (m *Proxy) Print(ctx context.Context, deviceID uint, address string, data []byte) error {
	m.mu.Lock()
	c, ok := m.conns[deviceID]
	m.mu.Unlock()
	if !ok {
		return errors.NotFoundf("прокси %d не подключён", deviceID)
	}

	id := uuid.New().String()
	ack := make(chan string, 1)
	m.pending.Set(id, ack, m.ackTimeout)
	defer m.pending.Delete(id)

	timer := time.NewTimer(m.ackTimeout)
	defer timer.Stop()

	select {
	case c.out <- Frame{Type: FramePrint, ID: id, Address: address, Data: data}:
	case <-c.done:
		return errors.Errorf("соединение прокси %d закрыто", deviceID)
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-timer.C:
		return errors.Timeoutf("очередь прокси %d", deviceID)
	}

	select {
	case msg := <-ack:
		if msg != "" {
			return errors.Errorf("прокси %d: %s", deviceID, msg)
		}
		return nil
	case <-c.done:
		return errors.Errorf("соединение прокси %d закрыто", deviceID)
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-timer.C:
		return errors.Timeoutf("подтверждение печати прокси %d", deviceID)
	}
}

// Connected идентификаторы подключённых устройств по возрастанию
func (m *Proxy) Connected() []uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]uint, 0, len(m.conns))
	for id := range m.conns {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
