// Package printer доставка этикеток на принтеры: напрямую по TCP (raw, порт 9100)
// либо через облачный прокси печати, если принтер за ним
package printer

import (
	"context"
	"io/ioutil"
	"net"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/checkin/server/service"
	"github.com/kirsrus/checkin/server/store"
)

const (
	dialTimeout = 2 * time.Second
	defaultPort = 9100
)

var _ service.PrintTransport = (*Direct)(nil)
var _ service.PrintTransport = (*Router)(nil)

// Direct прямая печать по TCP. Инициируется через NewDirect
type Direct struct {
	log         *logrus.Entry
	dialTimeout time.Duration
	defaultPort uint
}

// ConfigDirect конфигурация Direct
type ConfigDirect struct {
	Log         *logrus.Logger
	DialTimeout time.Duration
	DefaultPort uint
}

// NewDirect конструктор Direct
func NewDirect(config ConfigDirect) *Direct {
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	res := Direct{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "printer",
			"scope":  "service",
		}),
		dialTimeout: dialTimeout,
		defaultPort: defaultPort,
	}
	if config.DialTimeout != 0 {
		res.dialTimeout = config.DialTimeout
	}
	if config.DefaultPort != 0 {
		res.defaultPort = config.DefaultPort
	}
	return &res
}

// Print отправляет data на принтер address. Отмена ctx прерывает подключение и запись
func (m *Direct) Print(ctx context.Context, address string, data []byte) error {
	addr := m.withPort(address)
	dialer := net.Dialer{Timeout: m.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		m.log.Warnf("принтер %s недоступен: %v", addr, err)
		return errors.Annotatef(err, "подключение к принтеру %s", addr)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if _, err = conn.Write(data); err != nil {
		if ctx.Err() != nil {
			return errors.Trace(ctx.Err())
		}
		return errors.Annotatef(err, "запись на принтер %s", addr)
	}
	m.log.Debugf("на принтер %s отправлено %d байт", addr, len(data))
	return nil
}

func (m *Direct) withPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(int(m.defaultPort)))
}

// Router выбирает способ доставки: через прокси, если принтер зарегистрирован за ним,
// иначе напрямую. Инициируется через NewRouter
type Router struct {
	log      *logrus.Entry
	refStore store.RefStore
	direct   service.PrintTransport
	proxy    service.PrinterProxySvc
}

// ConfigRouter конфигурация Router
type ConfigRouter struct {
	Log      *logrus.Logger
	RefStore store.RefStore
	Direct   service.PrintTransport
	// Может отсутствовать, тогда печать только напрямую
	Proxy service.PrinterProxySvc
}

// NewRouter конструктор Router
func NewRouter(config ConfigRouter) (*Router, error) {
	if config.RefStore == nil {
		return nil, errors.New("не передан справочник")
	}
	if config.Direct == nil {
		return nil, errors.New("не передан транспорт прямой печати")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	return &Router{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "printer-router",
			"scope":  "service",
		}),
		refStore: config.RefStore,
		direct:   config.Direct,
		proxy:    config.Proxy,
	}, nil
}

// Print доставляет data на принтер address
func (m *Router) Print(ctx context.Context, address string, data []byte) error {
	if d, ok := m.refStore.DeviceByAddress(address); ok && d.ProxyDeviceID != 0 {
		if m.proxy == nil {
			return errors.NotSupportedf("печать через прокси %d", d.ProxyDeviceID)
		}
		m.log.Debugf("принтер %s обслуживается прокси %d", address, d.ProxyDeviceID)
		return errors.Trace(m.proxy.Print(ctx, d.ProxyDeviceID, address, data))
	}
	return errors.Trace(m.direct.Print(ctx, address, data))
}
