// Package discovery анонс сервера регистрации в локальной сети через mDNS,
// чтобы киоски и прокси печати находили его без ручной настройки адреса
package discovery

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/checkin/server/service"
)

const (
	serviceType = "_checkin._tcp"
	domain      = "local."
	// Предельная длина метки DNS
	maxLabel = 63
)

var _ service.DiscoverySvc = (*Discovery)(nil)

// ConfigDiscovery конфигурация Discovery
type ConfigDiscovery struct {
	Log *logrus.Logger

	// Имя экземпляра (пусто - по имени хоста)
	Instance string
	// Порт HTTP-сервера
	Port uint
}

// Discovery анонс mDNS. Инициируется через NewDiscovery
type Discovery struct {
	log      *logrus.Entry
	instance string
	port     uint
}

// NewDiscovery конструктор Discovery
func NewDiscovery(config ConfigDiscovery) (*Discovery, error) {
	if config.Port == 0 || config.Port > 65535 {
		return nil, errors.NotValidf("порт %d", config.Port)
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	instance := config.Instance
	if instance == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "checkin"
		}
		instance = fmt.Sprintf("Check-in Server (%s)", hostname)
	}
	return &Discovery{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "discovery",
			"scope":  "service",
		}),
		instance: sanitizeInstance(instance),
		port:     config.Port,
	}, nil
}

// TXT-записи анонса
func (m *Discovery) txt() []string {
	return []string{
		fmt.Sprintf("http_port=%d", m.port),
		"api=/api",
		"proto=v1",
	}
}

// Serve держит анонс до отмены ctx
func (m *Discovery) Serve(ctx context.Context) error {
	server, err := zeroconf.Register(m.instance, serviceType, domain, int(m.port), m.txt(), nil)
	if err != nil {
		return errors.Annotate(err, "регистрация mDNS")
	}
	m.log.Infof("анонс %q (%s) на порту %d", m.instance, serviceType, m.port)

	<-ctx.Done()
	server.Shutdown()
	m.log.Info("анонс mDNS остановлен")
	return nil
}

// Имя экземпляра: одна строка без точек, не длиннее метки DNS
func sanitizeInstance(name string) string {
	replacer := strings.NewReplacer("\n", " ", "\r", " ", ".", " ", "_", " ")
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		cleaned = "Check-in Server"
	}
	if runes := []rune(cleaned); len(runes) > maxLabel {
		cleaned = string(runes[:maxLabel])
	}
	return cleaned
}
