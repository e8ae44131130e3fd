package manager

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kirsrus/checkin/server/service"
	"github.com/kirsrus/checkin/server/store"
)

const (
	pendingTTL    = 30 * time.Minute
	cleanInterval = 5 * time.Minute
)

// ConfigManager конфигурация Manager
type ConfigManager struct {
	Log *logrus.Logger

	WebSvc service.WebSvc
	// Необязательные службы
	BeaconSvc    service.BeaconSvc
	DiscoverySvc service.DiscoverySvc

	DbStore store.DbStore

	// Время жизни неподтверждённых регистраций
	PendingTTL time.Duration
	// Период очистки просроченных неподтверждённых регистраций
	CleanInterval time.Duration
	// Источник времени (nil - time.Now)
	Now func() time.Time
}

// Manager основной менеджер работы со всеми сервисами. Инициируется через NewManager
type Manager struct {
	log *logrus.Entry

	webSvc       service.WebSvc
	beaconSvc    service.BeaconSvc
	discoverySvc service.DiscoverySvc
	dbStore      store.DbStore

	pendingTTL    time.Duration
	cleanInterval time.Duration
	now           func() time.Time
}

// NewManager конструктор Manager
func NewManager(config *ConfigManager) (*Manager, error) {
	if config == nil {
		return nil, errors.New("не передана конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.WebSvc == nil {
		return nil, errors.New("не передан сервис WEB")
	}
	if config.DbStore == nil {
		return nil, errors.New("не передан сервис базы данных")
	}

	manager := Manager{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "manager",
			"scope":  "controller",
		}),
		webSvc:        config.WebSvc,
		beaconSvc:     config.BeaconSvc,
		discoverySvc:  config.DiscoverySvc,
		dbStore:       config.DbStore,
		pendingTTL:    pendingTTL,
		cleanInterval: cleanInterval,
		now:           time.Now,
	}
	if config.PendingTTL != 0 {
		manager.pendingTTL = config.PendingTTL
	}
	if config.CleanInterval != 0 {
		manager.cleanInterval = config.CleanInterval
	}
	if config.Now != nil {
		manager.now = config.Now
	}

	manager.configToLog()

	return &manager, nil
}

// Вывести значения конфигурациии в лог
func (m Manager) configToLog() {
	m.log.Debugf("pendingTTL: %s", m.pendingTTL)
	m.log.Debugf("cleanInterval: %s", m.cleanInterval)
	m.log.Debugf("beacon: %t", m.beaconSvc != nil)
	m.log.Debugf("discovery: %t", m.discoverySvc != nil)
}

// Serve запуск всех служб до отмены ctx. Ошибка любой службы останавливает остальные
func (m Manager) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return errors.Annotate(m.webSvc.Serve(gctx), "сервис WEB")
	})
	if m.beaconSvc != nil {
		g.Go(func() error {
			return errors.Annotate(m.beaconSvc.Serve(gctx), "сервис маяков")
		})
	}
	if m.discoverySvc != nil {
		g.Go(func() error {
			// Без анонса сервер доступен по адресу, поэтому ошибка не критична
			if err := m.discoverySvc.Serve(gctx); err != nil {
				m.log.Warn(err)
			}
			return nil
		})
	}

	// Хоускиппер очистки просроченных неподтверждённых регистраций
	g.Go(func() error {
		ticker := time.NewTicker(m.cleanInterval)
		defer ticker.Stop()
		for {
			m.cleanPending(gctx)
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return errors.Trace(g.Wait())
}

// Удаление неподтверждённых регистраций старше pendingTTL. Ошибка БД не останавливает работу
func (m Manager) cleanPending(ctx context.Context) int {
	n, err := m.dbStore.DeleteExpiredPending(ctx, m.now().Add(-m.pendingTTL))
	if err != nil {
		m.log.Error(errors.ErrorStack(err))
		return 0
	}
	if n > 0 {
		m.log.Infof("удалено %d просроченных неподтверждённых регистраций", n)
	}
	return n
}
