// Package cache справочники (шаблоны, устройства, области) в кэше go-cache.
// Справочники загружаются целиком снимком и перечитываются по истечении срока жизни
package cache

import (
	"context"
	"io/ioutil"
	"sort"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/store"
)

var _ store.RefStore = (*Cache)(nil)

const (
	snapshotKey    = "snapshot"
	defaultTTL     = 5 * time.Minute
	refreshTimeout = 10 * time.Second

	// Пауза перед повторной загрузкой после ошибки
	defaultRetryTTL = 5 * time.Second
)

// Loader источник справочников
type Loader interface {
	Areas(ctx context.Context) ([]model.Area, error)
	Devices(ctx context.Context) ([]model.Device, error)
}

// TemplateLoader источник шаблонов регистрации
type TemplateLoader func() ([]model.Configuration, error)

// Cache кэш справочников. Инициируется через NewCache
type Cache struct {
	log       *logrus.Entry
	loader    Loader
	templates TemplateLoader
	ttl       time.Duration
	retryTTL  time.Duration
	cache     *cache.Cache

	mu sync.Mutex
	// Последний удачно загруженный снимок (используется при ошибке перечитывания)
	last *snapshot
}

// ConfigCache конфигурация Cache
type ConfigCache struct {
	Log       *logrus.Logger
	Loader    Loader
	Templates TemplateLoader
	TTL       time.Duration
	RetryTTL  time.Duration
}

type beaconKey struct {
	major, minor int
}

type snapshot struct {
	configurations map[string]model.Configuration
	devices        map[uint]model.Device
	areas          map[uint]model.Area
	beacons        map[beaconKey]model.Location
}

// NewCache конструктор Cache
func NewCache(config ConfigCache) (*Cache, error) {
	if config.Loader == nil {
		return nil, errors.New("не указан источник справочников")
	}
	if config.Templates == nil {
		return nil, errors.New("не указан источник шаблонов")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.TTL <= 0 {
		config.TTL = defaultTTL
	}
	if config.RetryTTL <= 0 {
		config.RetryTTL = defaultRetryTTL
	}
	return &Cache{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "cache",
			"scope":  "store",
		}),
		loader:    config.Loader,
		templates: config.Templates,
		ttl:       config.TTL,
		retryTTL:  config.RetryTTL,
		cache:     cache.New(config.TTL, 2*config.TTL),
	}, nil
}

// Refresh принудительно перечитывает справочники
func (m *Cache) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.reloadLocked(ctx)
	return errors.Trace(err)
}

func (m *Cache) reloadLocked(ctx context.Context) (*snapshot, error) {
	configurations, err := m.templates()
	if err != nil {
		return nil, errors.Annotate(err, "ошибка загрузки шаблонов")
	}
	areas, err := m.loader.Areas(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка загрузки областей")
	}
	devices, err := m.loader.Devices(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка загрузки устройств")
	}

	s := &snapshot{
		configurations: make(map[string]model.Configuration, len(configurations)),
		devices:        make(map[uint]model.Device, len(devices)),
		areas:          make(map[uint]model.Area, len(areas)),
		beacons:        make(map[beaconKey]model.Location),
	}
	for _, c := range configurations {
		s.configurations[c.ID] = c
	}
	for _, d := range devices {
		s.devices[d.ID] = d
	}
	for _, a := range areas {
		s.areas[a.ID] = a
		for _, g := range a.Groups {
			for _, gl := range g.Locations {
				l := gl.Location
				if l.BeaconMajor == nil || l.BeaconMinor == nil {
					continue
				}
				key := beaconKey{*l.BeaconMajor, *l.BeaconMinor}
				if _, ok := s.beacons[key]; !ok {
					s.beacons[key] = l
				}
			}
		}
	}

	m.cache.Set(snapshotKey, s, m.ttl)
	m.last = s
	m.log.Debugf("справочники загружены: шаблонов %d, областей %d, устройств %d", len(s.configurations), len(s.areas), len(s.devices))
	return s, nil
}

// Текущий снимок. При ошибке перечитывания используется последний удачный
func (m *Cache) snapshot() *snapshot {
	if s, ok := m.cache.Get(snapshotKey); ok {
		return s.(*snapshot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.cache.Get(snapshotKey); ok {
		return s.(*snapshot)
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	s, err := m.reloadLocked(ctx)
	if err != nil {
		m.log.Warnf("ошибка обновления справочников: %s", err)
		stale := m.last
		if stale == nil {
			stale = &snapshot{}
		}
		// До следующей попытки запросы не ждут недоступный источник
		m.cache.Set(snapshotKey, stale, m.retryTTL)
		return stale
	}
	return s
}

// Configuration шаблон регистрации
func (m *Cache) Configuration(id string) (*model.Configuration, bool) {
	c, ok := m.snapshot().configurations[id]
	if !ok {
		return nil, false
	}
	return &c, true
}

// Configurations все шаблоны по возрастанию ID
func (m *Cache) Configurations() []model.Configuration {
	s := m.snapshot()
	res := make([]model.Configuration, 0, len(s.configurations))
	for _, c := range s.configurations {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Device устройство
func (m *Cache) Device(id uint) (*model.Device, bool) {
	d, ok := m.snapshot().devices[id]
	if !ok {
		return nil, false
	}
	return &d, true
}

// DeviceByAddress принтер по адресу
func (m *Cache) DeviceByAddress(address string) (*model.Device, bool) {
	s := m.snapshot()
	var found *model.Device
	for _, d := range s.devices {
		if d.Kind != model.DevicePrinter || d.PrinterAddress != address {
			continue
		}
		if found == nil || d.ID < found.ID {
			d := d
			found = &d
		}
	}
	return found, found != nil
}

// Area область
func (m *Cache) Area(id uint) (*model.Area, bool) {
	a, ok := m.snapshot().areas[id]
	if !ok {
		return nil, false
	}
	return &a, true
}

// LocationByBeacon помещение по маяку
func (m *Cache) LocationByBeacon(major, minor int) (*model.Location, bool) {
	l, ok := m.snapshot().beacons[beaconKey{major, minor}]
	if !ok {
		return nil, false
	}
	return &l, true
}
