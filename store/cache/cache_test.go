package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirsrus/checkin/server/model"
)

type fakeLoader struct {
	calls int32
	fail  atomic.Value
}

func (m *fakeLoader) Areas(context.Context) ([]model.Area, error) {
	atomic.AddInt32(&m.calls, 1)
	if f, _ := m.fail.Load().(bool); f {
		return nil, errors.New("БД недоступна")
	}
	major, minor := 1, 2
	return []model.Area{{
		ID: 1, Name: "Дети",
		Groups: []model.Group{{ID: 10, Locations: []model.GroupLocation{
			{Location: model.Location{ID: 100, Name: "Комната", BeaconMajor: &major, BeaconMinor: &minor}},
		}}},
	}}, nil
}

func (m *fakeLoader) Devices(context.Context) ([]model.Device, error) {
	return []model.Device{
		{ID: 1, Name: "Киоск", Kind: model.DeviceKiosk, PrinterAddress: "10.0.0.5"},
		{ID: 3, Name: "Принтер Б", Kind: model.DevicePrinter, PrinterAddress: "10.0.0.9"},
		{ID: 2, Name: "Принтер А", Kind: model.DevicePrinter, PrinterAddress: "10.0.0.9"},
	}, nil
}

func templates() ([]model.Configuration, error) {
	return []model.Configuration{{ID: "b"}, {ID: "a"}}, nil
}

func TestCacheLookups(t *testing.T) {
	loader := &fakeLoader{}
	c, err := NewCache(ConfigCache{Loader: loader, Templates: templates})
	require.NoError(t, err)

	_, ok := c.Configuration("a")
	assert.True(t, ok)
	_, ok = c.Configuration("x")
	assert.False(t, ok)
	confs := c.Configurations()
	require.Len(t, confs, 2)
	assert.Equal(t, "a", confs[0].ID)

	d, ok := c.Device(1)
	require.True(t, ok)
	assert.True(t, d.IsKiosk())
	d, ok = c.DeviceByAddress("10.0.0.9")
	require.True(t, ok)
	assert.Equal(t, uint(2), d.ID, "при совпадении адреса выбирается меньший ID")
	_, ok = c.DeviceByAddress("10.0.0.5")
	assert.False(t, ok, "киоск не является принтером")

	l, ok := c.LocationByBeacon(1, 2)
	require.True(t, ok)
	assert.Equal(t, uint(100), l.ID)
	_, ok = c.LocationByBeacon(1, 3)
	assert.False(t, ok)

	_, ok = c.Area(1)
	assert.True(t, ok)

	assert.Equal(t, int32(1), atomic.LoadInt32(&loader.calls), "справочники загружаются один раз")
}

func TestCacheStaleOnError(t *testing.T) {
	loader := &fakeLoader{}
	c, err := NewCache(ConfigCache{Loader: loader, Templates: templates, TTL: 20 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))

	loader.fail.Store(true)
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Area(1)
	assert.True(t, ok, "используется последний удачный снимок")
	assert.Error(t, c.Refresh(context.Background()))
}

func TestCacheRetryAfterError(t *testing.T) {
	loader := &fakeLoader{}
	c, err := NewCache(ConfigCache{Loader: loader, Templates: templates, TTL: 20 * time.Millisecond, RetryTTL: time.Hour})
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))

	loader.fail.Store(true)
	time.Sleep(50 * time.Millisecond)

	before := atomic.LoadInt32(&loader.calls)
	for i := 0; i < 5; i++ {
		_, ok := c.Area(1)
		assert.True(t, ok)
		_, ok = c.Device(1)
		assert.True(t, ok)
	}
	assert.Equal(t, before+1, atomic.LoadInt32(&loader.calls), "после ошибки повторная загрузка откладывается")
}

func TestNewCacheConfig(t *testing.T) {
	_, err := NewCache(ConfigCache{Templates: templates})
	assert.Error(t, err)
	_, err = NewCache(ConfigCache{Loader: &fakeLoader{}})
	assert.Error(t, err)
}
