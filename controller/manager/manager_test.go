package manager

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirsrus/checkin/server/model"
	"github.com/kirsrus/checkin/server/store/memory"
)

var now = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

// Служба, работающая до отмены ctx или возвращающая err сразу
type fakeSvc struct {
	err     error
	started chan struct{}
}

func newFakeSvc(err error) *fakeSvc {
	return &fakeSvc{err: err, started: make(chan struct{}, 1)}
}

func (m *fakeSvc) Serve(ctx context.Context) error {
	m.started <- struct{}{}
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	return nil
}

func (m *fakeSvc) Publish(model.AttendanceEvent) {}

func TestNewManager(t *testing.T) {
	_, err := NewManager(nil)
	assert.Error(t, err)
	_, err = NewManager(&ConfigManager{DbStore: memory.New()})
	assert.Error(t, err)
	_, err = NewManager(&ConfigManager{WebSvc: newFakeSvc(nil)})
	assert.Error(t, err)
}

func TestCleanPending(t *testing.T) {
	mem := memory.New()
	mem.AddAttendance(model.Attendance{SessionID: "old", IsPending: true, CreatedAt: now.Add(-time.Hour)})
	mem.AddAttendance(model.Attendance{SessionID: "fresh", IsPending: true, CreatedAt: now.Add(-10 * time.Minute)})
	mem.AddAttendance(model.Attendance{SessionID: "done", CreatedAt: now.Add(-time.Hour)})

	m, err := NewManager(&ConfigManager{
		WebSvc:     newFakeSvc(nil),
		DbStore:    mem,
		PendingTTL: 30 * time.Minute,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)

	assert.Equal(t, 1, m.cleanPending(context.Background()))
	sessions := make([]string, 0)
	for _, a := range mem.AllAttendance() {
		sessions = append(sessions, a.SessionID)
	}
	assert.Equal(t, []string{"fresh", "done"}, sessions)
	assert.Equal(t, 0, m.cleanPending(context.Background()))
}

func TestServe(t *testing.T) {
	tests := []struct {
		name      string
		web       error
		beacon    error
		discovery error
		wantErr   bool
	}{
		{name: "остановка по отмене"},
		{name: "ошибка WEB", web: errors.New("порт занят"), wantErr: true},
		{name: "ошибка маяков", beacon: errors.New("нет брокера"), wantErr: true},
		{name: "ошибка анонса не критична", discovery: errors.New("нет сети")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			web, beacon, discovery := newFakeSvc(tt.web), newFakeSvc(tt.beacon), newFakeSvc(tt.discovery)
			m, err := NewManager(&ConfigManager{
				WebSvc:        web,
				BeaconSvc:     beacon,
				DiscoverySvc:  discovery,
				DbStore:       memory.New(),
				CleanInterval: 10 * time.Millisecond,
			})
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- m.Serve(ctx) }()

			for _, svc := range []*fakeSvc{web, beacon, discovery} {
				select {
				case <-svc.started:
				case <-time.After(2 * time.Second):
					t.Fatal("служба не запущена")
				}
			}
			if !tt.wantErr {
				cancel()
			}
			select {
			case err := <-done:
				if tt.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Serve не завершился")
			}
		})
	}
}
