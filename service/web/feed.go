package web

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Пул подписчиков ленты регистраций. Медленный подписчик теряет события, но не
// задерживает регистрацию
type feed struct {
	log  *logrus.Entry
	pool *sync.Map
	done chan struct{}
	once sync.Once
}

func newFeed(log *logrus.Entry) *feed {
	return &feed{log: log, pool: new(sync.Map), done: make(chan struct{})}
}

func (m *feed) publish(event feedDTO) {
	m.pool.Range(func(key, value interface{}) bool {
		ch, ok := value.(chan feedDTO)
		if !ok {
			m.log.Errorf("в пуле ленты неожиданный тип данных: %T", value)
			return true
		}
		select {
		case ch <- event:
		default:
			m.log.Warnf("подписчик %s не успевает, событие пропущено", key)
		}
		return true
	})
}

// Количество подписчиков
func (m *feed) size() int {
	n := 0
	m.pool.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Отправка событий в conn до закрытия соединения клиентом, отмены ctx или остановки пула
func (m *feed) serve(ctx context.Context, conn *websocket.Conn) {
	id := uuid.New().String()
	ch := make(chan feedDTO, feedQueue)
	m.pool.Store(id, ch)
	m.log.Debugf("добавлен подписчик ленты %s", id)
	defer func() {
		m.pool.Delete(id)
		_ = conn.Close()
		m.log.Debugf("удалён подписчик ленты %s", id)
	}()

	// Клиент ничего не присылает: чтение нужно только для обнаружения закрытия
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				m.log.Debugf("подписчик %s: %v", id, err)
				return
			}
		case <-closed:
			return
		case <-ctx.Done():
			return
		case <-m.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "сервер завершает работу")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}

func (m *feed) close() {
	m.once.Do(func() { close(m.done) })
}
