package worker

import (
	"sync"

	"crypto_bot/internal/models"
)

// Queue — неограниченная FIFO под мьютексом. Push никогда не блокирует вызывающего.
type Queue struct {
	mu    sync.Mutex
	items []models.Message
}

func (q *Queue) Push(msg models.Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
}

// Pop возвращает самое старое сообщение; ok=false если пусто.
func (q *Queue) Pop() (models.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return models.Message{}, false
	}
	msg := q.items[0]
	q.items[0] = models.Message{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return msg, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
