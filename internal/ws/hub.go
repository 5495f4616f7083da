package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Hub доставляет события заказов подключённым сторонам сделки в реальном
// времени. Один пользователь может держать несколько подключений, событие
// уходит в каждое.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]map[*Client]struct{}
	outbound    chan envelope
	log         *logrus.Logger
}

type envelope struct {
	userID  uuid.UUID
	payload []byte
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]map[*Client]struct{}),
		outbound:    make(chan envelope, 32),
		log:         log,
	}
}

// Run раздаёт очередь исходящих событий. Запускается одной горутиной
// на процесс.
func (h *Hub) Run() {
	for env := range h.outbound {
		h.deliver(env.userID, env.payload)
	}
}

// Register привязывает подключение к пользователю.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.connections[client.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.connections[client.userID] = set
	}
	set[client] = struct{}{}
}

// Unregister отвязывает подключение; последняя отвязка удаляет пользователя
// из реестра.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.connections[client.userID]
	if !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.connections, client.userID)
	}
}

// NotifyUser отправляет событие всем подключениям пользователя.
// Сообщение следует контракту WebSocket API: "type" — имя события,
// "data" — полезная нагрузка.
func (h *Hub) NotifyUser(userID uuid.UUID, event string, data interface{}) {
	raw, err := json.Marshal(map[string]interface{}{
		"type": event,
		"data": data,
	})
	if err != nil {
		h.log.Errorf("ws: не удалось сериализовать сообщение: %v", err)
		return
	}
	h.outbound <- envelope{userID: userID, payload: raw}
}

func (h *Hub) deliver(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.connections[userID] {
		select {
		case client.outbox <- payload:
		default:
			// Медленный потребитель: отключаем, чтобы не копить очередь.
			go client.Close()
		}
	}
}
