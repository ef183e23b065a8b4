package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"balancer/internal/models"
	"balancer/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Буферы для сериализации, чтобы не аллоцировать на каждый Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Размер очереди broadcast. При переполнении сообщения отбрасываются.
const broadcastBufferSize = 256

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Рассылает клиентам события контура балансировки без polling со стороны frontend.
//
// Типы сообщений:
// - iterationReport: сводка завершённой итерации
// - stateChange: смена состояния контура
// - alert: алерт итерации
//
// Использование:
// 1. Создать hub: hub := NewHub(allowedOrigins)
// 2. Запустить в горутине: go hub.Run()
// 3. Передать hub в bot.NewEngine как WebSocketHub
// 4. Остановить: hub.Stop()
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	done     chan struct{}
	stopOnce sync.Once

	// Сообщения, отброшенные из-за переполненной очереди
	dropped atomic.Int64

	// Количество клиентов для чтения без блокировки
	count atomic.Int64

	upgrader websocket.Upgrader
	origins  *OriginChecker

	mu  sync.RWMutex
	log *utils.Logger
}

// NewHub создает Hub. Пустой список origins разрешает любые источники.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		origins:    NewOriginChecker(allowedOrigins),
		log:        utils.L().WithComponent("websocket"),
	}
	h.upgrader = newUpgrader(h.origins)
	return h
}

// Run запускает главный цикл Hub до вызова Stop
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			total := h.count.Add(1)
			h.log.Debug("client connected", utils.Int64("clients", total))

		case client := <-h.unregister:
			h.remove(client)
			h.log.Debug("client disconnected", utils.Int64("clients", h.count.Load()))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var slow []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}

			for _, client := range slow {
				h.remove(client)
			}
			if len(slow) > 0 {
				h.log.Warn("removed slow clients",
					utils.Int("removed", len(slow)),
					utils.Int64("clients", h.count.Load()),
				)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.count.Add(-1)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.count.Store(0)
}

// Stop останавливает Run и закрывает клиентов. Повторный вызов безопасен.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast сериализует сообщение и ставит в очередь всем клиентам.
// Не блокирует вызывающего: при полной очереди сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.log.Error("failed to marshal broadcast message", utils.Err(err))
		return
	}

	data := bytes.TrimRight(buf.Bytes(), "\n")
	h.BroadcastRaw(data)
}

// BroadcastRaw ставит в очередь уже сериализованное сообщение
func (h *Hub) BroadcastRaw(data []byte) {
	// буфер вернётся в пул, в канал уходит копия
	msg := make([]byte, len(data))
	copy(msg, data)

	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastIterationReport отправляет сводку итерации
func (h *Hub) BroadcastIterationReport(report *models.IterationReport) {
	if report == nil {
		return
	}
	h.Broadcast(NewIterationReportMessage(report))
}

// BroadcastStateChange отправляет смену состояния контура
func (h *Hub) BroadcastStateChange(from, to string) {
	h.Broadcast(NewStateChangeMessage(from, to))
}

// BroadcastAlert отправляет алерт
func (h *Hub) BroadcastAlert(alert *models.Alert) {
	if alert == nil {
		return
	}
	h.Broadcast(NewAlertMessage(alert))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// DroppedMessages - сколько сообщений отброшено из-за переполнения
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
