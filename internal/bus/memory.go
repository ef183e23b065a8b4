package bus

import (
	"context"
	"sync"
)

// Memory - транспорт в память: хранит опубликованные записи.
// Используется в тестах и для отладки.
type Memory struct {
	mu       sync.Mutex
	messages []Message
	dials    int
	closes   int

	// FailKeys - ключи, публикация по которым завершается ошибкой
	FailKeys map[string]error
	// DialErr - ошибка подключения
	DialErr error
}

// NewMemory создаёт пустой транспорт
func NewMemory() *Memory {
	return &Memory{FailKeys: make(map[string]error)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DialErr != nil {
		return nil, m.DialErr
	}
	m.dials++
	return &memoryConn{m: m}, nil
}

// Messages возвращает копию опубликованных записей
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// ByKey возвращает записи с данным ключом
func (m *Memory) ByKey(key string) []Message {
	var out []Message
	for _, msg := range m.Messages() {
		if msg.RoutingKey == key {
			out = append(out, msg)
		}
	}
	return out
}

// Sessions - количество открытых и закрытых сессий
func (m *Memory) Sessions() (dials, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials, m.closes
}

type memoryConn struct {
	m *Memory
}

func (c *memoryConn) Publish(ctx context.Context, msg Message) error {
	if _, err := ExchangeName(msg.RoutingKey); err != nil {
		return err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if err, ok := c.m.FailKeys[msg.RoutingKey]; ok {
		return err
	}
	c.m.messages = append(c.m.messages, msg)
	return nil
}

func (c *memoryConn) Close() error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.closes++
	return nil
}
