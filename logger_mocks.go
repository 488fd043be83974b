package actionq

import "sync"

// MockLogger records the messages logged at each level, for testing.
type MockLogger struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (m *MockLogger) Info() LoggerEvent  { return &MockLoggerEvent{logger: m, level: "info"} }
func (m *MockLogger) Error() LoggerEvent { return &MockLoggerEvent{logger: m, level: "error"} }
func (m *MockLogger) Warn() LoggerEvent  { return &MockLoggerEvent{logger: m, level: "warn"} }
func (m *MockLogger) Debug() LoggerEvent { return &MockLoggerEvent{logger: m, level: "debug"} }

// Messages returns the messages logged at the given level.
func (m *MockLogger) Messages(level string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages[level]...)
}

// Called reports whether anything was logged at the given level.
func (m *MockLogger) Called(level string) bool {
	return len(m.Messages(level)) > 0
}

type MockLoggerEvent struct {
	logger *MockLogger
	level  string
}

func (m *MockLoggerEvent) Err(error) LoggerEvent          { return m }
func (m *MockLoggerEvent) Str(string, string) LoggerEvent { return m }
func (m *MockLoggerEvent) Int(string, int) LoggerEvent    { return m }
func (m *MockLoggerEvent) Bool(string, bool) LoggerEvent  { return m }
func (m *MockLoggerEvent) Msg(msg string) {
	m.logger.mu.Lock()
	defer m.logger.mu.Unlock()
	if m.logger.messages == nil {
		m.logger.messages = make(map[string][]string)
	}
	m.logger.messages[m.level] = append(m.logger.messages[m.level], msg)
}
