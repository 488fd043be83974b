package actionq

// Logger is the structured logger used for diagnostics.
type Logger interface {
	Info() LoggerEvent
	Error() LoggerEvent
	Warn() LoggerEvent
	Debug() LoggerEvent
}

type LoggerEvent interface {
	Err(error) LoggerEvent
	Str(string, string) LoggerEvent
	Int(string, int) LoggerEvent
	Bool(string, bool) LoggerEvent
	Msg(string)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info() LoggerEvent  { return nopEvent{} }
func (NopLogger) Error() LoggerEvent { return nopEvent{} }
func (NopLogger) Warn() LoggerEvent  { return nopEvent{} }
func (NopLogger) Debug() LoggerEvent { return nopEvent{} }

type nopEvent struct{}

func (e nopEvent) Err(error) LoggerEvent          { return e }
func (e nopEvent) Str(string, string) LoggerEvent { return e }
func (e nopEvent) Int(string, int) LoggerEvent    { return e }
func (e nopEvent) Bool(string, bool) LoggerEvent  { return e }
func (nopEvent) Msg(string)                       {}
