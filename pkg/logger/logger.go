package logger

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger fans every call out to its backends.
type Logger struct {
	instances []LoggerInstance
}

var singleton *Logger

// Init installs the process-wide backends. Calls made before Init are dropped,
// which keeps library packages silent in tests.
func Init(instances ...LoggerInstance) {
	singleton = &Logger{
		instances: instances,
	}
}

func each(fn func(LoggerInstance)) {
	l := singleton
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		fn(instance)
	}
}

// Log writes a message at the default level.
func Log(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Log(message, keyvals...) })
}

// Debug writes a message at DEBUG level.
func Debug(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Debug(message, keyvals...) })
}

// Info writes a message at INFO level.
func Info(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Info(message, keyvals...) })
}

// Warn writes a message at WARN level.
func Warn(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Warn(message, keyvals...) })
}

// Error writes a message at ERROR level.
func Error(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Error(message, keyvals...) })
}

// Fatal writes a message at FATAL level. Backends are expected to exit.
func Fatal(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Fatal(message, keyvals...) })
}
