package logger

import "log"

// Logger レベル付きの簡易ロガー
type Logger struct {
	prefix string
}

// New コンポーネント名付きのロガーを作る
func New(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

// Info 情報ログ
func (l *Logger) Info(msg string, args ...interface{}) {
	log.Printf("[INFO] "+l.prefix+msg, args...)
}

// Warn 警告ログ
func (l *Logger) Warn(msg string, args ...interface{}) {
	log.Printf("[WARN] "+l.prefix+msg, args...)
}

// Error エラーログ
func (l *Logger) Error(msg string, args ...interface{}) {
	log.Printf("[ERROR] "+l.prefix+msg, args...)
}
