package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger는 애플리케이션의 중앙 로거를 생성하고 설정합니다.
func NewLogger(logLevel, format string) *slog.Logger {
	return newLogger(os.Stdout, logLevel, format)
}

func newLogger(w io.Writer, logLevel, format string) *slog.Logger {
	level := ParseLevel(logLevel)

	// 개발 환경에서는 사람이 읽기 쉬운 컬러 출력을 사용합니다.
	if strings.EqualFold(format, "text") {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  true,
			TimeFormat: time.TimeOnly,
		}))
	}

	// JSON 형식으로 로그를 출력하는 핸들러를 설정합니다.
	opts := &slog.HandlerOptions{
		Level: level,
		// 소스 코드 위치를 로그에 포함시켜 디버깅을 용이하게 합니다.
		AddSource: true,
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel은 설정 문자열을 slog.Level로 변환합니다. 알 수 없는 값은 INFO입니다.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
