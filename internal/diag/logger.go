package diag

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger: 结构化事件日志（zerolog 单行 JSON）。
// 事件字段：level ts corr_id comp stage code dur_ms count bundle msg kv。
type Logger struct {
	zl   zerolog.Logger
	sink io.Closer
}

// NewLogger 以配置的 level 初始化，日志写入 dir 下的轮转文件（10 MiB）。
// dir 为空时使用 "logs"。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		dir = "logs"
	}
	sink := NewRotatingFile(dir, 10*1024*1024)
	l := NewLoggerTo(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写到任意 io.Writer（测试/stderr）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	zl := zerolog.New(w).Level(parseLevel(level)).With().Str("corr_id", corrID).Logger()
	return &Logger{zl: zl}
}

// Nop 返回丢弃所有事件的日志器。
func Nop() *Logger { return &Logger{zl: zerolog.Nop()} }

// Close 关闭底层文件（若有）。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

func parseLevel(s string) zerolog.Level {
	lv, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lv == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lv
}

// Event 为标准事件结构。
type Event struct {
	Comp   string
	Stage  string // start|finish|error
	Code   string
	DurMS  int64
	Count  int64
	Bundle string
	Msg    string
	KV     map[string]string
}

func (l *Logger) log(lv zerolog.Level, ev Event) {
	if l == nil {
		return
	}
	e := l.zl.WithLevel(lv)
	if e == nil {
		return
	}
	e = e.Str("ts", NowUTC()).Str("comp", ev.Comp).Str("stage", ev.Stage)
	if ev.Code != "" {
		e = e.Str("code", ev.Code)
	}
	if ev.DurMS != 0 {
		e = e.Int64("dur_ms", ev.DurMS)
	}
	if ev.Count != 0 {
		e = e.Int64("count", ev.Count)
	}
	if ev.Bundle != "" {
		e = e.Str("bundle", ev.Bundle)
	}
	if len(ev.KV) > 0 {
		e = e.Interface("kv", ev.KV)
	}
	e.Str("msg", ev.Msg).Send()
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(zerolog.InfoLevel, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 bundle 的 start。
func (l *Logger) StartWith(comp, msg, bundle string) *Timer {
	l.log(zerolog.InfoLevel, Event{Comp: comp, Stage: "start", Bundle: bundle, Msg: msg})
	return &Timer{l: l, comp: comp, bundle: bundle, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 bundle。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, bundle string) {
	l.ErrorWithKV(comp, code, msg, durSince, bundle, nil)
}

// ErrorWithKV 支持附带键值对。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, bundle string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(zerolog.ErrorLevel, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, Bundle: bundle, KV: kv})
}

// Warn 记录 warn 事件（例如 SkipFailed 下被跳过的 bundle）。
func (l *Logger) Warn(comp, code, msg, bundle string) {
	l.log(zerolog.WarnLevel, Event{Comp: comp, Stage: "error", Code: code, Msg: msg, Bundle: bundle})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zerolog.InfoLevel, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, bundle string, kv map[string]string) {
	l.log(zerolog.DebugLevel, Event{Comp: comp, Stage: "start", Bundle: bundle, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	bundle string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zerolog.InfoLevel, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, Bundle: t.bundle, Msg: msg})
}

// Since 返回计时起点（供 Error 计算耗时）。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}
