package config

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	colorRed         = 31
	colorGreen       = 32
	colorYellow      = 33
	colorBlue        = 36
	colorGray        = 37
	colorLightGreen  = 92
	colorLightYellow = 93
	colorCyan        = 96
)

// NbFormatter renders entries as colored key=value pairs with sorted fields.
type NbFormatter struct {
	// DisableSource drops the caller position, it is unreliable behind wrappers.
	DisableSource bool
}

func (f *NbFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b strings.Builder

	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	b.WriteString(pair("level", paint(levelColor(entry.Level), level)))
	b.WriteString(" ")
	b.WriteString(pair("ts", paint(colorLightYellow, entry.Time.Format("2006-01-02 15:04:05.000"))))

	if !f.DisableSource {
		if _, file, line, ok := runtime.Caller(6); ok {
			b.WriteString(" ")
			b.WriteString(pair("source", paint(colorLightYellow, fmt.Sprintf("%s:%d", file, line))))
		}
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m, err := json.Marshal(entry.Data[k])
		if err != nil || len(m) == 0 {
			continue
		}
		s := string(m)
		b.WriteString(" ")
		b.WriteString(pair(k, paint(valueColor(s), s)))
	}
	b.WriteString(" ")
	b.WriteString(pair("msg", paint(colorLightGreen, strconv.Quote(entry.Message))))

	output := strings.NewReplacer("\r", "\\r", "\n", "\\n").Replace(b.String())
	return []byte(output + "\n"), nil
}

func levelColor(level log.Level) int {
	switch level {
	case log.DebugLevel, log.TraceLevel:
		return colorGray
	case log.WarnLevel:
		return colorYellow
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		return colorRed
	default:
		return colorBlue
	}
}

func valueColor(s string) int {
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return colorGreen
	}
	if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return colorLightYellow
	}
	return colorCyan
}

func pair(key, value string) string {
	return paint(colorCyan, key) + "=" + value
}

func paint(color int, s string) string {
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", color, s)
}
