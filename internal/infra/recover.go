package infra

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// ErrPanic marks errors produced from a recovered panic.
var ErrPanic = errors.New("panic")

// Recover runs f and converts a panic into an error carrying the panic value
// and the frame that raised it.
func Recover(id string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrPanic, "job %q: %v at %s", id, r, identifyPanic())
		}
	}()
	return f()
}

func identifyPanic() string {
	var name, file string
	var line int
	var pc [16]uintptr

	n := runtime.Callers(3, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line = fn.FileLine(pc)
		name = fn.Name()
		if !strings.HasPrefix(name, "runtime.") {
			break
		}
	}

	switch {
	case name != "":
		return fmt.Sprintf("%v:%v", name, line)
	case file != "":
		return fmt.Sprintf("%v:%v", file, line)
	}

	return fmt.Sprintf("pc:%x", pc)
}
