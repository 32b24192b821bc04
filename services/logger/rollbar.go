package logsvc

import (
	"fmt"
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/gradebook/core"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, fmt.Stringer (e.g. a Triple)
// Stringers are sent as the "context" extra.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var (
		extras   map[string]interface{}
		contexts []string
	)
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			newArgs = append(newArgs, a)
		case map[string]interface{}:
			if extras == nil {
				extras = make(map[string]interface{}, len(a)+1)
			}
			for k, v := range a {
				extras[k] = v
			}
		case fmt.Stringer:
			contexts = append(contexts, a.String())
		default:
			newArgs = append(newArgs, arg)
		}
	}
	if len(contexts) > 0 {
		if extras == nil {
			extras = make(map[string]interface{}, 1)
		}
		extras["context"] = contexts
	}
	if extras != nil {
		newArgs = append(newArgs, extras)
	}
	return newArgs
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print(msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
