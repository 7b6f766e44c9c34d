/* Copyright 2026 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package script runs small ECMAScript programs against Gateway
// events using Goja.
//
// A Filter's source is the body of a function.  The event is at
// _.event as {t, s, d}, and the function's return value decides
// whether the event passes:
//
//	return _.event.t == "MESSAGE_CREATE" && !_.event.d.author.bot;
//
// Some utilities are also at _:
//
//	log(x): log x as JSON.
//	cronNext(expr): the next time (RFC3339) the cron expression fires.
//	esc(s): URL query-escape s.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Comcast/cordial/gateway"
	"github.com/Comcast/cordial/util"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
	"github.com/rs/zerolog"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned if execution took longer than the
	// Filter's Timeout.
	Interrupted = errors.New(InterruptedMessage)

	// DefaultTimeout bounds each execution.
	DefaultTimeout = 100 * time.Millisecond
)

// Filter is a compiled predicate over events.  A Filter is safe for
// concurrent use.  A nil *Filter passes everything.
type Filter struct {
	Timeout time.Duration
	Debug   bool

	src     string
	program *goja.Program
	logger  zerolog.Logger
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// Compile makes a Filter from the body of a function.
func Compile(src string, logger *zerolog.Logger) (*Filter, error) {
	p, err := goja.Compile("filter", wrapSrc(src), true)
	if err != nil {
		return nil, fmt.Errorf("compiling filter: %w", err)
	}
	return &Filter{
		Timeout: DefaultTimeout,
		src:     src,
		program: p,
		logger:  util.Component(logger, "script"),
	}, nil
}

// Source returns what the Filter was compiled from.
func (f *Filter) Source() string {
	return f.src
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func export(x interface{}) interface{} {
	if v, is := x.(goja.Value); is {
		return v.Export()
	}
	return x
}

// Eval runs the program against the event and returns what it
// returned.
func (f *Filter) Eval(ctx context.Context, e *gateway.Event) (interface{}, error) {
	var d interface{}
	if 0 < len(e.Data) {
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return nil, fmt.Errorf("event data: %w", err)
		}
	}

	o := goja.New()
	env := map[string]interface{}{
		"event": map[string]interface{}{
			"t": e.Type,
			"s": e.Seq,
			"d": d,
		},
	}

	env["log"] = func(x interface{}) interface{} {
		x = export(x)
		js, err := json.Marshal(&x)
		if err != nil {
			f.logger.Warn().Err(err).Msg("script log")
		} else {
			f.logger.Info().RawJSON("x", js).Msg("script log")
		}
		return x
	}

	env["cronNext"] = func(x interface{}) interface{} {
		expr, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		c, err := cronexpr.Parse(expr)
		if err != nil {
			protest(o, err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	}

	env["esc"] = func(x interface{}) interface{} {
		s, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		return url.QueryEscape(s)
	}

	o.Set("_", env)

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-ictx.Done()
		// After a normal return, Interrupt is harmless because
		// the runtime is discarded.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(f.program)
	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, Interrupted
		}
		return nil, err
	}
	if f.Debug {
		f.logger.Debug().Str("t", e.Type).Interface("result", v.Export()).Msg("eval")
	}
	return v.Export(), nil
}

// Match reports whether the program's return value is truthy.
func (f *Filter) Match(ctx context.Context, e *gateway.Event) (bool, error) {
	if f == nil {
		return true, nil
	}
	x, err := f.Eval(ctx, e)
	if err != nil {
		return false, err
	}
	return truthy(x), nil
}

func truthy(x interface{}) bool {
	switch vv := x.(type) {
	case nil:
		return false
	case bool:
		return vv
	case int64:
		return vv != 0
	case float64:
		return vv != 0
	case string:
		return vv != ""
	}
	return true
}
