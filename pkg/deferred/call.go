package deferred

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jdziat/simple-delay/pkg/ref"
	"github.com/jdziat/simple-delay/pkg/security"
)

// DefaultQueue is used when Create is given no queue.
const DefaultQueue = "default"

// Call is a method invocation captured for later execution. The receiver
// and every argument are reference strings, so a Call can be stored or
// sent anywhere JSON goes. A Call is not modified after Create.
type Call struct {
	Object string            `json:"object"`
	Method string            `json:"method"`
	Args   []string          `json:"args"`
	Kwargs map[string]string `json:"kwargs,omitempty"`
	Queue  string            `json:"queue"`
	RunIn  int64             `json:"run_in"` // seconds
}

// Create captures a call of method on target. The method must exist on
// target now; delay must be nil, a non-negative integer number of seconds
// or a non-negative time.Duration of whole seconds. target, args and
// kwargs are encoded immediately.
func Create(codec *ref.Codec, target any, method string, args []any, kwargs map[string]any, queue string, delay any) (*Call, error) {
	if security.ValidateMethodName(method) != nil {
		return nil, &MethodNotFoundError{Receiver: receiverName(target), Method: method}
	}
	if _, ok := findMethod(target, method); !ok {
		return nil, &MethodNotFoundError{Receiver: receiverName(target), Method: method}
	}
	runIn, err := delaySeconds(delay)
	if err != nil {
		return nil, err
	}
	if queue == "" {
		queue = DefaultQueue
	}
	if err := security.ValidateQueueName(queue); err != nil {
		return nil, fmt.Errorf("deferred: %w", err)
	}

	obj, err := codec.Encode(target)
	if err != nil {
		return nil, fmt.Errorf("deferred: encode receiver: %w", err)
	}

	c := &Call{
		Object: obj,
		Method: method,
		Args:   make([]string, len(args)),
		Queue:  queue,
		RunIn:  runIn,
	}
	for i, a := range args {
		if c.Args[i], err = codec.Encode(a); err != nil {
			return nil, fmt.Errorf("deferred: encode argument #%d: %w", i+1, err)
		}
	}
	if len(kwargs) > 0 {
		c.Kwargs = make(map[string]string, len(kwargs))
		for _, k := range sortedKeys(kwargs) {
			if c.Kwargs[k], err = codec.Encode(kwargs[k]); err != nil {
				return nil, fmt.Errorf("deferred: encode keyword %q: %w", k, err)
			}
		}
	}
	return c, nil
}

// delaySeconds normalizes a Create delay into whole seconds.
func delaySeconds(delay any) (int64, error) {
	var n int64
	switch d := delay.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		if d%time.Second != 0 {
			return 0, &InvalidDelayError{Delay: delay}
		}
		n = int64(d / time.Second)
	case int:
		n = int64(d)
	case int8:
		n = int64(d)
	case int16:
		n = int64(d)
	case int32:
		n = int64(d)
	case int64:
		n = d
	case uint:
		if uint64(d) > math.MaxInt64 {
			return 0, &InvalidDelayError{Delay: delay}
		}
		n = int64(d)
	case uint8:
		n = int64(d)
	case uint16:
		n = int64(d)
	case uint32:
		n = int64(d)
	case uint64:
		if d > math.MaxInt64 {
			return 0, &InvalidDelayError{Delay: delay}
		}
		n = int64(d)
	default:
		return 0, &InvalidDelayError{Delay: delay}
	}
	if n < 0 {
		return 0, &InvalidDelayError{Delay: delay}
	}
	return n, nil
}

// Delay returns RunIn as a duration.
func (c *Call) Delay() time.Duration {
	return time.Duration(c.RunIn) * time.Second
}

// DisplayName labels the call from its receiver reference and method name
// alone; it never decodes anything.
func (c *Call) DisplayName() string {
	return ref.DisplayName(c.Object, c.Method)
}

// Perform decodes the receiver and arguments and invokes the method. A
// receiver or argument whose record no longer exists makes Perform return
// nil; every other error is returned unchanged.
func (c *Call) Perform(ctx context.Context, codec *ref.Codec) error {
	_, err := c.perform(ctx, codec)
	return err
}

// perform is Perform that also reports the record whose absence skipped
// the call.
func (c *Call) perform(ctx context.Context, codec *ref.Codec) (*ref.RecordNotFoundError, error) {
	target, err := codec.Decode(ctx, c.Object)
	if err != nil {
		return swallowNotFound(err)
	}

	args := make([]any, len(c.Args))
	for i, s := range c.Args {
		if args[i], err = codec.Decode(ctx, s); err != nil {
			return swallowNotFound(err)
		}
	}

	var kwargs map[string]any
	if len(c.Kwargs) > 0 {
		kwargs = make(map[string]any, len(c.Kwargs))
		for _, k := range sortedKeys(c.Kwargs) {
			if kwargs[k], err = codec.Decode(ctx, c.Kwargs[k]); err != nil {
				return swallowNotFound(err)
			}
		}
	}

	m, ok := findMethod(target, c.Method)
	if !ok {
		return nil, &MethodNotFoundError{Receiver: receiverName(target), Method: c.Method}
	}
	return nil, invoke(ctx, m, c.Method, args, kwargs)
}

func swallowNotFound(err error) (*ref.RecordNotFoundError, error) {
	var nf *ref.RecordNotFoundError
	if errors.As(err, &nf) {
		return nf, nil
	}
	return nil, err
}
