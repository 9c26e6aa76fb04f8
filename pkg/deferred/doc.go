// Package deferred captures a method call for later execution and replays
// it.
//
// Create snapshots a receiver, a method name and its arguments as
// reference strings (see package ref). The resulting Call is a flat value
// that any queue can carry. Perform decodes the references, looks the
// method up on the rehydrated receiver and invokes it:
//
//	call, err := deferred.Create(codec, user, "notify", []any{"hello"}, nil, "mailers", 30*time.Second)
//	...
//	err = call.Perform(ctx, codec)
//
// Go methods must be exported to be invoked, so a lower-case or snake_case
// method name resolves to its exported CamelCase form ("notify" and
// "send_email" find Notify and SendEmail).
//
// Keyword arguments bind to the method's last parameter, which must be a
// struct (fields matched by a `kwarg` tag or case-insensitively by name) or
// a map keyed by string. A method whose first parameter is a
// context.Context receives the context passed to Perform.
//
// A receiver or argument that no longer exists in its backing store makes
// Perform return nil without invoking anything. Every other error,
// including one returned by the method, is returned unchanged.
//
// The Dispatcher is the worker-side entry point: it accepts whatever
// payload shape the queue runtime delivers, normalizes it into a Call and
// performs it.
package deferred
