package notify

// Option configures an Extension.
type Option func(*Extension)

// PayloadFunc builds a custom message payload for a specific event type.
// The args parameter is the default payload and the returned value is
// JSON-encoded as the message body.
type PayloadFunc func(args any) (any, error)

// WithEvents restricts the extension to publish only the listed event
// types. By default all event types are enabled. Unknown types are
// silently ignored.
func WithEvents(events ...string) Option {
	return func(h *Extension) {
		h.enabled = make(map[string]bool, len(events))
		for _, e := range events {
			h.enabled[e] = true
		}
	}
}

// WithSubjectPrefix sets the subject prefix. The default is "processes".
func WithSubjectPrefix(prefix string) Option {
	return func(h *Extension) { h.prefix = prefix }
}

// WithPayloadFunc registers a custom payload builder for the given event
// type. The function replaces the default JSON payload for that event.
func WithPayloadFunc(eventType string, fn PayloadFunc) Option {
	return func(h *Extension) {
		if h.payloads == nil {
			h.payloads = make(map[string]PayloadFunc)
		}
		h.payloads[eventType] = fn
	}
}
