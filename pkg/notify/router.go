package notify

import "context"

// Router picks a sender by message channel, falling back when none is mapped.
type Router struct {
	routes   map[string]Sender
	fallback Sender
}

// NewRouter constructs a channel router.
func NewRouter(fallback Sender, routes map[string]Sender) *Router {
	if routes == nil {
		routes = map[string]Sender{}
	}
	return &Router{routes: routes, fallback: fallback}
}

// Name identifies the router.
func (r *Router) Name() string { return "router" }

// Send dispatches msg to the sender registered for its channel.
func (r *Router) Send(ctx context.Context, msg Message) error {
	if sender, ok := r.routes[msg.Channel]; ok {
		return sender.Send(ctx, msg)
	}
	if r.fallback == nil {
		return ErrUnsupportedChannel
	}
	return r.fallback.Send(ctx, msg)
}
