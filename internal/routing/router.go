package routing

// Route describes where and how to publish a forwarded message.
type Route struct {
	BrokerName   string
	ExchangeName string
	RoutingKey   string
	Properties   map[string]string
}

// Rule pairs a compiled condition with the route to use when it matches.
type Rule struct {
	Condition Condition
	Route     Route
}

// Router holds an ordered list of rules and an optional default route.
type Router struct {
	rules        []Rule
	defaultRoute *Route
}

// NewRouter constructs a Router from ordered rules and an optional default route.
func NewRouter(rules []Rule, defaultRoute *Route) *Router {
	return &Router{rules: rules, defaultRoute: defaultRoute}
}

// FindRoute returns the route for (sourceName, evt): the first matching
// rule wins; absent a match, the default route (which may be nil) is
// returned. The effective event seen by conditions is evt augmented with
// the synthetic field "source".
//
// FindRoute is a pure function of (rules, default, sourceName, evt) and
// performs no I/O.
func (r *Router) FindRoute(sourceName string, evt Event) *Route {
	effective := make(Event, len(evt)+1)
	for k, v := range evt {
		effective[k] = v
	}
	effective["source"] = sourceName

	for _, rule := range r.rules {
		if rule.Condition.Eval(effective) {
			route := rule.Route
			return &route
		}
	}
	if r.defaultRoute == nil {
		return nil
	}
	route := *r.defaultRoute
	return &route
}
