package main

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/basinforge/streambridge/internal/bridgeerr"
	"github.com/basinforge/streambridge/internal/config"
	"github.com/basinforge/streambridge/internal/replay"
	"github.com/basinforge/streambridge/internal/routing"
	"github.com/basinforge/streambridge/internal/sink"
	"github.com/basinforge/streambridge/internal/source"
)

// clientFactory builds the streaming client for one org; tests replace it
// with a fake.
type clientFactory func(name string, org config.OrgConfig) source.Client

// buildStore constructs the replay marker store: Redis when configured, an
// in-process monotonic store otherwise.
func buildStore(cfg *config.Config, ignoreStorageErrors bool) (replay.Store, error) {
	if cfg.Source.Replay == nil {
		return replay.NewMemoryStore(), nil
	}
	opts, err := redis.ParseURL(cfg.Source.Replay.Address)
	if err != nil {
		return nil, bridgeerr.NewConfigError("source.replay.address", err)
	}
	client := redis.NewClient(opts)
	return replay.NewRedisStore(client,
		replay.WithKeyPrefix(cfg.Source.Replay.KeyPrefix),
		replay.WithIgnoreNetworkErrors(ignoreStorageErrors),
	), nil
}

// buildSource constructs one MessageSource per configured org and merges
// them when there is more than one. With a durable replay store the replay
// fallback is AllEvents so no retained history is lost on first start;
// without one only new events are requested.
func buildSource(cfg *config.Config, store replay.Store, factory clientFactory, connectionTimeout time.Duration) source.Source {
	fallback := source.NewEvents
	if cfg.Source.Replay != nil {
		fallback = source.AllEvents
	}

	sources := make([]source.Source, 0, len(cfg.Source.Orgs))
	for name, org := range cfg.Source.Orgs {
		resources := make([]source.Resource, 0, len(org.Resources))
		for _, rc := range org.Resources {
			resources = append(resources, toResource(rc))
		}
		sources = append(sources,
			source.New(name, factory(name, org), store, resources, fallback, connectionTimeout))
	}
	if len(sources) == 1 {
		return sources[0]
	}
	return source.NewMultiSource(sources...)
}

func toResource(rc config.ResourceConfig) source.Resource {
	r := source.Resource{Kind: source.PushTopic, Durable: rc.Durable}
	if rc.Type == config.TypeStreamingChannel {
		r.Kind = source.StreamingChannel
	}

	spec := rc.Spec
	r.ID, _ = spec["Id"].(string)
	r.Name, _ = spec["Name"].(string)
	if len(spec) <= 1 {
		return r
	}

	r.Declared = true
	r.ApiVersion, _ = specNumber(spec, "ApiVersion")
	r.Query, _ = spec["Query"].(string)
	r.Description, _ = spec["Description"].(string)
	r.NotifyForFields, _ = spec["NotifyForFields"].(string)
	r.NotifyForOperations, _ = spec["NotifyForOperations"].(string)
	r.IsActive = true
	if active, ok := spec["IsActive"].(bool); ok {
		r.IsActive = active
	}
	r.NotifyForCreate = specBool(spec, "NotifyForOperationCreate")
	r.NotifyForUpdate = specBool(spec, "NotifyForOperationUpdate")
	r.NotifyForDelete = specBool(spec, "NotifyForOperationDelete")
	r.NotifyForUndelete = specBool(spec, "NotifyForOperationUndelete")
	return r
}

func specNumber(spec map[string]any, name string) (float64, bool) {
	switch v := spec[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func specBool(spec map[string]any, name string) *bool {
	if v, ok := spec[name].(bool); ok {
		return &v
	}
	return nil
}

// buildSink constructs the name-indexed MultiSink over one AMQP sink per
// configured broker.
func buildSink(cfg *config.Config) *sink.MultiSink {
	brokers := make(map[string]sink.Broker, len(cfg.Sink.Brokers))
	for name, bc := range cfg.Sink.Brokers {
		exchanges := make([]sink.ExchangeConfig, 0, len(bc.Exchanges))
		for _, ex := range bc.Exchanges {
			exchanges = append(exchanges, sink.ExchangeConfig{
				Name:       ex.ExchangeName,
				Type:       sink.ExchangeType(ex.TypeName),
				Passive:    ex.Passive,
				Durable:    ex.Durable,
				AutoDelete: ex.AutoDelete,
				NoWait:     ex.NoWait,
				Arguments:  ex.Arguments,
			})
		}
		verifySSL := true
		if bc.VerifySSL != nil {
			verifySSL = *bc.VerifySSL
		}
		brokers[name] = sink.NewAMQPSink(name, sink.ConnectionConfig{
			Host:        bc.Host,
			Port:        bc.Port,
			Login:       bc.Login,
			Password:    bc.Password,
			VirtualHost: bc.VirtualHost,
			SSL:         bc.SSL,
			VerifySSL:   verifySSL,
			LoginMethod: bc.LoginMethod,
			Insist:      bc.Insist,
			Exchanges:   exchanges,
		})
	}
	return sink.NewMultiSink(brokers)
}

// buildRouter compiles every rule condition and assembles the router.
// A condition that fails to compile aborts startup.
func buildRouter(cfg *config.Config) (*routing.Router, error) {
	rules := make([]routing.Rule, 0, len(cfg.Router.Rules))
	for i, rc := range cfg.Router.Rules {
		cond, err := routing.Compile(rc.Condition)
		if err != nil {
			return nil, fmt.Errorf("router.rules[%d]: %w", i, err)
		}
		rules = append(rules, routing.Rule{Condition: cond, Route: toRoute(rc.Route)})
	}

	var defaultRoute *routing.Route
	if cfg.Router.DefaultRoute != nil {
		r := toRoute(*cfg.Router.DefaultRoute)
		defaultRoute = &r
	}
	return routing.NewRouter(rules, defaultRoute), nil
}

func toRoute(rc config.RouteConfig) routing.Route {
	return routing.Route{
		BrokerName:   rc.BrokerName,
		ExchangeName: rc.ExchangeName,
		RoutingKey:   rc.RoutingKey,
		Properties:   rc.Properties,
	}
}
