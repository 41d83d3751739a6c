// Package config loads and validates the bridge's YAML configuration: the
// source orgs and their streaming resources, the sink brokers and their
// exchanges, and the routing rules.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basinforge/streambridge/internal/bridgeerr"
)

// Config is the full application configuration document.
type Config struct {
	Source SourceConfig `yaml:"source"`
	Sink   SinkConfig   `yaml:"sink"`
	Router RouterConfig `yaml:"router"`
}

// SourceConfig configures the upstream orgs and the optional replay store.
type SourceConfig struct {
	Orgs   map[string]OrgConfig `yaml:"orgs"`
	Replay *ReplayConfig        `yaml:"replay"`
}

// OrgConfig is one upstream org's credentials and subscription targets.
type OrgConfig struct {
	ConsumerKey    string           `yaml:"consumer_key"`
	ConsumerSecret string           `yaml:"consumer_secret"`
	Username       string           `yaml:"username"`
	Password       string           `yaml:"password"`
	Resources      []ResourceConfig `yaml:"resources"`
}

// ResourceConfig is one streaming resource entry: a type name plus a
// free-form spec validated against the type's schema. The spec is either a
// referencing form (Id or Name only) or a full declarative definition.
type ResourceConfig struct {
	Type    string         `yaml:"type"`
	Spec    map[string]any `yaml:"spec"`
	Durable bool           `yaml:"durable"`
}

// ReplayConfig points at the Redis replay marker store.
type ReplayConfig struct {
	Address   string `yaml:"address"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SinkConfig configures the downstream brokers.
type SinkConfig struct {
	Brokers map[string]BrokerConfig `yaml:"brokers"`
}

// BrokerConfig is one broker's AMQP connection parameters and exchanges.
type BrokerConfig struct {
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	Login       string           `yaml:"login"`
	Password    string           `yaml:"password"`
	VirtualHost string           `yaml:"virtualhost"`
	SSL         bool             `yaml:"ssl"`
	VerifySSL   *bool            `yaml:"verify_ssl"`
	LoginMethod string           `yaml:"login_method"`
	Insist      bool             `yaml:"insist"`
	Exchanges   []ExchangeConfig `yaml:"exchanges"`
}

// ExchangeConfig declares one AMQP exchange.
type ExchangeConfig struct {
	ExchangeName string         `yaml:"exchange_name"`
	TypeName     string         `yaml:"type_name"`
	Passive      bool           `yaml:"passive"`
	Durable      bool           `yaml:"durable"`
	AutoDelete   bool           `yaml:"auto_delete"`
	NoWait       bool           `yaml:"no_wait"`
	Arguments    map[string]any `yaml:"arguments"`
}

// RouterConfig holds the routing rules and the optional default route.
type RouterConfig struct {
	DefaultRoute *RouteConfig `yaml:"default_route"`
	Rules        []RuleConfig `yaml:"rules"`
}

// RouteConfig names the broker, exchange, and routing key a matched message
// is published with.
type RouteConfig struct {
	BrokerName   string            `yaml:"broker_name"`
	ExchangeName string            `yaml:"exchange_name"`
	RoutingKey   string            `yaml:"routing_key"`
	Properties   map[string]string `yaml:"properties"`
}

// RuleConfig pairs a condition expression with its route.
type RuleConfig struct {
	Condition string      `yaml:"condition"`
	Route     RouteConfig `yaml:"route"`
}

// Load reads, decodes, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, bridgeerr.NewConfigError("", fmt.Errorf("read %s: %w", path, err))
	}
	return Parse(raw)
}

// Parse decodes and validates a configuration document. Decoding is strict:
// any field not declared in the configuration types is rejected with an
// error naming it.
func Parse(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, bridgeerr.NewConfigError("", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var exchangeTypes = map[string]bool{
	"fanout": true, "direct": true, "topic": true, "headers": true,
}

// validate applies the semantic rules the strict decode cannot express:
// per-resource schemas, required sections, exchange types, redis address
// scheme, and route cross-references. Problems are accumulated so a broken
// configuration reports everything wrong with it at once.
func (c *Config) validate() error {
	var problems []string

	if len(c.Source.Orgs) == 0 {
		problems = append(problems, "source.orgs must define at least one org")
	}
	for name, org := range c.Source.Orgs {
		prefix := fmt.Sprintf("source.orgs.%s", name)
		if org.ConsumerKey == "" {
			problems = append(problems, prefix+".consumer_key is required")
		}
		if org.ConsumerSecret == "" {
			problems = append(problems, prefix+".consumer_secret is required")
		}
		if org.Username == "" {
			problems = append(problems, prefix+".username is required")
		}
		if org.Password == "" {
			problems = append(problems, prefix+".password is required")
		}
		if len(org.Resources) == 0 {
			problems = append(problems, prefix+".resources must list at least one resource")
		}
		for i, res := range org.Resources {
			if errs := validateResource(res); len(errs) > 0 {
				for _, e := range errs {
					problems = append(problems, fmt.Sprintf("%s.resources[%d]: %s", prefix, i, e))
				}
			}
		}
	}

	if c.Source.Replay != nil {
		if !strings.HasPrefix(c.Source.Replay.Address, "redis://") {
			problems = append(problems,
				fmt.Sprintf("source.replay.address must be a redis:// URL, got %q", c.Source.Replay.Address))
		}
	}

	if len(c.Sink.Brokers) == 0 {
		problems = append(problems, "sink.brokers must define at least one broker")
	}
	for name, broker := range c.Sink.Brokers {
		prefix := fmt.Sprintf("sink.brokers.%s", name)
		if broker.Host == "" {
			problems = append(problems, prefix+".host is required")
		}
		if broker.Port < 0 || broker.Port > 65535 {
			problems = append(problems, fmt.Sprintf("%s.port must be in 0..65535, got %d", prefix, broker.Port))
		}
		if len(broker.Exchanges) == 0 {
			problems = append(problems, prefix+".exchanges must list at least one exchange")
		}
		for i, ex := range broker.Exchanges {
			if ex.ExchangeName == "" {
				problems = append(problems, fmt.Sprintf("%s.exchanges[%d].exchange_name is required", prefix, i))
			}
			if !exchangeTypes[ex.TypeName] {
				problems = append(problems,
					fmt.Sprintf("%s.exchanges[%d].type_name must be one of fanout, direct, topic, headers; got %q", prefix, i, ex.TypeName))
			}
		}
	}

	if c.Router.DefaultRoute != nil {
		problems = append(problems, c.validateRoute("router.default_route", *c.Router.DefaultRoute)...)
	}
	for i, rule := range c.Router.Rules {
		prefix := fmt.Sprintf("router.rules[%d]", i)
		if rule.Condition == "" {
			problems = append(problems, prefix+".condition is required")
		}
		problems = append(problems, c.validateRoute(prefix+".route", rule.Route)...)
	}

	if len(problems) > 0 {
		return bridgeerr.NewConfigError("", fmt.Errorf("%s", strings.Join(problems, "; ")))
	}
	return nil
}

func (c *Config) validateRoute(prefix string, route RouteConfig) []string {
	var problems []string
	if route.BrokerName == "" {
		problems = append(problems, prefix+".broker_name is required")
	} else if _, ok := c.Sink.Brokers[route.BrokerName]; !ok {
		problems = append(problems,
			fmt.Sprintf("%s.broker_name %q does not name a configured broker", prefix, route.BrokerName))
	}
	if route.RoutingKey == "" {
		problems = append(problems, prefix+".routing_key is required")
	}
	return problems
}
