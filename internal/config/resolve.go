package config

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Secrets holds credentials resolved from the environment.
type Secrets struct {
	// GatewayKeys is parallel to Gateways.Priority. Empty entries mean the
	// variable was unset.
	GatewayKeys  []string
	PublishToken string
}

// Resolve reads every secret the configuration names.
func (c *Config) Resolve(lookup LookupFunc) Secrets {
	get := func(name string) string {
		if name == "" {
			return ""
		}
		v, _ := lookup(name)
		return v
	}

	s := Secrets{GatewayKeys: make([]string, len(c.Gateways.Priority))}
	for i, g := range c.Gateways.Priority {
		s.GatewayKeys[i] = get(g.APIKeyEnv)
	}
	s.PublishToken = get(c.Publish.TokenEnv)
	return s
}

// Capabilities records which optional integrations are usable. It is
// probed once at startup and handed to constructors.
type Capabilities struct {
	// AWS is true when AWS credentials resolved.
	AWS bool
}
