package config

func Defaults() *Config {
	return &Config{
		Relay: RelayConfig{
			IncludeMetadata: true,
			MaxRetries:      3,
			RetryBaseDelay:  1.0,
		},
		Webhook: WebhookConfig{
			Path: "/webhook",
		},
		Notify: NotifyConfig{
			GroupHandle: "opladmins",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
		Tracing: TracingConfig{
			SampleRatio: 1.0,
		},
	}
}
