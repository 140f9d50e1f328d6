package kafka

import "github.com/confluentinc/confluent-kafka-go/v2/kafka"

// SASLConfig holds broker authentication settings. An empty Username leaves
// the connection unauthenticated.
type SASLConfig struct {
	Username         string `env:"KAFKA_SASL_USERNAME"`
	Password         string `env:"KAFKA_SASL_PASSWORD"`
	Mechanism        string `env:"KAFKA_SASL_MECHANISM"    envDefault:"SCRAM-SHA-512"`
	SecurityProtocol string `env:"KAFKA_SECURITY_PROTOCOL" envDefault:"SASL_SSL"`
}

// Enabled reports whether credentials are configured.
func (s SASLConfig) Enabled() bool {
	return s.Username != ""
}

// ApplyToConfigMap adds the SASL settings to cm when enabled.
func (s SASLConfig) ApplyToConfigMap(cm *kafka.ConfigMap) {
	if !s.Enabled() {
		return
	}
	(*cm)["security.protocol"] = s.SecurityProtocol
	(*cm)["sasl.mechanisms"] = s.Mechanism
	(*cm)["sasl.username"] = s.Username
	(*cm)["sasl.password"] = s.Password
}
