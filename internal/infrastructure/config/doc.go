// Package config loads and validates APS Core configuration.
//
// Configuration is layered: hardcoded defaults, then the YAML file,
// then APSCORE_* environment variables. The resulting Config is
// validated once at startup; a config that fails validation is fatal.
//
// Recognised environment overrides:
//
//	APSCORE_MQTT_HOST, APSCORE_MQTT_PORT
//	APSCORE_MQTT_USERNAME, APSCORE_MQTT_PASSWORD
//	APSCORE_TEMPLATES_PATH
//	APSCORE_DATABASE_PATH
//	APSCORE_INFLUXDB_TOKEN
//	APSCORE_API_HOST
//
// Credentials should always come from the environment rather than the
// YAML file in production deployments.
package config
