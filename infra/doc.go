// Package infra contains technical adapters: blob stores, catalogs, the
// factory cache, metrics exporters and the MQTT announcer. These packages
// should depend only on the interfaces defined in the core packages.
package infra
