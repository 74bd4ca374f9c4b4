// Package config loads a node's static configuration from a YAML file,
// with environment variables able to override individual fields for
// container/CI deployments. The shape is deliberately flat: a cluster
// this size does not need the layered base/profile scheme larger configs
// reach for.
package config
