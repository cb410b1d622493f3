// Package appconfig loads the mcloones server configuration from a YAML file
// and MCLOONES_* environment variables.
//
// Keys are dotted paths; the environment name replaces dots with underscores, so
// MCLOONES_REDIS_ADDR overrides redis.addr. A missing config file is not an
// error. [Load] validates the result with go-playground/validator tags.
package appconfig
