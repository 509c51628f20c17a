// Package config provides configuration loading and validation for the capture host.
// Values come from built-in defaults, an optional YAML file, a .env file and
// NOTERA_* environment variables, in increasing order of precedence.
package config
