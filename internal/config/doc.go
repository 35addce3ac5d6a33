// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, YAML files). It provides
// type-safe access to the settings of the generation client, the Google
// Cloud wrappers and the CLI while keeping configuration details separate
// from the code that uses them.
package config
