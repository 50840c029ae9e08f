// Package config loads typed configuration from the environment.
//
// Structs are populated with github.com/caarlos0/env/v11 field tags and cached
// per type, so every component of the service can call Load for the same
// struct without parsing twice. A .env file in the working directory is read
// on first use; LoadEnv reads additional files explicitly.
//
//	var cfg subscription.Config
//	config.MustLoad(&cfg)
//
// Use ResetCache between tests that change the environment.
package config
