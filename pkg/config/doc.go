// Package config loads and validates the posbridge configuration file.
//
// # Overview
//
// Configuration is a single YAML file. Values not set in the file keep the
// defaults from Default, and a fixed set of scalar settings can be overridden
// with POSBRIDGE_* environment variables. Validation uses validator struct
// tags plus the cross-section rules in Config.Validate.
//
// # Secrets
//
// Account passwords and tokens, the directory and ERP tokens, and static
// location API keys may be written as references into AWS Secrets Manager:
//
//	backoffice:
//	  accounts:
//	    - name: north
//	      username: ops
//	      password: awssm://posbridge/backoffice#north
//
// Load leaves references untouched. Call Config.ResolveSecrets with a
// SecretResolver before the values are used.
//
// # Reloading
//
// Watcher reports edits to the file. The daemon applies a reloaded location
// list at the next cycle boundary.
package config
