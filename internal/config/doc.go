// Package config provides loading and environment overlay for the walk-in
// queue server. It exposes a Default() baseline that Load merges a JSON or
// YAML file into, and FromEnv overlays WALKIN_* variables on top.
//
// Example:
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load("/etc/walkin.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config
