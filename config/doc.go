// Package config loads the orchestrator configuration from YAML.
//
// The file is expanded with ExpandEnvStrict before decoding, so secrets can be
// injected as ${VAR}. Unknown keys are rejected. Durations use Go syntax
// ("250ms", "30s", "5m").
//
//	cfg, err := config.Load("flowops.yaml")
//	if err != nil {
//	    return err
//	}
//	orch, err := orchestrator.New(cfg, invoker)
package config
