// Package health tracks the health of downstream services.
//
// A Checker probes one service. The Registry keeps a ServiceHealth record per
// registered service, starting healthy, and updates it only from probe results:
//
//	reg := health.NewRegistry(health.RegistryConfig{
//	    Interval: 30 * time.Second,
//	    OnChange: func(service string, from, to health.Status, h health.ServiceHealth) {
//	        log.Printf("%s is now %s", service, to)
//	    },
//	})
//	reg.Register("imagen-primary", health.NewPingChecker("imagen-primary", client.Ping))
//
//	go reg.Run(ctx)
//
// A failed probe (unhealthy result, error, or timeout) increments
// ConsecutiveFailures and marks the service unhealthy. A passing probe resets
// the counter and marks it healthy, or degraded when the probe says so.
// ErrorRate is folded as (old + sample) / 2 with sample 1 on failure.
package health
