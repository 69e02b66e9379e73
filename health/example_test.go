package health_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/flowops/health"
)

func ExampleNewCheckerFunc() {
	checker := health.NewCheckerFunc("imagen", func(ctx context.Context) health.Result {
		return health.Healthy("model loaded")
	})

	result := checker.Check(context.Background())

	fmt.Println("Checker name:", checker.Name())
	fmt.Println("Status:", result.Status.String())
	fmt.Println("Message:", result.Message)
	// Output:
	// Checker name: imagen
	// Status: healthy
	// Message: model loaded
}

func ExampleHealthy() {
	result := health.Healthy("all systems operational")

	fmt.Println("Status:", result.Status.String())
	fmt.Println("Message:", result.Message)
	// Output:
	// Status: healthy
	// Message: all systems operational
}

func ExampleRegistry() {
	reg := health.NewRegistry(health.RegistryConfig{
		OnChange: func(service string, from, to health.Status, _ health.ServiceHealth) {
			fmt.Printf("%s: %s -> %s\n", service, from, to)
		},
	})
	reg.Register("veo", health.NewPingChecker("veo", func(ctx context.Context) error {
		return errors.New("connection refused")
	}))
	reg.Register("imagen", health.NewPingChecker("imagen", func(ctx context.Context) error {
		return nil
	}))

	_, _ = reg.Probe(context.Background(), "imagen")
	h, _ := reg.Probe(context.Background(), "veo")

	fmt.Println("Consecutive failures:", h.ConsecutiveFailures)
	fmt.Println("Overall:", reg.Overall())
	// Output:
	// veo: healthy -> unhealthy
	// Consecutive failures: 1
	// Overall: unhealthy
}
