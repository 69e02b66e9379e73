package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/flowops/resilience"
)

func ExampleClassify() {
	fmt.Println(resilience.Classify(errors.New("429 Too Many Requests")))
	fmt.Println(resilience.Classify(errors.New("dial tcp: connection refused")))
	fmt.Println(resilience.Classify(context.DeadlineExceeded))
	// Output:
	// RATE_LIMIT
	// NETWORK
	// TIMEOUT
}

func ExampleRetryPolicy_Delay() {
	p := resilience.DefaultRetryPolicy()
	for n := 0; n < 3; n++ {
		fmt.Println(p.Delay(n))
	}
	// Output:
	// 1s
	// 2s
	// 4s
}

func ExampleRegistry() {
	breakers := resilience.NewRegistry(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
	})

	ctx := context.Background()
	fmt.Println("Initial state:", breakers.State("imagen").State)

	for i := 0; i < 2; i++ {
		_, _ = breakers.Execute(ctx, "imagen", func(ctx context.Context) (any, error) {
			return nil, errors.New("service unavailable")
		})
	}
	fmt.Println("After failures:", breakers.State("imagen").State)

	_, err := breakers.Execute(ctx, "imagen", func(ctx context.Context) (any, error) {
		return "never", nil
	})
	fmt.Println("Code:", resilience.CodeOf(err))

	breakers.Reset()
	fmt.Println("After reset:", breakers.State("imagen").State)
	// Output:
	// Initial state: closed
	// After failures: open
	// Code: CIRCUIT_BREAKER_OPEN
	// After reset: closed
}

func ExampleExecutor() {
	retrier := resilience.NewRetrier(resilience.RetrierConfig{
		Sleep: func(ctx context.Context, d time.Duration) error { return nil },
	})
	exec := resilience.NewExecutor(
		resilience.WithBreakers(resilience.NewRegistry(resilience.CircuitBreakerConfig{})),
		resilience.WithRetrier(retrier),
		resilience.WithTimeout(time.Second),
	)

	attempts := 0
	call := resilience.CallContext{Service: "veo", Operation: "render"}
	out, err := exec.Execute(context.Background(), call, resilience.DefaultRetryPolicy(), func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("ECONNRESET")
		}
		return "rendered", nil
	})

	fmt.Println(out, err, attempts)
	// Output:
	// rendered <nil> 3
}
