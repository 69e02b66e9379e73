package orchestrator_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/flowops/config"
	"github.com/jonwraymond/flowops/orchestrator"
	"github.com/jonwraymond/flowops/routing"
)

func ExampleOrchestrator_RouteRequest() {
	cfg := config.Config{
		Services: []routing.Instance{
			{ID: "imagen-primary", Type: "image", Enabled: true},
		},
	}
	invoker := routing.InvokerFunc(func(_ context.Context, inst routing.Instance, req routing.Request) (any, error) {
		return inst.ID + " " + req.Operation, nil
	})

	orch, err := orchestrator.New(cfg, invoker)
	if err != nil {
		fmt.Println(err)
		return
	}

	res := orch.RouteRequest(context.Background(), "image", routing.Request{Operation: "generate"}, routing.Options{})
	fmt.Println(res.Success, res.Data)

	res = orch.RouteRequest(context.Background(), "video", routing.Request{Operation: "render"}, routing.Options{})
	fmt.Println(res.Success, res.Error.Code)
	// Output:
	// true imagen-primary generate
	// false SERVICE_UNAVAILABLE
}
