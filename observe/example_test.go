package observe_test

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/jonwraymond/flowops/observe"
)

func ExampleCallMeta_SpanName() {
	fmt.Println(observe.CallMeta{Service: "image", Operation: "generate"}.SpanName())
	fmt.Println(observe.CallMeta{Workflow: "storyboard", Step: "draw"}.SpanName())
	// Output:
	// flowops.call.image.generate
	// flowops.workflow.storyboard.draw
}

func ExampleConfig_Validate() {
	cfg := observe.Config{
		ServiceName: "flowops",
		Tracing:     observe.TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 2},
	}
	err := cfg.Validate()
	fmt.Println(errors.Is(err, observe.ErrInvalidSamplePct))
	// Output:
	// true
}

func ExampleFromZerolog() {
	zl := zerolog.New(os.Stdout)
	logger := observe.FromZerolog(zl).With(observe.CallMeta{Service: "image", Instance: "imagen-primary"})

	logger.Info(context.Background(), "routed", observe.F("token", "abc"))
	// Output:
	// {"level":"info","service":"image","instance":"imagen-primary","token":"[REDACTED]","message":"routed"}
}

func ExampleMiddleware_Wrap() {
	mw := observe.NoopMiddleware()

	call := mw.Wrap(func(ctx context.Context, meta observe.CallMeta, request any) (any, error) {
		return fmt.Sprintf("%s handled %v", meta.Instance, request), nil
	})

	out, _ := call(context.Background(), observe.CallMeta{Service: "image", Instance: "imagen-primary"}, "prompt")
	fmt.Println(out)
	// Output:
	// imagen-primary handled prompt
}
