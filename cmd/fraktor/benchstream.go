package main

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"

	"github.com/babyman/fraktor/internal/config"
	"github.com/babyman/fraktor/internal/streams"
)

func benchStreamCmd(configPath *string) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "bench-stream",
		Short: "drive a source -> map -> sink pipeline of N elements and report elapsed time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchStream(*configPath, count)
		},
	}
	cmd.Flags().IntVar(&count, "count", 100_000, "number of elements to push through the pipeline")
	return cmd
}

func runBenchStream(configPath string, count int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	intType := reflect.TypeOf(0)
	values := make([]any, count)
	for i := range values {
		values[i] = i
	}

	plan := streams.NewPlanBuilder()
	plan.SetDefaultBuffer(cfg.Streams.DefaultBufferCapacity, streams.ParseOverflowPolicy(cfg.Streams.OverflowPolicy))
	src := plan.AddSource("src", streams.NewSliceSource(intType, values), streams.SupervisionStrategy{}, nil)
	square := plan.AddFlow("square", streams.NewMapFlow(intType, intType, func(v any) any {
		n := v.(int)
		return n * n
	}), streams.SupervisionStrategy{}, nil)
	sink := streams.NewCollectSink(intType)
	snk := plan.AddSink("sink", sink, streams.SupervisionStrategy{}, nil)

	if _, err := plan.Connect(src, square); err != nil {
		return err
	}
	if _, err := plan.Connect(square, snk); err != nil {
		return err
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	interp := streams.NewInterpreter(plan)
	start := time.Now()
	for interp.State() == streams.Running {
		interp.Drive()
	}
	elapsed := time.Since(start)

	fmt.Printf("processed %d elements in %s (%d ticks)\n", len(sink.Values), elapsed, interp.Tick())
	return nil
}
