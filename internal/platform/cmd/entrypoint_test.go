package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

func TestParseConfigRequiresTarget(t *testing.T) {
	var cfg *struct{}
	if err := ParseConfig(cfg); err == nil {
		t.Fatal("expected nil target error")
	}
}

func TestParseArgsRequiresFlagSet(t *testing.T) {
	if err := ParseArgs(nil, nil); err == nil {
		t.Fatal("expected nil flag set error")
	}
}

func TestParseConfigFromArgs(t *testing.T) {
	type cfg struct {
		Addr string `env:"GATHERPOINT_ENTRYPOINT_TEST_ADDR" envDefault:":7000"`
	}
	var parsed cfg
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.StringVar(&parsed.Addr, "addr", parsed.Addr, "listen address")

	if err := ParseConfigFromArgs(&parsed, fs, []string{"-addr", ":7001"}); err != nil {
		t.Fatalf("parse config from args: %v", err)
	}
	if parsed.Addr != ":7001" {
		t.Fatalf("expected flag override :7001, got %q", parsed.Addr)
	}
}

func TestRunWithTelemetryRequiresService(t *testing.T) {
	err := RunWithTelemetry(context.Background(), " ", func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected service name error")
	}
}

func TestRunWithTelemetryRequiresRun(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), ServiceEvents, nil); err == nil {
		t.Fatal("expected run function error")
	}
}

func TestRunWithTelemetryPropagatesRunError(t *testing.T) {
	want := errors.New("boom")
	err := RunWithTelemetry(context.Background(), ServiceEvents, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected run error, got %v", err)
	}
}
