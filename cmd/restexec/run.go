package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	"github.com/kroma-labs/sentinel-rest/restexec"
)

type runFlags struct {
	file          string
	timeout       time.Duration
	insecure      bool
	retries       uint
	retryInterval time.Duration
	debug         bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run -f descriptor.json",
		Short: "Execute a request descriptor and print the result as JSON",
		Long: `Execute a request descriptor and print the result as JSON.

The exit code is 0 when a response was received, whatever its status, and 1
when the call failed before a response arrived.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDescriptor(cmd, g, f)
		},
	}

	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Descriptor file (- for stdin)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Override the descriptor timeout")
	cmd.Flags().BoolVar(&f.insecure, "insecure", false, "Skip TLS certificate verification")
	cmd.Flags().UintVar(&f.retries, "retries", 0, "Retry transport failures up to N times")
	cmd.Flags().DurationVar(&f.retryInterval, "retry-interval", backoff.DefaultInitialInterval, "Initial delay between retries")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Log an equivalent cURL command for the request")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.Flags().MarkHidden("retry-interval")

	return cmd
}

func runDescriptor(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	d, err := loadDescriptor(cmd, f.file)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("timeout") {
		d.Timeout = f.timeout
	}
	if f.insecure {
		d.VerifySSL = false
	}

	engine, closeFn, err := g.engine(cmd, restexec.WithDebug(f.debug))
	if err != nil {
		return err
	}
	defer closeFn()

	result := execute(cmd.Context(), engine, d, f)

	out, err := restexec.MarshalResult(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if _, ok := result.(*restexec.Failure); ok {
		return errExecutionFailed
	}
	return nil
}

func loadDescriptor(cmd *cobra.Command, path string) (restexec.Descriptor, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return restexec.Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	return restexec.ParseDescriptor(data)
}

// execute runs d, re-executing Transport failures with exponential backoff.
// Other failures and every response are final.
func execute(ctx context.Context, engine *restexec.Engine, d restexec.Descriptor, f *runFlags) restexec.Result {
	if f.retries == 0 {
		return engine.Execute(ctx, d)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.retryInterval

	var last restexec.Result
	res, _ := backoff.Retry(ctx, func() (restexec.Result, error) {
		last = engine.Execute(ctx, d)
		failure, ok := last.(*restexec.Failure)
		if !ok {
			return last, nil
		}
		if failure.Kind != restexec.KindTransport {
			return last, backoff.Permanent(failure.Err())
		}
		return last, failure.Err()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.retries+1),
	)
	if res == nil {
		return last
	}
	return res
}
