// Command restexec executes a JSON request descriptor and prints the
// normalized result.
//
//	restexec run -f descriptor.json --timeout 10s --retries 2
//	restexec token invalidate --redis-addr localhost:6379 --token-url https://auth.example.com/oauth/token --identity crm-connector
//	restexec token clear --redis-addr localhost:6379
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kroma-labs/sentinel-rest/restexec"
	"github.com/kroma-labs/sentinel-rest/tokencache"
)

// errExecutionFailed signals a Failure result. The result itself has
// already been written to stdout.
var errExecutionFailed = errors.New("execution failed")

type globalFlags struct {
	logLevel  string
	redisAddr string
	keyPrefix string
}

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errExecutionFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "restexec",
		Short: "Execute authenticated REST calls from JSON descriptors",
		Long: `restexec sends one HTTP request described by a JSON file, resolving
its authentication (Basic, Bearer, API key or OAuth2) and printing the
normalized result as JSON.

OAuth2 tokens are cached per process unless --redis-addr points at a shared
Redis, in which case every restexec invocation reuses the same tokens.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.redisAddr, "redis-addr", "", "Redis address for the shared token cache (host:port)")
	root.PersistentFlags().StringVar(&g.keyPrefix, "key-prefix", tokencache.DefaultKeyPrefix, "Redis key prefix for cached tokens")

	root.AddCommand(newRunCmd(g), newTokenCmd(g))
	return root
}

// logger writes human-readable lines to the command's stderr.
func (g *globalFlags) logger(cmd *cobra.Command) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(g.logLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
	}
	out := zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339, NoColor: true}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// store returns the Redis token store and a close func, or a nil store when
// no address is configured.
func (g *globalFlags) store() (tokencache.Store, func()) {
	if g.redisAddr == "" {
		return nil, func() {}
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{g.redisAddr}})
	return tokencache.NewRedis(rdb, tokencache.WithKeyPrefix(g.keyPrefix)), func() { _ = rdb.Close() }
}

func (g *globalFlags) engine(cmd *cobra.Command, extra ...restexec.Option) (*restexec.Engine, func(), error) {
	logger, err := g.logger(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, closeFn := g.store()

	opts := []restexec.Option{
		restexec.WithLogger(logger),
		restexec.WithServiceName("restexec-cli"),
	}
	if store != nil {
		opts = append(opts, restexec.WithTokenStore(store))
	}
	return restexec.New(append(opts, extra...)...), closeFn, nil
}
