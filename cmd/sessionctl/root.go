package main

import (
	"fmt"
	"io"
	"os"

	goSession "github.com/MrEthical07/goSession"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	redisAddr  string
	dataDir    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "sessionctl",
		Short: "sessionctl drives a tiered session store",
		Long: `sessionctl creates, inspects, mutates, and deletes sessions held in a cache tier
(Redis or in process) backed by a Badger durable tier.

Sessions with no data live only in the cache. With the in-process cache they do not
outlive a single invocation; point --redis at a server to keep them.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (GOSESSION_ environment variables also apply)")
	flags.StringVar(&opts.redisAddr, "redis", os.Getenv("REDIS_ADDR"), "Redis address for the cache tier; in-process cache when empty")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Badger directory for the durable tier; overrides durable.dir from config")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCreateCmd(opts),
		newGetCmd(opts),
		newSetCmd(opts),
		newRemoveCmd(opts),
		newDeleteCmd(opts),
		newWhereCmd(opts),
		newCSRFCmd(opts),
		newLoadtestCmd(opts),
	)
	return root
}

// config resolves the engine configuration from the config file, environment, and flags.
func (o *globalOptions) config() (goSession.Config, error) {
	cfg, err := goSession.LoadConfig(o.configPath)
	if err != nil {
		return goSession.Config{}, err
	}
	if o.dataDir != "" {
		cfg.Durable.Dir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, cfg.Validate()
}

// openEngine builds an engine for one invocation. The returned close function drains
// pending write-backs before releasing the tiers.
func (o *globalOptions) openEngine() (*goSession.Engine, func() error, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}

	builder := goSession.New().WithConfig(cfg)

	var client redis.UniversalClient
	if o.redisAddr != "" {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{o.redisAddr},
		})
		builder = builder.WithRedis(client)
	}

	engine, err := builder.Build()
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, nil, err
	}

	closeFn := func() error {
		err := engine.Close()
		if client != nil {
			if cerr := client.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return engine, closeFn, nil
}

// withEngine runs fn against a fresh engine and closes it afterwards.
func (o *globalOptions) withEngine(fn func(engine *goSession.Engine) error) (err error) {
	engine, closeFn, err := o.openEngine()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); err == nil && cerr != nil {
			err = fmt.Errorf("close engine: %w", cerr)
		}
	}()
	return fn(engine)
}

// writeYAML renders v as a YAML document.
func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// parseData decodes a YAML or JSON mapping given on the command line.
func parseData(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := yaml.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse data: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// parseValue decodes a single YAML scalar or collection.
func parseValue(raw string) (any, error) {
	var out any
	if err := yaml.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	return out, nil
}
