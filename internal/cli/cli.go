package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/OFFIS-RIT/newsgraph/pkg/graph"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"github.com/spf13/cobra"
)

// ErrNotCached is returned by lookup when the key has no stored graph.
var ErrNotCached = errors.New("graph not cached")

type Resolver interface {
	ResolveGraph(ctx context.Context, req graph.ResolveRequest) (*graph.Result, error)
}

// FailureReader reads archived extraction failures.
type FailureReader interface {
	ListFailures(ctx context.Context, topic string) ([]string, error)
	GetFailure(ctx context.Context, objectKey string) ([]byte, error)
}

// Runtime is what the commands operate on. Failures may be nil when no
// archive is configured.
type Runtime struct {
	Cache    store.GraphCache
	Graphs   Resolver
	Failures FailureReader
	Close    func()
}

// Opener builds a Runtime. Opening is expected to initialize the cache
// schema.
type Opener func(ctx context.Context) (*Runtime, error)

type keyFlags struct {
	depth     int
	language  string
	timeRange string
}

func (k *keyFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&k.depth, "depth", 3, "graph depth (1-3)")
	cmd.Flags().StringVar(&k.language, "lang", "en", "article language")
	cmd.Flags().StringVar(&k.timeRange, "time-range", "", "time range such as 24h, 7d or 1m; empty means unrestricted")
}

func (k *keyFlags) key(topic string) store.CacheKey {
	return store.CacheKey{Topic: topic, Language: k.language, TimeRange: k.timeRange, Depth: k.depth}.Normalize()
}

// NewRootCmd assembles the newsgraph command tree.
func NewRootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "newsgraph",
		Short:         "Build and manage cached news knowledge graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(open),
		newResolveCmd(open),
		newLookupCmd(open),
		newInvalidateCmd(open),
		newTopicsCmd(open),
		newFailuresCmd(open),
	)
	return root
}

func withRuntime(cmd *cobra.Command, open Opener, fn func(ctx context.Context, rt *Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := open(ctx)
	if err != nil {
		return err
	}
	if rt.Close != nil {
		defer rt.Close()
	}
	return fn(ctx, rt)
}

func newMigrateCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the cache schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				// Opening already ran Init; running it again proves idempotency.
				if err := rt.Cache.Init(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache schema is up to date")
				return nil
			})
		},
	}
}

func newResolveCmd(open Opener) *cobra.Command {
	var (
		k       keyFlags
		apiKey  string
		baseURL string
		force   bool
		pretty  bool
		out     string
	)
	cmd := &cobra.Command{
		Use:   "resolve <topic>",
		Short: "Resolve a topic to a graph, extracting it on a cache miss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				res, err := rt.Graphs.ResolveGraph(ctx, graph.ResolveRequest{
					Topic:     args[0],
					APIKey:    apiKey,
					Depth:     k.depth,
					Language:  k.language,
					TimeRange: k.timeRange,
					BaseURL:   baseURL,
					Force:     force,
				})
				if err != nil {
					return err
				}
				if res.Cached {
					fmt.Fprintln(cmd.ErrOrStderr(), "served from cache")
				}
				return writePayload(cmd, res.Raw, pretty, out)
			})
		},
	}
	k.register(cmd)
	cmd.Flags().StringVar(&apiKey, "key", "", "api key for the extraction model; defaults to AI_CHAT_KEY")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "override the extraction model endpoint")
	cmd.Flags().BoolVar(&force, "force", false, "re-extract even when cached")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the graph to this file instead of stdout")
	return cmd
}

func newLookupCmd(open Opener) *cobra.Command {
	var (
		k      keyFlags
		pretty bool
	)
	cmd := &cobra.Command{
		Use:   "lookup <topic>",
		Short: "Print a cached graph without extracting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				key := k.key(args[0])
				raw, found, err := rt.Cache.Lookup(ctx, key)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %s", ErrNotCached, key.String())
				}
				return writePayload(cmd, raw, pretty, "")
			})
		},
	}
	k.register(cmd)
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return cmd
}

func newInvalidateCmd(open Opener) *cobra.Command {
	var k keyFlags
	cmd := &cobra.Command{
		Use:   "invalidate <topic>",
		Short: "Delete one cached graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				inv, ok := rt.Cache.(store.Invalidator)
				if !ok {
					return errors.New("cache backend does not support invalidation")
				}
				key := k.key(args[0])
				if err := inv.Delete(ctx, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", key.String())
				return nil
			})
		},
	}
	k.register(cmd)
	return cmd
}

func newTopicsCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List the topic registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				lister, ok := rt.Cache.(store.TopicLister)
				if !ok {
					return errors.New("cache backend does not support listing topics")
				}
				topics, err := lister.ListTopics(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TOPIC\tGRAPHS\tCREATED")
				for _, t := range topics {
					fmt.Fprintf(w, "%s\t%d\t%s\n", t.Name, t.Graphs, t.CreatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
}

func newFailuresCmd(open Opener) *cobra.Command {
	var get string
	cmd := &cobra.Command{
		Use:   "failures [topic]",
		Short: "List archived model answers that failed to parse",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				if rt.Failures == nil {
					return errors.New("failure archive is not configured (set ARCHIVE_FAILURES)")
				}
				if get != "" {
					body, err := rt.Failures.GetFailure(ctx, get)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(body)
					return err
				}

				topic := ""
				if len(args) == 1 {
					topic = args[0]
				}
				keys, err := rt.Failures.ListFailures(ctx, topic)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&get, "get", "", "print the archived answer stored under this object key")
	return cmd
}

func writePayload(cmd *cobra.Command, raw string, pretty bool, out string) error {
	data := []byte(raw)
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return fmt.Errorf("failed to indent graph: %w", err)
		}
		data = buf.Bytes()
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	if out == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "graph written to %s\n", out)
	return nil
}
