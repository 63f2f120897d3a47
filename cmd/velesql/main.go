// Velesql runs VelesQL queries and graph traversals against a VelesDB server.
//
// Usage:
//
//	velesql [-metrics-addr addr] <command> [flags] [query]
//
// Commands:
//
//	query     run a query, printing its normalized response
//	explain   print the execution plan of a query
//	batch     run the {"query", "params"} JSON lines read from stdin
//	traverse  stream a graph traversal, printing one line per event
//
// The server is configured with VELESDB_* environment variables, see [velesdb.LoadConfig].
// Logs are configured with VELESQL_LOG_LEVEL and VELESQL_LOG_FMT.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/birdie-ai/velesdb-go/event"
	"github.com/birdie-ai/velesdb-go/service"
	"github.com/birdie-ai/velesdb-go/slog"
	"github.com/birdie-ai/velesdb-go/tracing"
	"github.com/birdie-ai/velesdb-go/velesdb"
	"github.com/birdie-ai/velesdb-go/velesql"
	"github.com/birdie-ai/velesdb-go/xjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// gocloud drivers for -publish
	_ "gocloud.dev/pubsub/gcppubsub"
	_ "gocloud.dev/pubsub/mempubsub"
)

const shutdownPeriod = 10 * time.Second

func main() {
	logcfg, err := slog.LoadConfig("VELESQL")
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading log config: %v\n", err)
		os.Exit(2)
	}
	if err := slog.Configure(logcfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuring logs: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Fatal("velesql failed", "error", err)
	}
}

// run executes the command line args, reading batches from stdin and writing JSON lines to stdout.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	global := flag.NewFlagSet("velesql", flag.ContinueOnError)
	metricsAddr := global.String("metrics-addr", "", "serve prometheus metrics on this address, like :9090")
	global.Usage = func() {
		fmt.Fprintln(global.Output(), "usage: velesql [-metrics-addr addr] query|explain|batch|traverse [flags] [query]")
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return flag.ErrHelp
	}

	cfg, err := velesdb.LoadConfig("VELESDB")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cmd := command{stdout: json.NewEncoder(stdout), cfg: cfg}
	name, cmdArgs := global.Arg(0), global.Args()[1:]

	var runCmd func(context.Context, []string) error
	switch name {
	case "query":
		runCmd = cmd.query
	case "explain":
		runCmd = cmd.explain
	case "batch":
		runCmd = func(ctx context.Context, args []string) error {
			return cmd.batch(ctx, args, stdin)
		}
	case "traverse":
		runCmd = cmd.traverse
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	ctx, _ = tracing.EnsureTraceID(ctx)
	if *metricsAddr != "" {
		// The metrics server outlives the command, it stops when run returns.
		serverCtx, stop := context.WithCancel(ctx)
		shutdown := service.NewShutdownHandler(shutdownPeriod)
		shutdown.Add(serveMetrics(serverCtx, *metricsAddr))
		shutdownDone := make(chan error)
		go func() {
			shutdownDone <- shutdown.Wait(serverCtx)
		}()
		defer func() {
			stop()
			if err := <-shutdownDone; err != nil {
				slog.FromCtx(serverCtx).Warn("velesql: shutting down metrics server", "error", err)
			}
		}()
	}
	return runCmd(ctx, cmdArgs)
}

// serveMetrics serves the client, event and build metrics until the returned server is shut down.
func serveMetrics(ctx context.Context, addr string) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	velesdb.MustRegisterMetrics(registry)
	event.MustRegisterMetrics(registry)
	service.MustRegisterMetrics(registry)
	info := service.SampleBuildInfo()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           tracing.InstrumentHTTP(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log := slog.FromCtx(ctx).With("addr", addr)
	go func() {
		log.Info("velesql: serving metrics", "version", info.Version, "revision", info.Revision)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("velesql: metrics server failed", "error", err)
		}
	}()
	return server
}

type command struct {
	stdout *json.Encoder
	cfg    velesdb.Config
}

func (c command) client(opts ...velesdb.ClientOption) (*velesdb.Client, error) {
	return velesdb.NewFromConfig(c.cfg, opts...)
}

func (c command) query(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("query", flag.ContinueOnError)
	collection := flags.String("c", "", "collection, required for MATCH queries")
	threshold := flags.Float64("threshold", -1, "minimum similarity of MATCH results, between 0 and 1")
	vector := flags.String("vector", "", "query vector of MATCH queries as a JSON array")
	var params paramsFlag
	flags.Var(&params, "param", "query parameter as name=<json value>, may be repeated")
	if err := flags.Parse(args); err != nil {
		return err
	}
	text, err := queryText(flags)
	if err != nil {
		return err
	}

	var opts []velesdb.QueryOption
	if *threshold >= 0 {
		opts = append(opts, velesdb.WithThreshold(*threshold))
	}
	if *vector != "" {
		v, err := xjson.Decode[[]float32]([]byte(*vector))
		if err != nil {
			return fmt.Errorf("parsing -vector: %w", err)
		}
		opts = append(opts, velesdb.WithVector(v))
	}

	client, err := c.client()
	if err != nil {
		return err
	}
	resp, err := client.Query(ctx, *collection, velesql.Query{Text: text, Params: params.Params()}, opts...)
	if err != nil {
		return err
	}
	return c.stdout.Encode(newResponseOutput(resp))
}

func (c command) explain(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("explain", flag.ContinueOnError)
	var params paramsFlag
	flags.Var(&params, "param", "query parameter as name=<json value>, may be repeated")
	if err := flags.Parse(args); err != nil {
		return err
	}
	text, err := queryText(flags)
	if err != nil {
		return err
	}

	client, err := c.client()
	if err != nil {
		return err
	}
	plan, err := client.Explain(ctx, velesql.Query{Text: text, Params: params.Params()})
	if err != nil {
		return err
	}
	return c.stdout.Encode(plan)
}

func (c command) batch(ctx context.Context, args []string, stdin io.Reader) error {
	flags := flag.NewFlagSet("batch", flag.ContinueOnError)
	collection := flags.String("c", "", "collection, required for MATCH queries")
	concurrency := flags.Int("concurrency", velesdb.DefaultBatchConcurrency, "queries sent at the same time")
	if err := flags.Parse(args); err != nil {
		return err
	}

	dec := xjson.NewDecoder[velesql.Query](stdin)
	var queries []velesql.Query
	for q := range dec.All() {
		queries = append(queries, q)
	}
	if err := dec.Error(); err != nil {
		return fmt.Errorf("reading query %d from stdin: %w", len(queries), err)
	}

	client, err := c.client(velesdb.WithBatchConcurrency(*concurrency))
	if err != nil {
		return err
	}
	responses, err := client.QueryBatch(ctx, *collection, queries)
	if err != nil {
		return err
	}
	for _, resp := range responses {
		if err := c.stdout.Encode(newResponseOutput(resp)); err != nil {
			return err
		}
	}
	return nil
}

func (c command) traverse(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("traverse", flag.ContinueOnError)
	collection := flags.String("c", "", "collection to traverse (required)")
	start := flags.Uint64("start", 0, "start node ID")
	algorithm := flags.String("algorithm", "", "traversal algorithm: bfs or dfs, server default when empty")
	depth := flags.Int("depth", 0, "maximum traversal depth, server default when zero")
	limit := flags.Int("limit", 0, "maximum number of nodes, server default when zero")
	rels := flags.String("rel", "", "comma separated relationship types to follow")
	publishURL := flags.String("publish", "", "also publish events to this gocloud topic URL, like mem://traversals")
	gcpProject := flags.String("gcp-project", "", "also publish events, ordered by collection, to a Google Pub/Sub topic of this project")
	gcpTopic := flags.String("gcp-topic", "", "Google Pub/Sub topic, used with -gcp-project")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *collection == "" {
		flags.Usage()
		return errors.New("missing -c collection")
	}

	params := velesdb.TraversalParams{
		StartNode: *start,
		Algorithm: velesdb.Algorithm(strings.ToLower(*algorithm)),
		MaxDepth:  *depth,
		Limit:     *limit,
	}
	switch params.Algorithm {
	case "", velesdb.BFS, velesdb.DFS:
	default:
		return fmt.Errorf("invalid -algorithm %q", *algorithm)
	}
	if *rels != "" {
		params.RelationshipTypes = strings.Split(*rels, ",")
	}

	// Events are printed in the same shape they are published.
	var (
		printErr   error
		streamErrs []error
	)
	emit := func(ev event.TraversalEvent) {
		ev.Collection = *collection
		if err := c.stdout.Encode(ev); err != nil && printErr == nil {
			printErr = err
		}
	}
	handlers := velesdb.StreamHandlers{
		OnNode:  func(n velesdb.NodeEvent) { emit(event.TraversalEvent{Type: "node", Node: &n}) },
		OnStats: func(s velesdb.StatsEvent) { emit(event.TraversalEvent{Type: "stats", Stats: &s}) },
		OnDone:  func(d velesdb.DoneEvent) { emit(event.TraversalEvent{Type: "done", Done: &d}) },
		OnError: func(err error) {
			streamErrs = append(streamErrs, err)
			emit(event.TraversalEvent{Type: "error", Error: err.Error()})
		},
	}

	var relays []*event.Relay
	if *publishURL != "" {
		pub, err := event.OpenPublisher[event.TraversalEvent](ctx, event.TraversalEventName, *publishURL)
		if err != nil {
			return err
		}
		defer shutdownPublisher(ctx, pub)
		relay := event.NewRelay(ctx, *collection, pub, handlers)
		relays = append(relays, relay)
		handlers = relay.Handlers()
	}
	if *gcpProject != "" || *gcpTopic != "" {
		if *gcpProject == "" || *gcpTopic == "" {
			return errors.New("-gcp-project and -gcp-topic must be used together")
		}
		pub, err := event.NewOrderedGooglePublisher[event.TraversalEvent](ctx, *gcpProject, *gcpTopic, event.TraversalEventName)
		if err != nil {
			return err
		}
		defer shutdownPublisher(ctx, pub)
		relay := event.NewRelay(ctx, *collection, pub.Sender(*collection), handlers)
		relays = append(relays, relay)
		handlers = relay.Handlers()
	}

	client, err := c.client()
	if err != nil {
		return err
	}
	if err := client.StreamTraversal(ctx, *collection, params, handlers); err != nil {
		return err
	}

	errs := []error{printErr}
	for _, r := range relays {
		errs = append(errs, r.Err())
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	// Parse failures don't end the stream, only the last error can be terminal.
	if n := len(streamErrs); n > 0 && !isParseError(streamErrs[n-1]) {
		return streamErrs[n-1]
	}
	return nil
}

// shutdownPublisher flushes the published events, even when ctx was cancelled.
func shutdownPublisher(ctx context.Context, pub service.Shutdowner) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownPeriod)
	defer cancel()
	if err := pub.Shutdown(ctx); err != nil {
		slog.FromCtx(ctx).Warn("velesql: shutting down publisher", "error", err)
	}
}

func isParseError(err error) bool {
	var verr *velesdb.Error
	return errors.As(err, &verr) && verr.Code == velesdb.CodeParseError
}

func queryText(flags *flag.FlagSet) (string, error) {
	text := strings.TrimSpace(strings.Join(flags.Args(), " "))
	if text == "" {
		flags.Usage()
		return "", errors.New("missing query")
	}
	return text, nil
}

// paramsFlag collects repeated name=<json value> flags.
type paramsFlag velesql.Params

func (p *paramsFlag) String() string {
	return fmt.Sprint(velesql.Params(*p))
}

func (p *paramsFlag) Set(s string) error {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimPrefix(name, "$")
	if !ok || name == "" {
		return fmt.Errorf("want name=<json value>, got %q", s)
	}
	v, err := xjson.Decode[any]([]byte(raw))
	if err != nil {
		// Unquoted strings are accepted as is.
		v = raw
	}
	if *p == nil {
		*p = paramsFlag{}
	}
	(*p)[name] = v
	return nil
}

func (p paramsFlag) Params() velesql.Params {
	return velesql.Params(p)
}

type (
	responseOutput struct {
		Classification string         `json:"classification"`
		Stats          statsOutput    `json:"stats"`
		Results        []resultOutput `json:"results"`
	}

	statsOutput struct {
		ExecutionTimeMs float64 `json:"execution_time_ms"`
		Strategy        string  `json:"strategy"`
		ScannedNodes    *int    `json:"scanned_nodes,omitempty"`
	}

	resultOutput struct {
		NodeID      uint64         `json:"node_id"`
		VectorScore *float64       `json:"vector_score,omitempty"`
		GraphScore  *float64       `json:"graph_score,omitempty"`
		FusedScore  *float64       `json:"fused_score,omitempty"`
		Bindings    map[string]any `json:"bindings,omitempty"`
		ColumnData  map[string]any `json:"column_data,omitempty"`
		Depth       *int           `json:"depth,omitempty"`
		Projected   map[string]any `json:"projected,omitempty"`
	}
)

func newResponseOutput(resp *velesdb.Response) responseOutput {
	out := responseOutput{
		Classification: resp.Classification.String(),
		Stats: statsOutput{
			ExecutionTimeMs: resp.Stats.ExecutionTimeMs,
			Strategy:        string(resp.Stats.Strategy),
			ScannedNodes:    resp.Stats.ScannedNodes,
		},
		Results: make([]resultOutput, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, resultOutput(r))
	}
	return out
}
