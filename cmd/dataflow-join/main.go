// Command dataflow-join wires two deterministic synthetic row generators
// through a boltstore-backed hashjoin.Operator and drains the output as
// newline-delimited JSON, as a manual smoke-test harness for the operator
// and its ambient stack (config, metrics, logging).
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/dataflow/align"
	"storj.io/dataflow/barrier"
	"storj.io/dataflow/config"
	"storj.io/dataflow/dataflowpb"
	"storj.io/dataflow/datum"
	"storj.io/dataflow/hashjoin"
	"storj.io/dataflow/keyspace"
	"storj.io/dataflow/metrics"
	"storj.io/dataflow/row"
	"storj.io/dataflow/statestore/boltstore"
	"storj.io/dataflow/streamchunk"
)

var mainErr = errs.Class("dataflow-join")

// registerRowsFlag is split out onto a bare *pflag.FlagSet, matching the
// teacher's convention of flag-registration helpers that don't need the
// rest of *cobra.Command.
func registerRowsFlag(fs *pflag.FlagSet, dst *int) {
	fs.IntVar(dst, "rows", 20, "number of synthetic rows to generate per side")
}

func main() {
	cmd := &cobra.Command{
		Use:   "dataflow-join",
		Short: "Run a demo streaming hash join over two synthetic generators.",
	}

	var cfg config.Config
	apply := config.Bind(cmd, &cfg)

	var verbose bool
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	var rowsPerSide int
	registerRowsFlag(cmd.Flags(), &rowsPerSide)

	var dumpBarriers bool
	cmd.Flags().BoolVar(&dumpBarriers, "dump-barriers", false, "hex-dump each aligned barrier as a dataflowpb envelope instead of logging it")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := apply(); err != nil {
			return mainErr.Wrap(err)
		}
		return run(cmd.Context(), &cfg, verbose, rowsPerSide, dumpBarriers)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, verbose bool, rowsPerSide int, dumpBarriers bool) error {
	logger, err := newLogger(verbose)
	if err != nil {
		return mainErr.Wrap(err)
	}
	defer func() { _ = logger.Sync() }()

	leftKeys, err := config.ParseIndices(cfg.LeftKeyIndices)
	if err != nil {
		return mainErr.Wrap(err)
	}
	rightKeys, err := config.ParseIndices(cfg.RightKeyIndices)
	if err != nil {
		return mainErr.Wrap(err)
	}
	leftPK, err := config.ParseIndices(cfg.LeftPKIndices)
	if err != nil {
		return mainErr.Wrap(err)
	}
	rightPK, err := config.ParseIndices(cfg.RightPKIndices)
	if err != nil {
		return mainErr.Wrap(err)
	}

	jt, err := parseJoinType(cfg.JoinType)
	if err != nil {
		return mainErr.Wrap(err)
	}

	store, err := boltstore.New(cfg.DBPath, "")
	if err != nil {
		return mainErr.Wrap(err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", zap.Error(err))
		}
	}()

	root := keyspace.Root(cfg.KeyspaceRoot)
	schema := row.Schema{datum.KindInt64, datum.KindInt64}

	left := hashjoin.SideConfig{
		Schema: schema, KeyIndices: leftKeys, PKIndices: leftPK,
		Keyspace: root.Child(keyspace.Left), Store: store,
	}
	right := hashjoin.SideConfig{
		Schema: schema, KeyIndices: rightKeys, PKIndices: rightPK,
		Keyspace: root.Child(keyspace.Right), Store: store,
	}

	collectors, stopMetrics, err := startMetrics(cfg.MetricsAddr, logger)
	if err != nil {
		return mainErr.Wrap(err)
	}
	defer stopMetrics()

	leftGen := newGenerator(schema, rowsPerSide, 1)
	rightGen := newGenerator(schema, rowsPerSide, 2)

	op, err := hashjoin.New(ctx, jt, leftGen, rightGen, left, right, collectors)
	if err != nil {
		return mainErr.Wrap(err)
	}
	defer op.Close()

	logger.Info("starting join",
		zap.String("join_type", jt.String()),
		zap.String("db_path", cfg.DBPath),
		zap.Int("rows_per_side", rowsPerSide))

	enc := json.NewEncoder(os.Stdout)
	for {
		msg, err := op.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down")
				return nil
			}
			return mainErr.Wrap(err)
		}
		if err := dump(enc, logger, msg, dumpBarriers); err != nil {
			return mainErr.Wrap(err)
		}
	}
}

// dump writes one aligner message to stdout: visible rows as newline-
// delimited JSON, and barriers either as a debug log line or, when
// dumpBarriers is set, as a hex-encoded dataflowpb envelope — the wire
// shape a real downstream actor would receive the barrier framed in.
func dump(enc *json.Encoder, logger *zap.Logger, msg align.Message, dumpBarriers bool) error {
	switch m := msg.(type) {
	case align.ChunkMessage:
		for i := 0; i < m.Chunk.Cardinality(); i++ {
			if !m.Chunk.Visible(i) {
				continue
			}
			if err := enc.Encode(rowRecord{Op: m.Chunk.Ops[i].String(), Row: m.Chunk.Rows[i].String()}); err != nil {
				return err
			}
		}
	case align.BarrierMessage:
		if dumpBarriers {
			env := dataflowpb.BarrierEnvelope(m.Barrier)
			buf := dataflowpb.EncodeEnvelope(nil, env)
			fmt.Fprintln(os.Stdout, hex.EncodeToString(buf))
		} else {
			logger.Debug("barrier", zap.Uint64("epoch", m.Barrier.Epoch.Curr))
		}
	}
	return nil
}

// startMetrics builds the Collectors for this run and, if addr is non-
// empty, serves them at addr+"/metrics" until the returned stop func is
// called. With an empty addr it returns a NoOp Collectors and a no-op stop.
func startMetrics(addr string, logger *zap.Logger) (*metrics.Collectors, func(), error) {
	if addr == "" {
		return metrics.NoOp(), func() {}, nil
	}

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg, "dataflow")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown", zap.Error(err))
		}
	}
	return collectors, stop, nil
}

type rowRecord struct {
	Op  string `json:"op"`
	Row string `json:"row"`
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func parseJoinType(s string) (hashjoin.JoinType, error) {
	switch s {
	case "inner":
		return hashjoin.Inner, nil
	case "left":
		return hashjoin.LeftOuter, nil
	case "right":
		return hashjoin.RightOuter, nil
	case "full":
		return hashjoin.FullOuter, nil
	default:
		return 0, mainErr.New("unknown join type %q", s)
	}
}

// generator is a deterministic synthetic align.Input: it emits n Insert
// chunks of one row each (key = i % (n/2+1) + idOffset, forcing repeated
// join-key collisions so the demo actually exercises multi-row matches),
// then one barrier, then blocks until ctx is cancelled.
type generator struct {
	schema   row.Schema
	n        int
	idOffset int64
	emitted  int
	barriers int
}

func newGenerator(schema row.Schema, n int, idOffset int64) *generator {
	return &generator{schema: schema, n: n, idOffset: idOffset}
}

func (g *generator) Next(ctx context.Context) (align.Message, error) {
	if g.emitted < g.n {
		keySpace := int64(g.n/2 + 1)
		key := int64(g.emitted)%keySpace + g.idOffset
		r := row.New(datum.Int64(key), datum.Int64(int64(g.emitted)))
		g.emitted++
		b := streamchunk.NewBuilder(g.schema, 1)
		b.Append(streamchunk.Insert, r)
		return align.ChunkMessage{Chunk: b.Build()}, nil
	}
	if g.barriers == 0 {
		g.barriers++
		return align.BarrierMessage{Barrier: barrier.New(0, 1)}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

var _ align.Input = (*generator)(nil)
