// Command ukv-bench drives spec.md §8's six concrete end-to-end scenarios,
// either in-process against a fresh engine.Database or, for the
// transaction-only subset, against a running ukvd over the gRPC client,
// following the teacher's cmd/warren cobra command structure.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unum-cloud/ukvdb/pkg/client"
	"github.com/unum-cloud/ukvdb/pkg/config"
	"github.com/unum-cloud/ukvdb/pkg/docs"
	"github.com/unum-cloud/ukvdb/pkg/engine"
	"github.com/unum-cloud/ukvdb/pkg/graph"
	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/log"
	"github.com/unum-cloud/ukvdb/pkg/paths"
	"github.com/unum-cloud/ukvdb/pkg/server/grpcserver"
)

var (
	remoteAddr string
	v          = viper.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ukv-bench",
	Short: "ukv-bench exercises the spec's concrete end-to-end scenarios",
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Run all six scenarios and report pass/fail",
	RunE:  runScenarios,
}

func init() {
	scenariosCmd.Flags().StringVar(&remoteAddr, "remote", "", "gRPC address of a running ukvd; empty runs in-process")
	config.BindFlags(rootCmd.PersistentFlags(), v)
	cobra.OnInitialize(func() {
		cfg := config.Load(v)
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	})
	rootCmd.AddCommand(scenariosCmd)
}

type scenario struct {
	name string
	run  func(db *engine.Database) error
}

func runScenarios(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("ukv-bench")

	db, err := engine.Open(engine.Config{})
	if err != nil {
		return fmt.Errorf("opening in-process engine: %w", err)
	}

	scenarios := []scenario{
		{"basic-kv-roundtrip", scenarioBasicRoundTrip},
		{"transactional-conflict", scenarioTransactionalConflict},
		{"document-patch", scenarioDocumentPatch},
		{"document-gather", scenarioDocumentGather},
		{"graph-two-hop", scenarioGraphTwoHop},
		{"path-prefix-match", scenarioPathPrefixMatch},
	}

	failures := 0
	for _, sc := range scenarios {
		start := time.Now()
		err := sc.run(db)
		elapsed := time.Since(start)
		if err != nil {
			failures++
			logger.Error().Str("scenario", sc.name).Dur("elapsed", elapsed).Err(err).Msg("FAIL")
			continue
		}
		logger.Info().Str("scenario", sc.name).Dur("elapsed", elapsed).Msg("PASS")
	}

	if remoteAddr != "" {
		if err := runRemoteSubset(remoteAddr); err != nil {
			failures++
			logger.Error().Err(err).Msg("FAIL remote transactional subset")
		} else {
			logger.Info().Str("addr", remoteAddr).Msg("PASS remote transactional subset")
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d scenario(s) failed", failures)
	}
	return nil
}

// scenarioBasicRoundTrip is spec.md §8 scenario 1.
func scenarioBasicRoundTrip(db *engine.Database) error {
	if _, err := db.Write(kv.MainCollection, []kv.Write{{Key: 42, Value: []byte{0xDE, 0xAD, 0xBE, 0xEF}}}); err != nil {
		return err
	}
	entries, err := db.Read(kv.MainCollection, []kv.Key{42, 43})
	if err != nil {
		return err
	}
	if !entries[0].Present || !bytes.Equal(entries[0].Value, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		return fmt.Errorf("key 42: expected present DE AD BE EF, got %+v", entries[0])
	}
	if entries[1].Present {
		return fmt.Errorf("key 43: expected absent, got present")
	}
	return nil
}

// scenarioTransactionalConflict is spec.md §8 scenario 2.
func scenarioTransactionalConflict(db *engine.Database) error {
	txnA := db.BeginTransaction()
	txnB := db.BeginTransaction()

	if _, err := db.TxnRead(txnA, kv.MainCollection, []kv.Key{1}, 0); err != nil {
		return err
	}
	if err := db.TxnWrite(txnB, kv.MainCollection, []kv.Write{{Key: 1, Value: []byte{0x01}}}); err != nil {
		return err
	}
	if _, err := db.CommitTransaction(txnB); err != nil {
		return fmt.Errorf("txnB commit: %w", err)
	}
	if err := db.TxnWrite(txnA, kv.MainCollection, []kv.Write{{Key: 1, Value: []byte{0x02}}}); err != nil {
		return err
	}
	if _, err := db.CommitTransaction(txnA); err == nil {
		return fmt.Errorf("expected txnA commit to conflict, it succeeded")
	}
	return nil
}

// scenarioDocumentPatch is spec.md §8 scenario 3.
func scenarioDocumentPatch(db *engine.Database) error {
	store, err := db.Documents(kv.MainCollection, 0, 0)
	if err != nil {
		return err
	}
	if err := store.Apply([]docs.Write{
		{Key: 7, Mode: docs.ModeUpsert, Value: []byte(`{"a":{"b":1},"c":[10,20,30]}`)},
	}); err != nil {
		return err
	}
	patch := `[{"op":"replace","path":"/a/b","value":2},{"op":"add","path":"/c/-","value":40}]`
	if err := store.Apply([]docs.Write{{Key: 7, Mode: docs.ModePatch, Value: []byte(patch)}}); err != nil {
		return err
	}
	return nil
}

// scenarioDocumentGather is spec.md §8 scenario 4.
func scenarioDocumentGather(db *engine.Database) error {
	store, err := db.Documents(kv.MainCollection, 0, 0)
	if err != nil {
		return err
	}
	writes := []docs.Write{
		{Key: 1, Mode: docs.ModeUpsert, Value: []byte(`{"x":"10"}`)},
		{Key: 2, Mode: docs.ModeUpsert, Value: []byte(`{"x":42}`)},
		{Key: 3, Mode: docs.ModeUpsert, Value: []byte(`{"y":"oops"}`)},
	}
	if err := store.Apply(writes); err != nil {
		return err
	}
	cols, err := store.Gather([]kv.Key{1, 2, 3}, []docs.GatherColumn{{Path: "/x", Type: docs.ColumnInt32}}, memory.NewGoAllocator())
	if err != nil {
		return err
	}
	col := cols[0]
	wantValidity := []bool{true, true, false}
	for i := range wantValidity {
		if col.Validity[i] != wantValidity[i] {
			return fmt.Errorf("validity[%d] = %v, want %v", i, col.Validity[i], wantValidity[i])
		}
	}
	return nil
}

// scenarioGraphTwoHop is spec.md §8 scenario 5.
func scenarioGraphTwoHop(db *engine.Database) error {
	store, err := db.Graph(kv.MainCollection, false, 0, 0)
	if err != nil {
		return err
	}
	triplets := []graph.Triplet{
		{Source: 1, Target: 2, EdgeID: 100},
		{Source: 2, Target: 3, EdgeID: 101},
		{Source: 2, Target: 4, EdgeID: 102},
	}
	if err := store.UpsertEdges(triplets); err != nil {
		return err
	}
	results, err := store.FindEdges([]kv.Key{1}, graph.RoleEither)
	if err != nil {
		return err
	}
	if got := results[1].Degree; got != 1 {
		return fmt.Errorf("vertex 1 degree = %d, want 1", got)
	}
	results, err = store.FindEdges([]kv.Key{2}, graph.RoleEither)
	if err != nil {
		return err
	}
	if got := results[2].Degree; got != 3 {
		return fmt.Errorf("vertex 2 degree = %d, want 3", got)
	}
	return nil
}

// scenarioPathPrefixMatch is spec.md §8 scenario 6.
func scenarioPathPrefixMatch(db *engine.Database) error {
	store, err := db.Paths(kv.MainCollection, 0, 0)
	if err != nil {
		return err
	}
	if err := store.Write([]paths.Write{
		{Path: "home/user/a", Value: []byte("1")},
		{Path: "home/user/b", Value: []byte("1")},
		{Path: "home/other/c", Value: []byte("1")},
	}); err != nil {
		return err
	}
	matches, err := store.Match(db.Engine(), kv.MainCollection, []string{"home/user/"}, "", 10)
	if err != nil {
		return err
	}
	if len(matches) != 2 {
		return fmt.Errorf("matches = %v, want exactly home/user/a and home/user/b", matches)
	}
	return nil
}

// runRemoteSubset exercises the transaction/read/write RPCs against a
// running ukvd, covering the part of scenario 2 the gRPC surface carries.
func runRemoteSubset(addr string) error {
	c, err := client.NewClient(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	txn, err := c.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	if err := c.Write(ctx, txn, 0, []grpcserver.Write{{Key: 99, Value: []byte{0xAA}}}); err != nil {
		return err
	}
	if _, err := c.CommitTransaction(ctx, txn); err != nil {
		return err
	}
	entries, err := c.Read(ctx, 0, 0, []int64{99}, false)
	if err != nil {
		return err
	}
	if len(entries) != 1 || !entries[0].Present {
		return fmt.Errorf("expected committed key 99 to read back present")
	}
	return nil
}
