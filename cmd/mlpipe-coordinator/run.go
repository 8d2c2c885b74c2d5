package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/virtengine/mlpipe/pkg/mlcoordinator"
	"github.com/virtengine/mlpipe/pkg/mlpac"
	"github.com/virtengine/mlpipe/pkg/mlscheduler"
	"github.com/virtengine/mlpipe/pkg/mlstorage"
	"github.com/virtengine/mlpipe/pkg/mlvcs"
	"github.com/virtengine/mlpipe/pkg/mlworkerpool"
)

func runCoordinator(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, closeProvider, err := buildStorageProvider()
	if err != nil {
		return fmt.Errorf("build storage provider: %w", err)
	}
	defer closeProvider()

	vcs := mlvcs.New(provider, viper.GetString(flagStorageKeyPrefix))

	slotCount := viper.GetInt(flagSlotCount)
	metrics := mlworkerpool.NewMetrics("mlpipe")
	mirror := buildRedisMirror()

	var pacState *mlpac.State
	policy, pacState, err := buildCachePolicy(slotCount)
	if err != nil {
		return fmt.Errorf("build cache policy: %w", err)
	}
	cache := mlworkerpool.NewCache(slotCount, policy, metrics, mirror)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", viper.GetString(flagCoordinatorHost), viper.GetInt(flagCoordinatorWorkerManagerPort)))
	if err != nil {
		return fmt.Errorf("listen for worker connections: %w", err)
	}
	defer listener.Close()

	schedCfg := mlscheduler.Config{
		SlotCount:                           slotCount,
		EnableCompatibilityCheckOnCaching:   viper.GetBool(flagEnableCompatCheckOnCaching),
		EnableCompatibilityCheckOnNewWorker: viper.GetBool(flagEnableCompatCheckOnNewWorker),
		DebugDisableLevel3Check:             viper.GetBool(flagDebugDisableLevel3Check),
		DebugWorkerCreationDryRun:           viper.GetBool(flagDebugWorkerCreationDryRun),
		DebugSingletonWorker:                viper.GetBool(flagDebugSingletonWorker),
	}

	launcher := &processLauncher{dryRun: schedCfg.DebugWorkerCreationDryRun}

	var evictedNotice = func(evictedID string) {
		fmt.Printf("[mlpipe-coordinator] evicted cached worker %s to make room for a launch\n", evictedID)
	}

	sched := mlscheduler.New(schedCfg, cache, launcher, evictedNotice)

	coordCfg := mlcoordinator.Config{
		Host:                 viper.GetString(flagCoordinatorHost),
		WorkerManagerPort:    viper.GetInt(flagCoordinatorWorkerManagerPort),
		WorkspaceRoot:        viper.GetString(flagWorkspaceRoot),
		TrainScript:          viper.GetString(flagTrainScript),
		ComponentDoneTimeout: viper.GetDuration(flagComponentDoneTimeout),
	}

	var sink mlcoordinator.EventSink = mlcoordinator.LogEventSink{}
	if pacState != nil {
		sink = &pacTrackingSink{inner: sink, state: pacState}
	}

	co := mlcoordinator.New(coordCfg, sched, vcs, &tcpListener{l: listener}, sink)
	co.Run(ctx)

	fmt.Printf("mlpipe-coordinator listening on %s\n", listener.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		fmt.Printf("\nreceived signal %s, shutting down\n", sig)
	case <-ctx.Done():
	}

	co.Shutdown()
	return nil
}

func buildStorageProvider() (mlstorage.Provider, func(), error) {
	switch viper.GetString(flagStorageEngine) {
	case "badger":
		p, err := mlstorage.OpenBadgerProvider(viper.GetString(flagStoragePath), false)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case "memory", "":
		return mlstorage.NewMemoryProvider(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage engine %q (supported: memory, badger)", viper.GetString(flagStorageEngine))
	}
}

func buildRedisMirror() *mlworkerpool.RedisMirror {
	addr := viper.GetString(flagRedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return mlworkerpool.NewRedisMirror(client, viper.GetString(flagRedisKey), 30*time.Second)
}

func buildCachePolicy(slotCount int) (mlworkerpool.Policy, *mlpac.State, error) {
	switch viper.GetString(flagCachePolicy) {
	case "lru", "":
		return mlworkerpool.NewLRUPolicy(), nil, nil
	case "lfu":
		return mlworkerpool.NewLFUPolicy(), nil, nil
	case "fifo":
		return mlworkerpool.NewFIFOPolicy(), nil, nil
	case "pac":
		cfg := mlpac.Config{
			PipelineLength:  viper.GetInt(flagPACPipelineLength),
			MaxMajor:        viper.GetInt(flagPACMaxMajor),
			MaxMinor:        viper.GetInt(flagPACMaxMinor),
			Alpha:           viper.GetFloat64(flagPACAlpha),
			HistoryCapacity: viper.GetInt(flagPACHistoryCapacity),
			EnableSL:        viper.GetBool(flagPACEnableSL),
			EnableUL:        viper.GetBool(flagPACEnableUL),
		}
		state, err := mlpac.NewState(cfg)
		if err != nil {
			return nil, nil, err
		}
		return mlpac.NewPolicy(state), state, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache policy %q (supported: lru, lfu, fifo, pac)", viper.GetString(flagCachePolicy))
	}
}

// tcpListener adapts a net.Listener to mlcoordinator.Listener. Accepting is
// not itself context-aware at the net.Listener level, so Accept races the
// blocking call against ctx and closes the underlying listener on
// cancellation to unblock it.
type tcpListener struct {
	l net.Listener
}

func (t *tcpListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := t.l.Accept()
		ch <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		_ = t.l.Close()
		return nil, ctx.Err()
	case r := <-ch:
		return r.conn, r.err
	}
}
