// Package main provides the CLI entry point for the VirtEngine ML-pipeline
// execution coordinator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagConfigFile = "config"

	flagCoordinatorHost              = "coordinator.host"
	flagCoordinatorWorkerManagerPort = "coordinator.worker-manager-port"
	flagWorkspaceRoot                = "coordinator.workspace-root"
	flagTrainScript                  = "coordinator.train-script"
	flagComponentDoneTimeout         = "coordinator.component-done-timeout"

	flagSlotCount                       = "scheduler.default-num-slot"
	flagEnableCompatCheckOnCaching      = "scheduler.enable-compatibility-check-on-caching"
	flagEnableCompatCheckOnNewWorker    = "scheduler.enable-compatibility-check-on-new-worker"
	flagDebugDisableLevel3Check         = "scheduler.debug-disable-level3-check"
	flagDebugWorkerCreationDryRun       = "scheduler.debug-worker-creation-dry-run"
	flagDebugSingletonWorker            = "scheduler.debug-singleton-worker"

	flagCachePolicy = "cache.policy"

	flagPACAlpha           = "pac.alpha"
	flagPACHistoryCapacity = "pac.history-capacity"
	flagPACPipelineLength  = "pac.pipeline-length"
	flagPACMaxMajor        = "pac.max-major"
	flagPACMaxMinor        = "pac.max-minor"
	flagPACEnableSL        = "pac.enable-sl"
	flagPACEnableUL        = "pac.enable-ul"

	flagStorageEngine   = "storage.storage-engine"
	flagStoragePath     = "storage.path"
	flagStorageKeyPrefix = "storage.key-prefix"

	flagRedisAddr = "redis.addr"
	flagRedisKey  = "redis.occupancy-key"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mlpipe-coordinator",
	Short: "VirtEngine ML-pipeline execution coordinator",
	Long: `mlpipe-coordinator accepts declarative ML-pipeline submissions, drives a
pipeline-aware worker pool cache to reuse warm sandboxed worker processes
across submissions, streams intermediate artifacts through a versioned
content-addressed object store, and commits results back into that store.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline coordinator",
	RunE:  runCoordinator,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("mlpipe-coordinator v0.1.0")
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, flagConfigFile, "", "config file (default is $HOME/.mlpipe-coordinator.yaml)")

	runCmd.Flags().String(flagCoordinatorHost, "0.0.0.0", "Host the coordinator listens on for worker connections")
	runCmd.Flags().Int(flagCoordinatorWorkerManagerPort, 7070, "Port the coordinator listens on for worker connections")
	runCmd.Flags().String(flagWorkspaceRoot, "", "Local filesystem root for per-pipeline base/venv/temp/output directories")
	runCmd.Flags().String(flagTrainScript, "train.py", "Script name fabricated into the execute command for library stages")
	runCmd.Flags().Duration(flagComponentDoneTimeout, 0, "How long to wait for a dispatched component's done message (0 disables the bound)")

	runCmd.Flags().Int(flagSlotCount, 4, "Worker-set size (active+cached worker slots)")
	runCmd.Flags().Bool(flagEnableCompatCheckOnCaching, true, "Run the three-level compatibility check when looking for a reusable cached worker")
	runCmd.Flags().Bool(flagEnableCompatCheckOnNewWorker, true, "Run the three-level compatibility check against waiting components when a worker announces itself")
	runCmd.Flags().Bool(flagDebugDisableLevel3Check, false, "Skip the per-package superset compatibility check")
	runCmd.Flags().Bool(flagDebugWorkerCreationDryRun, false, "Log the launch command instead of spawning a worker process")
	runCmd.Flags().Bool(flagDebugSingletonWorker, false, "Always reuse the first cached worker, bypassing compatibility checks")

	runCmd.Flags().String(flagCachePolicy, "pac", "Worker-pool cache eviction policy: lru, lfu, fifo, or pac")

	runCmd.Flags().Float64(flagPACAlpha, 0.1, "PAC scaling rate alpha in (0,1)")
	runCmd.Flags().Int(flagPACHistoryCapacity, 32, "PAC submission history ring buffer size")
	runCmd.Flags().Int(flagPACPipelineLength, 3, "Fixed pipeline length L the PAC model tracks")
	runCmd.Flags().Int(flagPACMaxMajor, 3, "Maximum tracked major (api) version per PAC position")
	runCmd.Flags().Int(flagPACMaxMinor, 3, "Maximum tracked minor (inc) version per PAC position")
	runCmd.Flags().Bool(flagPACEnableSL, true, "Enable the stable-version-learning PAC update rule")
	runCmd.Flags().Bool(flagPACEnableUL, true, "Enable the update-direction-learning PAC update rule")

	runCmd.Flags().String(flagStorageEngine, "memory", "Storage provider backend: memory or badger")
	runCmd.Flags().String(flagStoragePath, "data/mlstorage", "On-disk path for the badger storage engine")
	runCmd.Flags().String(flagStorageKeyPrefix, "mlpipe", "Key prefix the semantic VCS namespaces its entries under")

	runCmd.Flags().String(flagRedisAddr, "", "Redis address for the worker-pool occupancy mirror (empty disables it)")
	runCmd.Flags().String(flagRedisKey, "mlpipe:worker_pool:occupancy", "Redis key the occupancy mirror publishes to")

	_ = viper.BindPFlags(runCmd.Flags())

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mlpipe-coordinator")
	}

	viper.SetEnvPrefix("MLPIPE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
