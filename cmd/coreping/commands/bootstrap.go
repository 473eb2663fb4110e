package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/avsej/gocbcore-lite/channel"
	"github.com/avsej/gocbcore-lite/codec"
	"github.com/avsej/gocbcore-lite/internal/telemetry"
	"github.com/avsej/gocbcore-lite/sasl"
)

var (
	bootstrapBucket   string
	bootstrapUsername string
	bootstrapPassword string
	bootstrapTLS      bool
	bootstrapDeadline time.Duration
	bootstrapProfile  string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap <host:port>",
	Short: "Bootstrap one channel and report what was negotiated",
	Long: `bootstrap dials host:port, drives it through HELLO, error-map load,
SASL auth, and select-bucket, and prints the outcome of each stage.

Examples:
  coreping bootstrap 127.0.0.1:11210
  coreping bootstrap cluster.example.com:11210 --bucket default --username admin`,
	Args: cobra.ExactArgs(1),
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapBucket, "bucket", "", "bucket to select")
	bootstrapCmd.Flags().StringVar(&bootstrapUsername, "username", "", "SASL username")
	bootstrapCmd.Flags().StringVar(&bootstrapPassword, "password", "", "SASL password")
	bootstrapCmd.Flags().BoolVar(&bootstrapTLS, "tls", false, "treat the channel as TLS-protected when choosing the SASL mechanism (allows PLAIN); the connection itself is plain TCP")
	bootstrapCmd.Flags().DurationVar(&bootstrapDeadline, "deadline", 10*time.Second, "whole-pipeline bootstrap deadline")
	bootstrapCmd.Flags().StringVar(&bootstrapProfile, "profile", "", "Pyroscope endpoint to push a profile of this run to (disabled if empty)")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	node := args[0]

	if bootstrapProfile != "" {
		shutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
			Enabled:        true,
			ServiceName:    "coreping",
			ServiceVersion: Version,
			Endpoint:       bootstrapProfile,
			ProfileTypes:   []string{"cpu", "alloc_objects"},
		})
		if err != nil {
			return fmt.Errorf("start profiling: %w", err)
		}
		defer func() { _ = shutdown() }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), bootstrapDeadline)
	defer cancel()

	conn, err := channel.DialTimeout(ctx, "tcp", node, bootstrapDeadline)
	if err != nil {
		return fmt.Errorf("dial %s: %w", node, err)
	}

	cfg := channel.BootstrapConfig{
		Features:    []codec.Feature{codec.FeatureXError, codec.FeatureCollections, codec.FeatureSnappy, codec.FeatureAltRequests, codec.FeatureDuplex},
		Bucket:      bootstrapBucket,
		Credentials: sasl.StaticCredentials{Username: bootstrapUsername, Password: bootstrapPassword},
		TLSEnabled:  bootstrapTLS,
		Deadline:    time.Now().Add(bootstrapDeadline),
	}

	start := time.Now()
	result, err := channel.Bootstrap(ctx, node, "kv", conn, cfg)
	elapsed := time.Since(start)
	if err != nil {
		conn.Close()
		return fmt.Errorf("bootstrap %s: %w", node, err)
	}
	defer result.Endpoint.Close()

	printBootstrapResult(node, elapsed, result)
	return nil
}

func printBootstrapResult(node string, elapsed time.Duration, result *channel.BootstrapResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.Append([]string{"Node", node})
	table.Append([]string{"Elapsed", elapsed.String()})
	table.Append([]string{"Bucket selected", fmt.Sprintf("%v", result.BucketSelected)})
	table.Append([]string{"Error map loaded", fmt.Sprintf("%v", result.ErrorMap != nil)})
	table.Append([]string{"Collections manifest", fmt.Sprintf("%d bytes", len(result.ManifestRaw))})
	table.Append([]string{"Features", featureNames(result.Features)})

	table.Render()
}

var featureDisplayOrder = []struct {
	feature codec.Feature
	name    string
}{
	{codec.FeatureTLS, "TLS"},
	{codec.FeatureTCPNoDelay, "TCPNODELAY"},
	{codec.FeatureMutationSeqNo, "MUTATION_SEQNO"},
	{codec.FeatureTCPDelay, "TCPDELAY"},
	{codec.FeatureXattr, "XATTR"},
	{codec.FeatureXError, "XERROR"},
	{codec.FeatureSelectBucket, "SELECT_BUCKET"},
	{codec.FeatureSnappy, "SNAPPY"},
	{codec.FeatureJSON, "JSON"},
	{codec.FeatureDuplex, "DUPLEX"},
	{codec.FeatureClusterMapChangeNot, "CLUSTERMAP_CHANGE_NOTIFICATION"},
	{codec.FeatureUnorderedExecution, "UNORDERED_EXECUTION"},
	{codec.FeatureAltRequests, "ALT_REQUESTS"},
	{codec.FeatureSyncReplication, "SYNC_REPLICATION"},
	{codec.FeatureCollections, "COLLECTIONS"},
	{codec.FeatureVattr, "VATTR"},
}

func featureNames(set codec.FeatureSet) string {
	out := ""
	for _, entry := range featureDisplayOrder {
		if !set.Has(entry.feature) {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += entry.name
	}
	if out == "" {
		return "(none)"
	}
	return out
}
