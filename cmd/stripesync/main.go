package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	envFile string
	jobOpts jobOptions

	rootCmd = &cobra.Command{
		Use:   "stripesync",
		Short: "Reconcile catalog document collections with Stripe products and prices",
		Long: `stripesync compares the documents of a collection with the active prices
in Stripe, creates or replaces what differs, writes the price ids back to the
documents and retires prices no document references.`,
		SilenceUsage: true,
	}

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Run a reconciliation pass for each configured job",
		RunE:  runSync,
	}
	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Show what a pass would change without calling mutating APIs",
		RunE:  runPlan,
	}
	purgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Clear the billing reference field on every document of a collection",
		RunE:  runPurge,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&jobOpts.Collection, "collection", "", "collection to reconcile (default SYNC_COLLECTION)")
	flags.StringVar(&jobOpts.Variant, "variant", "", "derivation variant: default, categoric or storefront")
	flags.StringVar(&jobOpts.NameKey, "name-key", "", "document field holding the product name")
	flags.StringVar(&jobOpts.PriceKey, "price-key", "", "document field holding the price")
	flags.StringVar(&jobOpts.CategoryKey, "category-key", "", "document field appended to the name by the categoric variant")
	flags.StringVar(&jobOpts.RefKey, "ref-key", "", "document field holding the billing price id")

	syncCmd.Flags().StringVar(&jobOpts.JobsFile, "jobs", "", "YAML file listing jobs; overrides the single-job flags")
	planCmd.Flags().StringVar(&jobOpts.JobsFile, "jobs", "", "YAML file listing jobs; overrides the single-job flags")

	rootCmd.AddCommand(syncCmd, planCmd, purgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.New(os.Stderr, "[stripesync] ", log.LstdFlags|log.LUTC).Printf("error: %v", err)
		os.Exit(1)
	}
}
