package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	VariantDefault    = "default"
	VariantCategoric  = "categoric"
	VariantStorefront = "storefront"

	// DefaultRefKey is the document field holding the billing price id.
	DefaultRefKey = "stripe"
)

// Job describes one collection to reconcile and how to read its documents.
type Job struct {
	Collection  string `yaml:"collection" json:"collection"`
	Variant     string `yaml:"variant" json:"variant"`
	NameKey     string `yaml:"nameKey" json:"nameKey"`
	PriceKey    string `yaml:"priceKey" json:"priceKey"`
	CategoryKey string `yaml:"categoryKey" json:"categoryKey"`
	RefKey      string `yaml:"refKey" json:"refKey"`
	DryRun      bool   `yaml:"dryRun" json:"dryRun"`
}

type jobFile struct {
	Jobs []Job `yaml:"jobs"`
}

// Normalize fills defaults and validates the job.
func (j Job) Normalize() (Job, error) {
	j.Collection = strings.TrimSpace(j.Collection)
	if j.Collection == "" {
		return j, fmt.Errorf("job: collection required")
	}
	j.Variant = strings.ToLower(strings.TrimSpace(j.Variant))
	switch j.Variant {
	case "":
		j.Variant = VariantDefault
	case "shopify":
		j.Variant = VariantStorefront
	case VariantDefault, VariantCategoric, VariantStorefront:
	default:
		return j, fmt.Errorf("job %s: unknown variant %q", j.Collection, j.Variant)
	}
	if j.Variant == VariantCategoric && strings.TrimSpace(j.CategoryKey) == "" {
		return j, fmt.Errorf("job %s: categoric variant requires categoryKey", j.Collection)
	}
	if j.RefKey == "" {
		j.RefKey = DefaultRefKey
	}
	return j, nil
}

// LoadJobs reads a YAML job file:
//
//	jobs:
//	  - collection: product
//	    variant: categoric
//	    categoryKey: category
func LoadJobs(path string) ([]Job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	var f jobFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse jobs file %s: %w", path, err)
	}
	if len(f.Jobs) == 0 {
		return nil, fmt.Errorf("jobs file %s: no jobs defined", path)
	}
	out := make([]Job, 0, len(f.Jobs))
	for _, j := range f.Jobs {
		n, err := j.Normalize()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
