package domain

import (
	"fmt"
	"strings"
)

// Metric selects how query and record vectors are compared.
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricInnerProduct Metric = "inner_product"
)

// ParseMetric normalizes a metric name. An empty name means cosine.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cosine":
		return MetricCosine, nil
	case "inner_product", "dot":
		return MetricInnerProduct, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", ErrConfig, name)
	}
}

// IndexManifest is recorded by a vector index on first Init. Later opens
// must agree with it.
type IndexManifest struct {
	Metric    Metric `json:"metric"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
}

// Validate checks that the manifest describes a usable index.
func (m IndexManifest) Validate() error {
	if m.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrConfig, m.Dimension)
	}
	if _, err := ParseMetric(string(m.Metric)); err != nil {
		return err
	}
	return nil
}

// Compatible reports why other cannot open an index created with m.
func (m IndexManifest) Compatible(other IndexManifest) error {
	switch {
	case m.Metric != other.Metric:
		return fmt.Errorf("%w: index uses metric %s, requested %s", ErrStoreInit, m.Metric, other.Metric)
	case m.Dimension != other.Dimension:
		return fmt.Errorf("%w: index has dimension %d, requested %d", ErrStoreInit, m.Dimension, other.Dimension)
	case m.Model != "" && other.Model != "" && m.Model != other.Model:
		return fmt.Errorf("%w: index built with model %s, requested %s", ErrStoreInit, m.Model, other.Model)
	}
	return nil
}
