// Package awscoverage compares the AWS part of the service catalog against
// the live list of AWS Pricing service codes.
package awscoverage

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/pricing"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
)

// PricingRegion is the region the Pricing API is served from
const PricingRegion = "us-east-1"

// Lister returns the service codes AWS currently publishes
type Lister interface {
	ServiceCodes(ctx context.Context) ([]string, error)
}

// PricingLister lists service codes through the AWS Pricing API
type PricingLister struct {
	client pricing.DescribeServicesAPIClient
}

// NewPricingLister loads the default AWS configuration (environment,
// shared config, instance role) and returns a lister.
func NewPricingLister(ctx context.Context) (*PricingLister, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(PricingRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewPricingListerFromClient(pricing.NewFromConfig(cfg)), nil
}

// NewPricingListerFromClient wraps an existing Pricing client
func NewPricingListerFromClient(client pricing.DescribeServicesAPIClient) *PricingLister {
	return &PricingLister{client: client}
}

// ServiceCodes pages through DescribeServices and returns every code, sorted
func (l *PricingLister) ServiceCodes(ctx context.Context) ([]string, error) {
	p := pricing.NewDescribeServicesPaginator(l.client, &pricing.DescribeServicesInput{
		FormatVersion: aws.String("aws_v1"),
	})

	var codes []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe services: %w", err)
		}
		for _, svc := range page.Services {
			if code := aws.ToString(svc.ServiceCode); code != "" {
				codes = append(codes, code)
			}
		}
	}
	sort.Strings(codes)
	return codes, nil
}

// Report is the result of a coverage check
type Report struct {
	// Mapped are catalog services whose service code AWS still publishes
	Mapped []string `json:"mapped"`
	// Stale are catalog services whose service code AWS no longer publishes
	Stale []string `json:"stale,omitempty"`
	// Unmapped are catalog services without a service code
	Unmapped []string `json:"unmapped,omitempty"`
	// Uncovered are live service codes no catalog service refers to
	Uncovered []string `json:"uncovered,omitempty"`

	LiveServices int     `json:"live_services"`
	Coverage     float64 `json:"coverage"`
}

// Check compares the catalog's AWS records with the live service codes
func Check(ctx context.Context, cat *catalog.Catalog, lister Lister) (*Report, error) {
	codes, err := lister.ServiceCodes(ctx)
	if err != nil {
		return nil, err
	}
	return Compare(cat.Records(catalog.AWS), codes), nil
}

// Compare builds a report from catalog records and live service codes.
// Coverage is the share of live codes referenced by the catalog.
func Compare(records []*catalog.ServiceRecord, liveCodes []string) *Report {
	live := make(map[string]bool, len(liveCodes))
	for _, c := range liveCodes {
		live[c] = true
	}

	report := &Report{LiveServices: len(live)}
	referenced := make(map[string]bool)
	for _, rec := range records {
		switch {
		case rec.ServiceCode == "":
			report.Unmapped = append(report.Unmapped, rec.Name)
		case live[rec.ServiceCode]:
			report.Mapped = append(report.Mapped, rec.Name)
			referenced[rec.ServiceCode] = true
		default:
			report.Stale = append(report.Stale, rec.Name)
		}
	}
	for code := range live {
		if !referenced[code] {
			report.Uncovered = append(report.Uncovered, code)
		}
	}

	sort.Strings(report.Mapped)
	sort.Strings(report.Stale)
	sort.Strings(report.Unmapped)
	sort.Strings(report.Uncovered)
	if len(live) > 0 {
		report.Coverage = float64(len(referenced)) / float64(len(live))
	}
	return report
}
