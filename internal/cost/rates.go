package cost

import (
	"fmt"

	"github.com/roach88/promptinfra/internal/ir"
)

// USD is the fixed-point cents amount used for every estimate.
type USD = ir.USD

// Rate is the monthly unit cost charged for each occurrence of Marker.
type Rate struct {
	Marker string `json:"marker"`
	Unit   USD    `json:"unit"`
}

// DefaultRates is the built-in rate table. Order breaks ties between
// markers of equal length.
func DefaultRates() []Rate {
	return []Rate{
		{Marker: "t2.micro", Unit: ir.Cents(850)},
		{Marker: "t2.small", Unit: ir.Cents(1700)},
		{Marker: "t2.medium", Unit: ir.Cents(3400)},
		{Marker: "aws_ebs_volume", Unit: ir.Cents(80)},
		{Marker: "aws_s3_bucket", Unit: ir.Cents(200)},
		{Marker: "aws_db_instance", Unit: ir.Cents(1500)},

		// Bucket companions carry no cost of their own. Listing them makes the
		// longer marker win so they do not count as extra buckets.
		{Marker: "aws_s3_bucket_policy", Unit: 0},
		{Marker: "aws_s3_bucket_versioning", Unit: 0},
		{Marker: "aws_s3_bucket_public_access_block", Unit: 0},
		{Marker: "aws_s3_bucket_server_side_encryption_configuration", Unit: 0},
	}
}

// ValidateRates rejects tables the scanner cannot use.
func ValidateRates(rates []Rate) error {
	seen := make(map[string]bool, len(rates))
	for i, r := range rates {
		if r.Marker == "" {
			return fmt.Errorf("rate %d: empty marker", i)
		}
		if r.Unit < 0 {
			return fmt.Errorf("rate %q: negative unit cost %s", r.Marker, r.Unit)
		}
		if seen[r.Marker] {
			return fmt.Errorf("rate %q: duplicate marker", r.Marker)
		}
		seen[r.Marker] = true
	}
	return nil
}
