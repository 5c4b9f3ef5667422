// Package cost estimates the monthly cost of a generated artifact from
// substring markers.
//
// The estimator never parses the artifact. It walks the text once, left to
// right, and at each offset tries the rate table's markers longest first.
// A matched marker consumes its span, so "aws_s3_bucket_policy" is counted
// as the policy companion and never also as "aws_s3_bucket".
package cost
