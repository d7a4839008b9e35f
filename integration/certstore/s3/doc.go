// Package s3 stores certificate/key pairs in an S3 bucket, one pair of
// PEM objects per domain. It implements the certstore.Store contract and
// works with S3-compatible services like MinIO via a custom endpoint.
package s3
