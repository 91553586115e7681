// Package objectstore talks to the S3-compatible bucket that receives uploads.
//
// Provider hands out a shared Client and rebuilds it from a Source whenever
// the backing credentials are unknown or close to expiry. S3Source builds
// clients with aws-sdk-go-v2 and reads the credential expiry from the shared
// credentials file. Every backend error is classified into a Kind so callers
// can tell a missing object from a degraded backend.
package objectstore
