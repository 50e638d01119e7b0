// Package adapter implements the Protocol Adapter Set (§4.2): one adapter
// per supported remote-location protocol, behind a common interface so the
// File-Check Service never branches on protocol itself.
//
// Shaped after aistore's ais/cloud providers (aws.go, gcp.go): a small
// provider struct wrapping a client, an error translation function
// (classifyNetErr), and
// List/Download methods with the same error-classification discipline.
package adapter

import (
	"context"
	"time"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
)

// Adapter is the uniform surface the File-Check Service drives (§4.2).
// Implementations must translate every transport-level failure into a
// *svcerr.Error via the package's error-classification helpers so the
// pipeline's retry/failure handling (§4.5) stays protocol-agnostic.
type Adapter interface {
	// List returns every remote file matching pathPattern/filenamePattern
	// (already token-expanded by the caller) under the configuration's
	// remote location.
	List(ctx context.Context, pathPattern, filenamePattern, fileExtension string) ([]model.ListedFile, error)

	// Download streams the file at fileURL, returning its size and a
	// reader the caller must close.
	Download(ctx context.Context, fileURL string) (ReadCloserWithSize, error)
}

// ReadCloserWithSize pairs a download stream with its declared size. HTTPS
// and AzureBlob report the response's size; FTP reports -1 when the server
// cannot tell the size before the transfer.
type ReadCloserWithSize interface {
	Read(p []byte) (int, error)
	Close() error
	Size() int64
}

// SecretResolver resolves a secret identifier to its current value. Adapters
// never see raw secret values outside of a connection attempt (§9).
type SecretResolver interface {
	Resolve(ctx context.Context, secretID string) (string, error)
}

// defaultDialTimeout is used when a configuration's ConnectionTimeout is
// zero, matching §4.2's adapter defaults.
const defaultDialTimeout = 30 * time.Second
