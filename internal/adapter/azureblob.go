package adapter

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/pkg/errors"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

// azureBlobAdapter implements Adapter over Azure Blob Storage (§4.2),
// grounded on the provider-struct shape of aistore's ais/cloud/gcp.go (one
// provider wraps one client/pipeline, methods translate SDK errors through
// classifyNetErr) and on the azure-storage-blob-go call sequence the
// reference pack's azcopy sources use (NewPipeline, ContainerURL,
// ListBlobsFlatSegment, NewBlobURL.Download).
type azureBlobAdapter struct {
	settings *model.AzureBlobSettings
	secrets  SecretResolver
}

func NewAzureBlob(settings *model.AzureBlobSettings, secrets SecretResolver) Adapter {
	return &azureBlobAdapter{settings: settings, secrets: secrets}
}

func (a *azureBlobAdapter) containerURL(ctx context.Context) (azblob.ContainerURL, error) {
	cred, err := a.credential(ctx)
	if err != nil {
		return azblob.ContainerURL{}, err
	}
	pipeline := azblob.NewPipeline(cred, azblob.PipelineOptions{
		Retry: azblob.RetryOptions{Policy: azblob.RetryPolicyExponential, MaxTries: 3},
	})
	rawURL := "https://" + a.settings.StorageAccount + ".blob.core.windows.net/" + a.settings.Container
	if a.settings.AuthType == model.AzureAuthSasToken {
		sas, err := a.secrets.Resolve(ctx, a.settings.SasTokenSecretID)
		if err != nil {
			return azblob.ContainerURL{}, svcerr.New(svcerr.AuthenticationFailure, err, "azureblob: resolve sas token")
		}
		rawURL += "?" + strings.TrimPrefix(sas, "?")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return azblob.ContainerURL{}, svcerr.New(svcerr.ConfigurationError, err, "azureblob: build container url")
	}
	return azblob.NewContainerURL(*u, pipeline), nil
}

func (a *azureBlobAdapter) credential(ctx context.Context) (azblob.Credential, error) {
	switch a.settings.AuthType {
	case model.AzureAuthConnectionString:
		conn, err := a.secrets.Resolve(ctx, a.settings.ConnectionStringSecretID)
		if err != nil {
			return nil, svcerr.New(svcerr.AuthenticationFailure, err, "azureblob: resolve connection string")
		}
		accountName, accountKey, err := parseAzureConnectionString(conn)
		if err != nil {
			return nil, svcerr.New(svcerr.ConfigurationError, err, "azureblob: malformed connection string")
		}
		cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
		if err != nil {
			return nil, svcerr.New(svcerr.AuthenticationFailure, err, "azureblob: shared key credential")
		}
		return cred, nil
	case model.AzureAuthSasToken, model.AzureAuthManagedIdentity, model.AzureAuthServicePrincipal:
		// No SharedKeyCredential for these schemes. For SasToken,
		// containerURL appends the resolved SAS token to the container URL
		// and that query string carries authorization. For ManagedIdentity
		// and ServicePrincipal no token is acquired here: requests go out
		// with the anonymous credential only, and ClientSecretID is not read.
		return azblob.NewAnonymousCredential(), nil
	default:
		return azblob.NewAnonymousCredential(), nil
	}
}

func (a *azureBlobAdapter) List(ctx context.Context, pathPattern, filenamePattern, fileExtension string) ([]model.ListedFile, error) {
	cu, err := a.containerURL(ctx)
	if err != nil {
		return nil, err
	}
	prefix := a.settings.BlobPrefix
	if pathPattern != "" && pathPattern != "/" {
		prefix = strings.TrimPrefix(path.Join(prefix, pathPattern), "/")
	}

	var out []model.ListedFile
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := cu.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{Prefix: prefix})
		if err != nil {
			return nil, classifyNetErr(err, "azureblob.list")
		}
		for _, item := range resp.Segment.BlobItems {
			name := path.Base(item.Name)
			if !matchesName(name, filenamePattern, fileExtension) {
				continue
			}
			var size int64
			if item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			out = append(out, model.ListedFile{
				FileURL:      "azblob://" + a.settings.Container + "/" + item.Name,
				Filename:     name,
				Size:         size,
				LastModified: item.Properties.LastModified,
			})
		}
		marker = resp.NextMarker
	}
	return out, nil
}

func (a *azureBlobAdapter) Download(ctx context.Context, fileURL string) (ReadCloserWithSize, error) {
	cu, err := a.containerURL(ctx)
	if err != nil {
		return nil, err
	}
	blobName := azureBlobNameFromURL(fileURL)
	blobURL := cu.NewBlobURL(blobName)

	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false)
	if err != nil {
		return nil, classifyNetErr(err, "azureblob.download")
	}
	body := resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	return &azureBlobDownload{rc: body, size: resp.ContentLength()}, nil
}

type azureBlobDownload struct {
	rc   interface {
		Read(p []byte) (int, error)
		Close() error
	}
	size int64
}

func (d *azureBlobDownload) Read(p []byte) (int, error) { return d.rc.Read(p) }
func (d *azureBlobDownload) Close() error                { return d.rc.Close() }
func (d *azureBlobDownload) Size() int64                 { return d.size }

func azureBlobNameFromURL(fileURL string) string {
	const prefix = "azblob://"
	rest := strings.TrimPrefix(fileURL, prefix)
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return rest
	}
	return rest[slash+1:]
}

// parseAzureConnectionString extracts AccountName/AccountKey from a
// standard "Key1=Value1;Key2=Value2;..." Azure connection string.
func parseAzureConnectionString(conn string) (accountName, accountKey string, err error) {
	for _, part := range strings.Split(conn, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "AccountName":
			accountName = kv[1]
		case "AccountKey":
			accountKey = kv[1]
		}
	}
	if accountName == "" || accountKey == "" {
		return "", "", errors.New("azureblob: connection string missing AccountName/AccountKey")
	}
	return accountName, accountKey, nil
}
