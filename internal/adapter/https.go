package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

// httpsAdapter implements Adapter over a plain HTTPS directory-listing
// endpoint (§4.2). The listing response is expected to be a small XML
// index (see listIndex) the remote exposes at pathPattern; other formats are
// rejected as a ProtocolError. This mirrors the "index listing"
// contract most client SFTP-replacement HTTPS endpoints expose.
type httpsAdapter struct {
	settings *model.HTTPSSettings
	secrets  SecretResolver
	client   *fasthttp.Client
}

func NewHTTPS(settings *model.HTTPSSettings, secrets SecretResolver) Adapter {
	timeout := settings.ConnectionTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &httpsAdapter{
		settings: settings,
		secrets:  secrets,
		client: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxConnsPerHost:     64,
			MaxIdemponentCallAttempts: 1,
		},
	}
}

func (a *httpsAdapter) applyAuth(ctx context.Context, req *fasthttp.Request) error {
	switch a.settings.AuthType {
	case model.HTTPSAuthNone, "":
		return nil
	case model.HTTPSAuthUsernamePassword:
		pass, err := a.secrets.Resolve(ctx, a.settings.SecretID)
		if err != nil {
			return svcerr.New(svcerr.AuthenticationFailure, err, "https: resolve password secret")
		}
		req.Header.Set("Authorization", basicAuth(a.settings.UsernameOrKey, pass))
	case model.HTTPSAuthBearerToken:
		token, err := a.secrets.Resolve(ctx, a.settings.SecretID)
		if err != nil {
			return svcerr.New(svcerr.AuthenticationFailure, err, "https: resolve bearer token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case model.HTTPSAuthAPIKey:
		key, err := a.secrets.Resolve(ctx, a.settings.SecretID)
		if err != nil {
			return svcerr.New(svcerr.AuthenticationFailure, err, "https: resolve api key")
		}
		req.Header.Set("X-Api-Key", key)
	}
	return nil
}

func (a *httpsAdapter) do(ctx context.Context, url string) (*fasthttp.Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if err := a.applyAuth(ctx, req); err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, err
	}

	// MaxRedirects == 0 disables redirection even when FollowRedirects is set.
	var err error
	if a.settings.FollowRedirects && a.settings.MaxRedirects > 0 {
		err = a.client.DoRedirects(req, resp, a.settings.MaxRedirects)
	} else {
		err = a.client.Do(req, resp)
	}
	if err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, classifyNetErr(err, "https.do")
	}
	if resp.StatusCode() == fasthttp.StatusUnauthorized || resp.StatusCode() == fasthttp.StatusForbidden {
		code := resp.StatusCode()
		fasthttp.ReleaseResponse(resp)
		return nil, svcerr.New(svcerr.AuthenticationFailure, fmt.Errorf("https: status %d", code), "https: unauthorized")
	}
	if resp.StatusCode() >= 400 {
		code := resp.StatusCode()
		fasthttp.ReleaseResponse(resp)
		return nil, svcerr.New(svcerr.ProtocolError, fmt.Errorf("https: status %d", code), "https: unexpected status")
	}
	return resp, nil
}

// listIndex is the minimal directory-index shape expected back from
// pathPattern: a flat list of file entries. Real deployments vary; this is
// the lowest common denominator the service depends on (§4.2).
type listIndex struct {
	XMLName xml.Name        `xml:"Files"`
	Entries []listIndexFile `xml:"File"`
}

type listIndexFile struct {
	Name         string `xml:"Name"`
	Size         int64  `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

func (a *httpsAdapter) List(ctx context.Context, pathPattern, filenamePattern, fileExtension string) ([]model.ListedFile, error) {
	url := joinHTTPSURL(a.settings.BaseURL, pathPattern)
	resp, err := a.do(ctx, url)
	if err != nil {
		return nil, err
	}
	defer fasthttp.ReleaseResponse(resp)

	var idx listIndex
	if err := xml.Unmarshal(resp.Body(), &idx); err != nil {
		return nil, svcerr.New(svcerr.ProtocolError, err, "https: decode listing")
	}

	var out []model.ListedFile
	for _, f := range idx.Entries {
		if !matchesName(f.Name, filenamePattern, fileExtension) {
			continue
		}
		out = append(out, model.ListedFile{
			FileURL:  joinHTTPSURL(a.settings.BaseURL, strings.TrimSuffix(pathPattern, "/")+"/"+f.Name),
			Filename: f.Name,
			Size:     f.Size,
		})
	}
	return out, nil
}

func (a *httpsAdapter) Download(ctx context.Context, fileURL string) (ReadCloserWithSize, error) {
	resp, err := a.do(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	body := append([]byte(nil), resp.Body()...)
	size := int64(len(body))
	fasthttp.ReleaseResponse(resp)
	return &httpsDownload{r: bytes.NewReader(body), size: size}, nil
}

type httpsDownload struct {
	r    *bytes.Reader
	size int64
}

func (d *httpsDownload) Read(p []byte) (int, error) { return d.r.Read(p) }
func (d *httpsDownload) Close() error                { return nil }
func (d *httpsDownload) Size() int64                 { return d.size }

func joinHTTPSURL(base, suffix string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	return base + suffix
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
