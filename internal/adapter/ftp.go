package adapter

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

// ftpAdapter implements Adapter over FTP/FTPS (§4.2).
type ftpAdapter struct {
	settings *model.FTPSettings
	secrets  SecretResolver
}

func NewFTP(settings *model.FTPSettings, secrets SecretResolver) Adapter {
	return &ftpAdapter{settings: settings, secrets: secrets}
}

func (a *ftpAdapter) dial(ctx context.Context) (*ftp.ServerConn, error) {
	timeout := a.settings.ConnectionTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	addr := fmt.Sprintf("%s:%d", a.settings.Server, a.settings.Port)
	if a.settings.Port == 0 {
		addr = fmt.Sprintf("%s:21", a.settings.Server)
	}

	opts := []ftp.DialOption{ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx)}
	if a.settings.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(nil))
	}
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, classifyNetErr(err, "ftp.dial")
	}

	password := ""
	if a.settings.PasswordSecretID != "" {
		password, err = a.secrets.Resolve(ctx, a.settings.PasswordSecretID)
		if err != nil {
			_ = conn.Quit()
			return nil, svcerr.New(svcerr.AuthenticationFailure, err, "ftp: resolve password secret")
		}
	}
	if err := conn.Login(a.settings.Username, password); err != nil {
		_ = conn.Quit()
		return nil, classifyNetErr(err, "ftp.login")
	}
	return conn, nil
}

func (a *ftpAdapter) List(ctx context.Context, pathPattern, filenamePattern, fileExtension string) ([]model.ListedFile, error) {
	conn, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(pathPattern)
	if err != nil {
		return nil, classifyNetErr(err, "ftp.list")
	}

	var out []model.ListedFile
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if !matchesName(e.Name, filenamePattern, fileExtension) {
			continue
		}
		out = append(out, model.ListedFile{
			FileURL:      joinFTPURL(a.settings.Server, pathPattern, e.Name),
			Filename:     e.Name,
			Size:         int64(e.Size),
			LastModified: e.Time,
		})
	}
	return out, nil
}

func (a *ftpAdapter) Download(ctx context.Context, fileURL string) (ReadCloserWithSize, error) {
	conn, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	remotePath := ftpPathFromURL(fileURL)

	size, err := conn.FileSize(remotePath)
	if err != nil {
		size = -1
	}
	resp, err := conn.Retr(remotePath)
	if err != nil {
		_ = conn.Quit()
		return nil, classifyNetErr(err, "ftp.retr")
	}
	return &ftpDownload{resp: resp, conn: conn, size: size}, nil
}

// ftpDownload owns the control connection for the lifetime of one download,
// closing it only once the data stream is closed (jlaffaye/ftp requires the
// response be drained and the connection kept alive across the transfer).
type ftpDownload struct {
	resp *ftp.Response
	conn *ftp.ServerConn
	size int64
}

func (d *ftpDownload) Read(p []byte) (int, error) { return d.resp.Read(p) }
func (d *ftpDownload) Size() int64                { return d.size }
func (d *ftpDownload) Close() error {
	err := d.resp.Close()
	_ = d.conn.Quit()
	return err
}

func matchesName(name, filenamePattern, fileExtension string) bool {
	if fileExtension != "" && !strings.HasSuffix(name, fileExtension) {
		return false
	}
	if filenamePattern == "" || filenamePattern == "*" {
		return true
	}
	return globMatch(filenamePattern, name)
}

// globMatch supports the single "*" wildcard forms filename patterns use
// (§4.2). Matching is case-insensitive throughout, per §4.2's "case-
// insensitive exact match unless it contains * wildcards" — folding case
// before path.Match keeps that insensitivity for the glob form too.
func globMatch(pattern, name string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return strings.EqualFold(pattern, name)
	}
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(name))
	return err == nil && ok
}

func joinFTPURL(server, dir, name string) string {
	dir = strings.TrimSuffix(dir, "/")
	return fmt.Sprintf("ftp://%s%s/%s", server, dir, name)
}

func ftpPathFromURL(fileURL string) string {
	i := strings.Index(fileURL, "://")
	if i < 0 {
		return fileURL
	}
	rest := fileURL[i+3:]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return "/"
	}
	return rest[slash:]
}
