package adapter

import (
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

// Resolve builds the Adapter for a configuration's ProtocolSettings (§4.2).
// The switch is exhaustive over model.Protocol; an unrecognized or
// mismatched tag is a ConfigurationError, never a panic.
func Resolve(ps model.ProtocolSettings, secrets SecretResolver) (Adapter, error) {
	switch ps.Protocol {
	case model.ProtocolFTP:
		if ps.FTP == nil {
			return nil, svcerr.New(svcerr.ConfigurationError, nil, "protocolSettings: ftp settings missing for FTP protocol")
		}
		return NewFTP(ps.FTP, secrets), nil
	case model.ProtocolHTTPS:
		if ps.HTTPS == nil {
			return nil, svcerr.New(svcerr.ConfigurationError, nil, "protocolSettings: https settings missing for HTTPS protocol")
		}
		return NewHTTPS(ps.HTTPS, secrets), nil
	case model.ProtocolAzureBlob:
		if ps.AzureBlob == nil {
			return nil, svcerr.New(svcerr.ConfigurationError, nil, "protocolSettings: azureBlob settings missing for AzureBlob protocol")
		}
		return NewAzureBlob(ps.AzureBlob, secrets), nil
	default:
		return nil, svcerr.New(svcerr.ConfigurationError, nil, "protocolSettings: unknown protocol %q", ps.Protocol)
	}
}
