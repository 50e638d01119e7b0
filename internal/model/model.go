// Package model defines the domain types persisted and exchanged by the
// file-discovery service: retrieval configurations, executions, discovered
// files, and processed-file records (§3).
package model

import "time"

// Protocol tags the remote-location kind a configuration talks to.
type Protocol string

const (
	ProtocolFTP       Protocol = "FTP"
	ProtocolHTTPS     Protocol = "HTTPS"
	ProtocolAzureBlob Protocol = "AzureBlob"
)

// HTTPSAuthType enumerates the HTTPS adapter's supported authentication schemes.
type HTTPSAuthType string

const (
	HTTPSAuthNone             HTTPSAuthType = "None"
	HTTPSAuthUsernamePassword HTTPSAuthType = "UsernamePassword"
	HTTPSAuthBearerToken      HTTPSAuthType = "BearerToken"
	HTTPSAuthAPIKey           HTTPSAuthType = "ApiKey"
)

// AzureAuthType enumerates the Azure Blob adapter's supported auth schemes.
type AzureAuthType string

const (
	AzureAuthConnectionString AzureAuthType = "ConnectionString"
	AzureAuthSasToken         AzureAuthType = "SasToken"
	AzureAuthManagedIdentity  AzureAuthType = "ManagedIdentity"
	AzureAuthServicePrincipal AzureAuthType = "ServicePrincipal"
)

// FTPSettings holds FTP/FTPS connection settings. Secrets are identifiers,
// never values (§9).
type FTPSettings struct {
	Server               string        `json:"server"`
	Port                 int           `json:"port"`
	Username             string        `json:"username"`
	PasswordSecretID     string        `json:"passwordSecretId"`
	TLS                  bool          `json:"tls"`
	PassiveMode          bool          `json:"passiveMode"`
	ConnectionTimeout    time.Duration `json:"connectionTimeout"`
}

// HTTPSSettings holds HTTPS connection settings.
type HTTPSSettings struct {
	BaseURL           string        `json:"baseUrl"` // must begin with https://, len <= 500
	AuthType          HTTPSAuthType `json:"authType"`
	UsernameOrKey     string        `json:"usernameOrKey,omitempty"`     // <= 200
	SecretID          string        `json:"secretId,omitempty"`          // <= 200
	ConnectionTimeout time.Duration `json:"connectionTimeout"`
	FollowRedirects   bool          `json:"followRedirects"`
	MaxRedirects      int           `json:"maxRedirects"` // 0-10
}

// AzureBlobSettings holds Azure Blob Storage connection settings.
type AzureBlobSettings struct {
	StorageAccount        string        `json:"storageAccount"`
	Container             string        `json:"container"`
	AuthType              AzureAuthType `json:"authType"`
	ConnectionStringSecretID string     `json:"connectionStringSecretId,omitempty"`
	SasTokenSecretID      string        `json:"sasTokenSecretId,omitempty"`
	ClientSecretID        string        `json:"clientSecretId,omitempty"`
	BlobPrefix            string        `json:"blobPrefix,omitempty"`
}

// ProtocolSettings is a tagged union: exactly one of FTP/HTTPS/AzureBlob is
// populated, matching Protocol. This is deliberately a sum type, not an
// inheritance hierarchy (§9).
type ProtocolSettings struct {
	Protocol  Protocol           `json:"protocol"`
	FTP       *FTPSettings       `json:"ftp,omitempty"`
	HTTPS     *HTTPSSettings     `json:"https,omitempty"`
	AzureBlob *AzureBlobSettings `json:"azureBlob,omitempty"`
}

// Schedule is a cron expression plus the timezone it is evaluated in.
type Schedule struct {
	CronExpression string `json:"cronExpression"`
	Timezone       string `json:"timezone"`
	Description    string `json:"description,omitempty"`
}

// Configuration is a retrieval configuration (§3). Identity is
// (ClientID, ID).
type Configuration struct {
	ClientID          string           `json:"clientId"`
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	Protocol          Protocol         `json:"protocol"`
	ProtocolSettings  ProtocolSettings `json:"protocolSettings"`
	FilePathPattern   string           `json:"filePathPattern"`
	FilenamePattern   string           `json:"filenamePattern"`
	FileExtension     string           `json:"fileExtension,omitempty"`
	Schedule          Schedule         `json:"schedule"`
	IsActive          bool             `json:"isActive"`
	CreatedAt         time.Time        `json:"createdAt"`
	CreatedBy         string           `json:"createdBy,omitempty"`
	LastModifiedAt    time.Time        `json:"lastModifiedAt"`
	LastExecutedAt    *time.Time       `json:"lastExecutedAt,omitempty"`
	NextScheduledRun  *time.Time       `json:"nextScheduledRun,omitempty"`
	ETag              string           `json:"etag"`

	// EventsToPublish/CommandsToSend gate step 6 of the file-check pipeline
	// (§4.5): which messages a discovery should produce.
	EventsToPublish  []string `json:"eventsToPublish,omitempty"`
	CommandsToSend   []string `json:"commandsToSend,omitempty"`
}

func (c *Configuration) ClientPartitionKey() string { return c.ClientID }

// ExecutionStatus is the lifecycle state of an Execution record.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "Pending"
	ExecutionRunning   ExecutionStatus = "Running"
	ExecutionCompleted ExecutionStatus = "Completed"
	ExecutionFailed    ExecutionStatus = "Failed"
)

// Execution records one attempt to run a configuration's file-check (§3).
// Identity is (ClientID, ConfigurationID, ID).
type Execution struct {
	ClientID        string          `json:"clientId"`
	ConfigurationID string          `json:"configurationId"`
	ID              string          `json:"id"`
	Status          ExecutionStatus `json:"status"`
	StartedAt       time.Time       `json:"startedAt"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	FilesFound      int             `json:"filesFound"`
	FilesProcessed  int             `json:"filesProcessed"`
	ResolvedFilePathPattern string  `json:"resolvedFilePathPattern,omitempty"`
	ResolvedFilenamePattern string  `json:"resolvedFilenamePattern,omitempty"`
	DurationMs      int64           `json:"durationMs,omitempty"`
	RetryCount      int             `json:"retryCount"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	ErrorCategory   string          `json:"errorCategory,omitempty"`
	ETag            string          `json:"etag"`
}

func (e *Execution) ClientPartitionKey() string { return e.ClientID }

func (e *Execution) Terminal() bool {
	return e.Status == ExecutionCompleted || e.Status == ExecutionFailed
}

// DiscoveredFile is a unique (ClientID, ConfigurationID, FileURL,
// DiscoveryDate) observation (§3). DiscoveryDate is the UTC calendar date
// (midnight) of the scheduled execution instant, never the instant of
// discovery (see DESIGN.md Open Question).
type DiscoveredFile struct {
	ClientID        string    `json:"clientId"`
	ConfigurationID string    `json:"configurationId"`
	ID              string    `json:"id"`
	ExecutionID     string    `json:"executionId"`
	FileURL         string    `json:"fileUrl"`
	Filename        string    `json:"filename"`
	FileSizeBytes   int64     `json:"fileSizeBytes"`
	DiscoveryDate   time.Time `json:"discoveryDate"`
	DiscoveredAt    time.Time `json:"discoveredAt"`
}

func (d *DiscoveredFile) ClientPartitionKey() string { return d.ClientID }

// UniqueKey is the idempotency key of §3's uniqueness constraint.
func (d *DiscoveredFile) UniqueKey() string {
	return d.ClientID + "##" + d.ConfigurationID + "##" + d.FileURL + "##" + d.DiscoveryDate.Format("2006-01-02")
}

// ProcessedFile is a discovered file whose content was successfully
// downloaded and checksummed (§3). Identity is DiscoveredFileID, 1:1 with a
// DiscoveredFile.
type ProcessedFile struct {
	ClientID          string    `json:"clientId"`
	ConfigurationID   string    `json:"configurationId"`
	DiscoveredFileID  string    `json:"discoveredFileId"`
	Filename          string    `json:"filename"`
	DownloadedSizeBytes int64   `json:"downloadedSizeBytes"`
	ChecksumAlgorithm string    `json:"checksumAlgorithm"`
	ChecksumHex       string    `json:"checksumHex"`
	ProcessedAt       time.Time `json:"processedAt"`
	CorrelationID     string    `json:"correlationId,omitempty"`
	IdempotencyKey    string    `json:"idempotencyKey,omitempty"`
}

func (p *ProcessedFile) ClientPartitionKey() string { return p.ClientID }

// ListedFile is what a protocol adapter's List operation returns (§4.2).
type ListedFile struct {
	FileURL      string
	Filename     string
	Size         int64
	LastModified time.Time
}
