package constant

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "PENDING"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusFailed     BatchStatus = "FAILED"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
)

type UploadMode string

const (
	UploadModeStandard    UploadMode = "standard"
	UploadModeNonStandard UploadMode = "nonstandard"
)

func (m UploadMode) String() string {
	return string(m)
}

// MarkNonStandard annotates recordings shipped without a matched case.
const MarkNonStandard = "non-standard upload"

type Origin string

const (
	OriginShare  Origin = "share"
	OriginVoip   Origin = "voip"
	OriginOkcc   Origin = "okcc"
	OriginManual Origin = "manual"
)

func (o Origin) String() string {
	return string(o)
}

type RunMode string

const (
	RunModeSync            RunMode = "sync"
	RunModeNonStandard     RunMode = "nonstandard"
	RunModeReportToday     RunMode = "report-today"
	RunModeReportYesterday RunMode = "report-yesterday"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityLow      Severity = "low"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

const (
	DateLayout     = "20060102"
	BatchLayout    = "20060102150405"
	TimeLayout     = "2006-01-02 15:04:05"
	ArchiveExt     = ".zip"
	IndexSheetName = "yingshebiao.xlsx"
	CallerUnknown  = "unknown"
)
