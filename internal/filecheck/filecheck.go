package filecheck

import (
	"path/filepath"
	"strings"
)

// InputType categorizes an attachment by its file extension.
type InputType string

const (
	TypeImage    InputType = "image"
	TypeVideo    InputType = "video"
	TypePDF      InputType = "pdf"
	TypeCode     InputType = "code"
	TypeDocument InputType = "document"
	TypeArchive  InputType = "archive"
	TypeUnknown  InputType = "unknown"
)

// RiskLevel grades how much scrutiny an attachment type warrants.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Attachment describes a declared upload. Only metadata is inspected; the
// gateway never receives file contents.
type Attachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Assessment is the metadata risk verdict for one attachment, emitted under
// the file_analysis aux key.
type Assessment struct {
	FileName  string    `json:"file_name"`
	InputType InputType `json:"input_type"`
	RiskLevel RiskLevel `json:"risk_level"`
	RiskScore float64   `json:"risk_score"`
}

var extTypes = map[string]InputType{
	// Images
	"jpg": TypeImage, "jpeg": TypeImage, "png": TypeImage,
	"gif": TypeImage, "bmp": TypeImage, "webp": TypeImage,
	"svg": TypeImage, "ico": TypeImage,

	// Videos
	"mp4": TypeVideo, "avi": TypeVideo, "mov": TypeVideo,
	"mkv": TypeVideo, "flv": TypeVideo, "wmv": TypeVideo,
	"webm": TypeVideo, "m4v": TypeVideo,

	// PDFs
	"pdf": TypePDF,

	// Code files
	"py": TypeCode, "js": TypeCode, "ts": TypeCode,
	"java": TypeCode, "cpp": TypeCode, "c": TypeCode,
	"cs": TypeCode, "go": TypeCode, "rs": TypeCode,
	"php": TypeCode, "rb": TypeCode, "swift": TypeCode,
	"sh": TypeCode, "bash": TypeCode, "bat": TypeCode,
	"ps1": TypeCode, "gradle": TypeCode, "xml": TypeCode,
	"json": TypeCode, "yaml": TypeCode, "yml": TypeCode,

	// Documents
	"txt": TypeDocument, "doc": TypeDocument, "docx": TypeDocument,
	"xls": TypeDocument, "xlsx": TypeDocument, "ppt": TypeDocument,
	"pptx": TypeDocument, "odt": TypeDocument, "csv": TypeDocument,

	// Archives
	"zip": TypeArchive, "rar": TypeArchive, "7z": TypeArchive,
	"tar": TypeArchive, "gz": TypeArchive, "bz2": TypeArchive,
}

var typeRisk = map[InputType]RiskLevel{
	TypeImage:    RiskLow,
	TypeVideo:    RiskLow,
	TypePDF:      RiskMedium,
	TypeDocument: RiskMedium,
	TypeCode:     RiskHigh,
	TypeArchive:  RiskHigh,
	TypeUnknown:  RiskHigh,
}

var riskScores = map[RiskLevel]float64{
	RiskLow:      0.1,
	RiskMedium:   0.4,
	RiskHigh:     0.75,
	RiskCritical: 0.95,
}

// TypeForName maps a file name to its input type by extension. Extensions
// outside the known set rate as unknown, which grades high.
func TypeForName(name string) InputType {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return TypeUnknown
	}
	t, ok := extTypes[ext]
	if !ok {
		return TypeUnknown
	}
	return t
}

// Assess rates one attachment from its metadata. Attachments larger than
// maxBytes rate critical regardless of type; maxBytes <= 0 disables the
// size check.
func Assess(att Attachment, maxBytes int64) Assessment {
	t := TypeForName(att.Name)
	level := typeRisk[t]
	if maxBytes > 0 && att.Size > maxBytes {
		level = RiskCritical
	}
	return Assessment{
		FileName:  att.Name,
		InputType: t,
		RiskLevel: level,
		RiskScore: riskScores[level],
	}
}

// AssessAll rates every attachment in the request.
func AssessAll(atts []Attachment, maxBytes int64) []Assessment {
	if len(atts) == 0 {
		return nil
	}
	out := make([]Assessment, 0, len(atts))
	for _, att := range atts {
		out = append(out, Assess(att, maxBytes))
	}
	return out
}
