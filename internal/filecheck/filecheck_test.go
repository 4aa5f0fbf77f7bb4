package filecheck

import "testing"

func TestTypeForName(t *testing.T) {
	tests := []struct {
		name string
		want InputType
	}{
		{"photo.jpg", TypeImage},
		{"photo.JPEG", TypeImage},
		{"clip.mp4", TypeVideo},
		{"report.pdf", TypePDF},
		{"main.go", TypeCode},
		{"deploy.yaml", TypeCode},
		{"notes.txt", TypeDocument},
		{"data.csv", TypeDocument},
		{"backup.zip", TypeArchive},
		{"payload.exe", TypeUnknown},
		{"noextension", TypeUnknown},
		{"", TypeUnknown},
	}

	for _, tt := range tests {
		if got := TypeForName(tt.name); got != tt.want {
			t.Errorf("TypeForName(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestAssess_RiskByType(t *testing.T) {
	tests := []struct {
		name      string
		wantLevel RiskLevel
	}{
		{"photo.png", RiskLow},
		{"clip.webm", RiskLow},
		{"report.pdf", RiskMedium},
		{"letter.docx", RiskMedium},
		{"script.sh", RiskHigh},
		{"bundle.tar", RiskHigh},
		{"payload.exe", RiskHigh},
	}

	for _, tt := range tests {
		got := Assess(Attachment{Name: tt.name, Size: 1024}, 10<<20)
		if got.RiskLevel != tt.wantLevel {
			t.Errorf("Assess(%q) level = %s, want %s", tt.name, got.RiskLevel, tt.wantLevel)
		}
		if got.FileName != tt.name {
			t.Errorf("Assess(%q) file name = %q", tt.name, got.FileName)
		}
	}
}

func TestAssess_OversizeIsCritical(t *testing.T) {
	// Even a benign image rates critical when it exceeds the size limit
	got := Assess(Attachment{Name: "photo.jpg", Size: 11 << 20}, 10<<20)
	if got.RiskLevel != RiskCritical {
		t.Errorf("expected critical for oversize attachment, got %s", got.RiskLevel)
	}
	if got.InputType != TypeImage {
		t.Errorf("input type should still reflect the extension, got %s", got.InputType)
	}
	if got.RiskScore != 0.95 {
		t.Errorf("expected risk score 0.95, got %v", got.RiskScore)
	}
}

func TestAssess_SizeCheckDisabled(t *testing.T) {
	got := Assess(Attachment{Name: "photo.jpg", Size: 11 << 20}, 0)
	if got.RiskLevel != RiskLow {
		t.Errorf("expected low with size check disabled, got %s", got.RiskLevel)
	}
}

func TestAssess_DoubleExtension(t *testing.T) {
	// Only the final extension counts, so disguised executables rate high
	got := Assess(Attachment{Name: "invoice.pdf.exe", Size: 1024}, 10<<20)
	if got.InputType != TypeUnknown {
		t.Errorf("expected unknown type, got %s", got.InputType)
	}
	if got.RiskLevel != RiskHigh {
		t.Errorf("expected high risk, got %s", got.RiskLevel)
	}
}

func TestAssessAll(t *testing.T) {
	atts := []Attachment{
		{Name: "photo.jpg", Size: 1024},
		{Name: "script.py", Size: 2048},
	}

	got := AssessAll(atts, 10<<20)
	if len(got) != 2 {
		t.Fatalf("expected 2 assessments, got %d", len(got))
	}
	if got[0].RiskLevel != RiskLow || got[1].RiskLevel != RiskHigh {
		t.Errorf("unexpected levels: %s, %s", got[0].RiskLevel, got[1].RiskLevel)
	}

	if AssessAll(nil, 10<<20) != nil {
		t.Error("expected nil for no attachments")
	}
}
