package verdict

import "testing"

func TestScore(t *testing.T) {
	cases := []struct {
		name       string
		ml, lex    int
		benign     int
		want       int
		wantBucket ConfidenceBucket
	}{
		{name: "risky with small benign offset", ml: 82, lex: 89, benign: 3, want: 83, wantBucket: ConfidenceHigh},
		{name: "fully benign", ml: 0, lex: 0, benign: 100, want: 0, wantBucket: ConfidenceLow},
		{name: "maximum signals", ml: 100, lex: 100, benign: 0, want: 100, wantBucket: ConfidenceVeryHigh},
		{name: "offset halves the base", ml: 60, lex: 60, benign: 50, want: 30, wantBucket: ConfidenceLow},
		{name: "zero everything", ml: 0, lex: 0, benign: 0, want: 0, wantBucket: ConfidenceLow},
		{name: "rounds half up", ml: 50, lex: 51, benign: 0, want: 51, wantBucket: ConfidenceModerate},
		{name: "full offset wipes strong signals", ml: 95, lex: 95, benign: 100, want: 0, wantBucket: ConfidenceLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, bucket := Score(tc.ml, tc.lex, tc.benign)
			if got != tc.want {
				t.Errorf("Score(%d, %d, %d) = %d, want %d", tc.ml, tc.lex, tc.benign, got, tc.want)
			}
			if bucket != tc.wantBucket {
				t.Errorf("bucket = %q, want %q", bucket, tc.wantBucket)
			}
		})
	}
}

func TestBucketBoundaries(t *testing.T) {
	cases := []struct {
		confidence int
		want       ConfidenceBucket
	}{
		{100, ConfidenceVeryHigh},
		{86, ConfidenceVeryHigh},
		{85, ConfidenceHigh},
		{71, ConfidenceHigh},
		{70, ConfidenceModerate},
		{51, ConfidenceModerate},
		{50, ConfidenceLow},
		{0, ConfidenceLow},
	}
	for _, tc := range cases {
		if got := BucketFor(tc.confidence); got != tc.want {
			t.Errorf("BucketFor(%d) = %q, want %q", tc.confidence, got, tc.want)
		}
	}
}
