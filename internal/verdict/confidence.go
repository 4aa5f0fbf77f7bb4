package verdict

import "math"

// Score computes the decision confidence from the three risk signals.
//
// The base confidence is the mean of the two risk scores; the benign
// offset then shrinks it proportionally, so a prompt that looks risky
// but also strongly benign yields a hedged verdict. The result is
// rounded half-up and clamped to [0, 100].
func Score(mlRisk, lexicalRisk, benignOffset int) (int, ConfidenceBucket) {
	base := float64(mlRisk+lexicalRisk) / 2
	adjusted := base * (1 - float64(benignOffset)/100)

	conf := int(math.Round(adjusted))
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}
	return conf, BucketFor(conf)
}

// BucketFor maps a confidence score onto its qualitative bucket.
func BucketFor(confidence int) ConfidenceBucket {
	switch {
	case confidence > 85:
		return ConfidenceVeryHigh
	case confidence > 70:
		return ConfidenceHigh
	case confidence > 50:
		return ConfidenceModerate
	default:
		return ConfidenceLow
	}
}
