package verdict

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedResponse reports a detector payload that fits neither
// recognized shape. Callers must treat it as a failed analysis, never
// as an implicit approval.
var ErrMalformedResponse = errors.New("malformed detector response")

// Normalize converts a raw detector payload into the canonical Result.
//
// Two response shapes are accepted. The structured shape nests the
// signals under an "analysis" object; the flat shape carries risk_score
// and ml_score at the top level. Shape detection keys on the presence
// of "analysis": when it exists its fields win, even if flat fields are
// also present. Anything else is ErrMalformedResponse.
//
// Detector floats on the 0-1 scale are rescaled to integer percentages,
// rounded half-up and clamped to [0, 100]. Missing numeric fields read
// as zero. A missing or unrecognized status falls back to thresholding
// the aggregate risk. Keys the normalizer does not consume pass through
// byte-for-byte in Aux, as does analysis.adaptive_phrases.
//
// Normalize is a pure function of its input: normalizing the same bytes
// twice yields identical results.
func Normalize(raw []byte) (*Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedResponse)
	}

	res := &Result{}
	consumed := map[string]bool{
		"status":            true,
		"prompt":            true,
		"response":          true,
		"blockReason":       true,
		"block_reason":      true,
		"suggestedRewrite":  true,
		"suggested_rewrite": true,
	}

	var aggregate float64
	if analysisRaw, ok := fields["analysis"]; ok && !isNull(analysisRaw) {
		var analysis map[string]json.RawMessage
		if err := json.Unmarshal(analysisRaw, &analysis); err != nil || analysis == nil {
			return nil, fmt.Errorf("%w: analysis is not an object", ErrMalformedResponse)
		}
		consumed["analysis"] = true

		agg, found := numField(analysis, "risk")
		if !found {
			agg, _ = numField(analysis, "risk_score")
		}
		aggregate = agg
		res.Risk = signalFrom(analysis)

		// The detector nests its phrase-learning output inside analysis;
		// hoist it so consumers find all side-channel data in one place.
		if phrases, ok := analysis["adaptive_phrases"]; ok {
			res.Aux = map[string]json.RawMessage{"adaptive_phrases": phrases}
		}
	} else {
		riskScore, hasRisk := numField(fields, "risk_score")
		_, hasML := numField(fields, "ml_score")
		if !hasRisk && !hasML {
			return nil, fmt.Errorf("%w: no analysis object and no risk scores", ErrMalformedResponse)
		}
		aggregate = riskScore
		res.Risk = signalFrom(fields)
		for _, k := range []string{"risk_score", "ml_score", "lexical_risk", "benign_offset"} {
			consumed[k] = true
		}
	}

	res.Aggregate = clamp01(aggregate)
	res.RiskLevel = RiskLevelFor(aggregate)
	res.Status = statusFrom(fields, aggregate)
	res.Message = stringField(fields, "blockReason", "block_reason")
	res.Suggestion = stringField(fields, "suggestedRewrite", "suggested_rewrite")
	res.Response = stringField(fields, "response")
	res.Confidence, res.ConfidenceBucket = Score(res.Risk.MLRisk, res.Risk.LexicalRisk, res.Risk.BenignOffset)

	for key, val := range fields {
		if consumed[key] {
			continue
		}
		if res.Aux == nil {
			res.Aux = make(map[string]json.RawMessage)
		}
		res.Aux[key] = val
	}
	return res, nil
}

func signalFrom(m map[string]json.RawMessage) RiskSignal {
	ml, _ := numField(m, "ml_score")
	lex, _ := numField(m, "lexical_risk")
	benign, _ := numField(m, "benign_offset")
	return RiskSignal{
		MLRisk:       scale100(ml),
		LexicalRisk:  scale100(lex),
		BenignOffset: scale100(benign),
	}
}

// statusFrom honors an explicit recognized status and otherwise derives
// one by thresholding the aggregate risk.
func statusFrom(m map[string]json.RawMessage, aggregate float64) Status {
	if raw, ok := m["status"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if st, known := ParseStatus(s); known {
				return st
			}
		}
	}
	if aggregate > highRiskCutoff {
		return StatusBlocked
	}
	return StatusApproved
}

// numField reads key as a float and reports whether a usable number was
// present. Absent keys and non-numeric values both read as missing.
func numField(m map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// stringField returns the first key that decodes as a string.
func stringField(m map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := m[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return ""
}

// clamp01 clamps a unit-scale float into [0, 1].
func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// scale100 rescales a detector float on the 0-1 scale to an integer
// percentage, rounding half-up and clamping to [0, 100].
func scale100(f float64) int {
	n := int(math.Round(f * 100))
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return n
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
