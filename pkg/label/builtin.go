package label

import "regexp"

// Shared alternation of radiographic finding terms. Kept as one source
// so the positive detector and the negation detector cannot drift.
const abnormalTerms = `opacit(?:y|ies)|effusions?|consolidations?|pneumothorax|pneumothoraces|` +
	`edema|cardiomegaly|atelectasis|infiltrat(?:e|es|ion)|mass(?:es)?|nodules?|` +
	`fractures?|pneumonia|emphysema|granulomas?|aerat(?:ion|ed) abnormalit(?:y|ies)`

const shortReportMaxWords = 15

var (
	abnormalTermsRegex = regexp.MustCompile(`\b(?:` + abnormalTerms + `)\b`)

	negatedFindingsRegex = regexp.MustCompile(`\b(?:no|without|negative for|free of)\s+` +
		`(?:(?:evidence of|focal|acute|significant|definite|large|pleural|pulmonary|interval)\s+){0,2}` +
		`(?:` + abnormalTerms + `)\b`)

	normalStatementRegex = regexp.MustCompile(`no acute cardiopulmonary (?:abnormalit(?:y|ies)|disease|process|findings?)|` +
		`no acute (?:osseous |bony )?abnormalit(?:y|ies)|` +
		`normal (?:chest|heart size|cardiomediastinal silhouette)|` +
		`heart and lungs are normal|no active disease|no acute disease`)

	clearLungsRegex = regexp.MustCompile(`lungs? (?:are|is) (?:grossly )?clear|clear lungs?|lungs remain clear`)

	impressionNormalRegex = regexp.MustCompile(`\b(?:unremarkable|within normal limits|negative(?: study| exam)?)\b`)

	findingSeenRegex = regexp.MustCompile(`\b(?:is|are)\s+(?:seen|noted|identified|demonstrated|visualized)\b`)

	deviceHardwareRegex = regexp.MustCompile(`\b(?:picc|pacemaker|sternotomy|catheter|tracheostomy|` +
		`prosthes[ie]s|surgical clips?|wires?|hardware|stent|tubes?)\b`)

	degenerativeRegex = regexp.MustCompile(`\b(?:degenerative|spondylosis|scoliosis|kyphosis|osteophytes?|arthritic|arthritis)\b`)

	followUpRegex = regexp.MustCompile(`\brecommend(?:ed|s)?\b|follow[- ]?up|clinical correlation`)
)

// Builtins returns the built-in chest X-ray LF set. Individual
// heuristics are intentionally noisy; disagreement between them is what
// the resolution step consumes.
func Builtins() []LF {
	return []LF{
		{Name: "normal_statement", Eval: lfNormalStatement},
		{Name: "clear_lungs", Eval: lfClearLungs},
		{Name: "negated_findings", Eval: lfNegatedFindings},
		{Name: "impression_normal", Eval: lfImpressionNormal},
		{Name: "short_report", Eval: lfShortReport},
		{Name: "abnormal_terms", Eval: lfAbnormalTerms},
		{Name: "finding_seen", Eval: lfFindingSeen},
		{Name: "device_hardware", Eval: lfDeviceHardware},
		{Name: "degenerative", Eval: lfDegenerative},
		{Name: "follow_up", Eval: lfFollowUp},
	}
}

// Explicit all-clear statements dictated for normal studies.
func lfNormalStatement(d *Document) Vote {
	if normalStatementRegex.MatchString(d.Normalized) {
		return Normal
	}
	return Abstain
}

func lfClearLungs(d *Document) Vote {
	if clearLungsRegex.MatchString(d.Normalized) {
		return Normal
	}
	return Abstain
}

// Findings mentioned only under negation read as normal.
func lfNegatedFindings(d *Document) Vote {
	if negatedFindingsRegex.MatchString(d.Normalized) {
		return Normal
	}
	return Abstain
}

// The IMPRESSION section carries the dictating radiologist's verdict;
// a normal marker there outweighs chatter in the findings.
func lfImpressionNormal(d *Document) Vote {
	if d.Impression == "" {
		return Abstain
	}
	if impressionNormalRegex.MatchString(d.Impression) ||
		normalStatementRegex.MatchString(d.Impression) ||
		clearLungsRegex.MatchString(d.Impression) {
		return Normal
	}
	return Abstain
}

// Normal studies tend to be dictated tersely.
func lfShortReport(d *Document) Vote {
	wc := d.WordCount()
	if wc > 0 && wc < shortReportMaxWords {
		return Normal
	}
	return Abstain
}

// Raw finding-term presence, negation-blind on purpose.
func lfAbnormalTerms(d *Document) Vote {
	if abnormalTermsRegex.MatchString(d.Normalized) {
		return Abnormal
	}
	return Abstain
}

func lfFindingSeen(d *Document) Vote {
	if findingSeenRegex.MatchString(d.Normalized) {
		return Abnormal
	}
	return Abstain
}

// Lines, tubes, and implanted hardware mark a monitored patient.
func lfDeviceHardware(d *Document) Vote {
	if deviceHardwareRegex.MatchString(d.Normalized) {
		return Abnormal
	}
	return Abstain
}

func lfDegenerative(d *Document) Vote {
	if degenerativeRegex.MatchString(d.Normalized) {
		return Abnormal
	}
	return Abstain
}

// Requests for follow-up imaging imply something worth following.
func lfFollowUp(d *Document) Vote {
	if followUpRegex.MatchString(d.Normalized) {
		return Abnormal
	}
	return Abstain
}
